package gamesnight_client

const (
	// Auth endpoints
	LoginEndpoint    = "/api/auth/login"
	RegisterEndpoint = "/api/auth/register"
	RefreshEndpoint  = "/api/auth/refresh"
	LogoutEndpoint   = "/api/auth/logout"

	// Room endpoints
	RoomsEndpoint        = "/api/rooms"
	RoomEndpoint         = "/api/rooms/%d"
	RoomInviteEndpoint   = "/api/rooms/invite/%s"
	JoinRoomEndpoint     = "/api/rooms/%d/join"
	JoinGuestEndpoint    = "/api/rooms/%d/join-guest"
	ApproveEndpoint      = "/api/rooms/%d/participants/%d/approve"
	ParticipantsEndpoint = "/api/rooms/%d/participants"

	// Game endpoints
	StartGameEndpoint  = "/api/games/rooms/%d/start"
	NextPromptEndpoint = "/api/games/rooms/%d/next-prompt"
	GameActionEndpoint = "/api/games/rooms/%d/action"
	EndGameEndpoint    = "/api/games/rooms/%d/end"

	// Payment endpoints
	PaymentVerifyEndpoint  = "/api/payments/verify"
	PaymentHistoryEndpoint = "/api/payments/history"
	PaymentConfigEndpoint  = "/api/payments/config"
)
