package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/bsamson01/gamesnight/go/clients"
	"github.com/bsamson01/gamesnight/go/clients/gamesnight_client"
	"github.com/bsamson01/gamesnight/go/internal/models"
	"github.com/bsamson01/gamesnight/go/internal/realtime"
)

// API is what the room synchronizer needs from the REST client.
type API interface {
	CreateRoom(ctx context.Context, req gamesnight_client.CreateRoomRequest) (*models.Room, error)
	GetRoom(ctx context.Context, roomID int64) (*models.Room, error)
	GetRoomByInvite(ctx context.Context, inviteCode string) (*models.Room, error)
	JoinRoom(ctx context.Context, roomID int64) (*models.Participant, error)
	JoinRoomAsGuest(ctx context.Context, roomID int64, guestName string) (*models.Participant, error)
	ApproveParticipant(ctx context.Context, roomID, participantID int64) error
	GetParticipants(ctx context.Context, roomID int64) ([]models.Participant, error)
}

// Channel issues acknowledged commands on the realtime connection.
type Channel interface {
	Call(ctx context.Context, command string, payload interface{}) (json.RawMessage, error)
}

// SessionSource exposes the current session, used to decide whether this
// client is the room's host.
type SessionSource interface {
	Session() models.Session
}

// Service maintains the client's view of room membership from REST
// responses and pushed channel events, and issues room commands. Room
// state is owned here and read-only to the rest of the system.
type Service struct {
	api     API
	channel Channel
	session SessionSource

	mu           sync.Mutex
	room         *models.Room
	participants []models.Participant
	isHost       bool
	lastErr      string
	subs         []func()
}

func NewService(api API, channel Channel, session SessionSource) *Service {
	return &Service{
		api:     api,
		channel: channel,
		session: session,
	}
}

// Register subscribes the synchronizer to the room-scoped channel events.
func (s *Service) Register(router *realtime.Router) {
	router.On(realtime.EventUserJoined, func(data json.RawMessage) {
		var payload realtime.UserJoinedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn().Err(err).Msg("malformed user_joined payload")
			return
		}
		if payload.Participant != nil {
			s.AddParticipant(*payload.Participant)
			return
		}
		// Event carried no participant record; refetch from the server.
		s.LoadParticipants(context.Background())
	})

	router.On(realtime.EventUserLeft, func(data json.RawMessage) {
		var payload realtime.UserLeftPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn().Err(err).Msg("malformed user_left payload")
			return
		}
		s.RemoveParticipant(payload.UserID)
	})

	router.On(realtime.EventGameUpdate, func(data json.RawMessage) {
		var payload realtime.GameUpdatePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		if payload.Type != "room_status" {
			return
		}
		var status struct {
			Status models.RoomStatus `json:"status"`
		}
		if err := json.Unmarshal(payload.Data, &status); err != nil {
			return
		}
		s.UpdateRoomStatus(status.Status)
	})
}

// CreateRoom creates a room, marks this client as host, and joins the
// channel's room scope.
func (s *Service) CreateRoom(ctx context.Context, req gamesnight_client.CreateRoomRequest) (*models.Room, error) {
	newRoom, err := s.api.CreateRoom(ctx, req)
	if err != nil {
		return nil, s.fail("Failed to create room", err)
	}

	s.mu.Lock()
	s.room = newRoom
	s.isHost = true
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()

	if _, err := s.channel.Call(ctx, realtime.CommandJoinRoom, realtime.JoinRoomPayload{RoomID: newRoom.ID}); err != nil {
		return nil, s.fail("Failed to create room", err)
	}
	return newRoom, nil
}

// JoinRoom joins as the current user, reloads the full room state, then
// joins the channel scope.
func (s *Service) JoinRoom(ctx context.Context, roomID int64) error {
	if _, err := s.api.JoinRoom(ctx, roomID); err != nil {
		return s.fail("Failed to join room", err)
	}
	return s.afterJoin(ctx, roomID, "Failed to join room")
}

// JoinRoomAsGuest joins with a display name and no account.
func (s *Service) JoinRoomAsGuest(ctx context.Context, roomID int64, guestName string) error {
	if _, err := s.api.JoinRoomAsGuest(ctx, roomID, guestName); err != nil {
		return s.fail("Failed to join room as guest", err)
	}
	return s.afterJoin(ctx, roomID, "Failed to join room as guest")
}

func (s *Service) afterJoin(ctx context.Context, roomID int64, fallback string) error {
	if err := s.LoadRoom(ctx, roomID); err != nil {
		return err
	}
	if _, err := s.channel.Call(ctx, realtime.CommandJoinRoom, realtime.JoinRoomPayload{RoomID: roomID}); err != nil {
		return s.fail(fallback, err)
	}
	return nil
}

// LoadRoom fetches the room, recomputes the host flag against the current
// session user, and reloads the participant list.
func (s *Service) LoadRoom(ctx context.Context, roomID int64) error {
	loaded, err := s.api.GetRoom(ctx, roomID)
	if err != nil {
		return s.fail("Failed to load room", err)
	}

	session := s.session.Session()
	s.mu.Lock()
	s.room = loaded
	s.isHost = session.User != nil && loaded.HostID == session.User.ID
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()

	s.LoadParticipants(ctx)
	return nil
}

// LoadRoomByInvite resolves an invite code to a room without requiring
// prior membership.
func (s *Service) LoadRoomByInvite(ctx context.Context, inviteCode string) (*models.Room, error) {
	loaded, err := s.api.GetRoomByInvite(ctx, inviteCode)
	if err != nil {
		return nil, s.fail("Invalid invite code", err)
	}

	s.mu.Lock()
	s.room = loaded
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()
	return loaded, nil
}

// LoadParticipants refreshes the participant list. Failure is logged, not
// raised; membership consumers keep the previous list.
func (s *Service) LoadParticipants(ctx context.Context) {
	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return
	}
	roomID := s.room.ID
	s.mu.Unlock()

	participants, err := s.api.GetParticipants(ctx, roomID)
	if err != nil {
		log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to load participants")
		return
	}

	s.mu.Lock()
	s.participants = participants
	s.mu.Unlock()
	s.notify()
}

// ApproveParticipant approves a pending participant. Host only: a no-op,
// not an error, when this client is not host or no room is loaded.
func (s *Service) ApproveParticipant(ctx context.Context, participantID int64) error {
	s.mu.Lock()
	if s.room == nil || !s.isHost {
		s.mu.Unlock()
		return nil
	}
	roomID := s.room.ID
	s.mu.Unlock()

	if err := s.api.ApproveParticipant(ctx, roomID, participantID); err != nil {
		return s.fail("Failed to approve participant", err)
	}

	s.mu.Lock()
	for i := range s.participants {
		if s.participants[i].ID == participantID {
			s.participants[i].IsApproved = true
		}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// AddParticipant inserts a pushed participant. Idempotent: a participant
// id that already exists is ignored.
func (s *Service) AddParticipant(participant models.Participant) {
	s.mu.Lock()
	for _, p := range s.participants {
		if p.ID == participant.ID {
			s.mu.Unlock()
			return
		}
	}
	s.participants = append(s.participants, participant)
	s.mu.Unlock()
	s.notify()
}

// RemoveParticipant removes every participant with the given user id.
func (s *Service) RemoveParticipant(userID int64) {
	s.mu.Lock()
	kept := s.participants[:0]
	for _, p := range s.participants {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	s.participants = kept
	s.mu.Unlock()
	s.notify()
}

// UpdateRoomStatus applies a server-pushed status. The server is
// authoritative; no local transition validation.
func (s *Service) UpdateRoomStatus(status models.RoomStatus) {
	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return
	}
	s.room.Status = status
	s.mu.Unlock()
	s.notify()
}

// LeaveRoom notifies the channel scope best-effort, then unconditionally
// clears all local room state.
func (s *Service) LeaveRoom(ctx context.Context) {
	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return
	}
	roomID := s.room.ID
	s.mu.Unlock()

	if _, err := s.channel.Call(ctx, realtime.CommandLeaveRoom, realtime.LeaveRoomPayload{RoomID: roomID}); err != nil {
		log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to leave room scope")
	}

	s.mu.Lock()
	s.room = nil
	s.participants = nil
	s.isHost = false
	s.mu.Unlock()
	s.notify()
}

// Reset returns the synchronizer to its initial empty state.
func (s *Service) Reset() {
	s.mu.Lock()
	s.room = nil
	s.participants = nil
	s.isHost = false
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()
}

// Room returns a copy of the current room, or nil if none is loaded.
func (s *Service) Room() *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil
	}
	room := *s.room
	return &room
}

// RoomID returns the loaded room's id, and whether one is loaded.
func (s *Service) RoomID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return 0, false
	}
	return s.room.ID, true
}

func (s *Service) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHost
}

func (s *Service) GameSlug() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return ""
	}
	return s.room.GameSlug
}

func (s *Service) InviteCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return ""
	}
	return s.room.InviteCode
}

// Participants returns a copy of the participant list.
func (s *Service) Participants() []models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Participant, len(s.participants))
	copy(out, s.participants)
	return out
}

// ApprovedParticipants returns the participants the host has approved.
func (s *Service) ApprovedParticipants() []models.Participant {
	return s.filterParticipants(true)
}

// PendingParticipants returns the participants awaiting approval.
func (s *Service) PendingParticipants() []models.Participant {
	return s.filterParticipants(false)
}

func (s *Service) filterParticipants(approved bool) []models.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Participant
	for _, p := range s.participants {
		if p.IsApproved == approved {
			out = append(out, p)
		}
	}
	return out
}

// LastError returns the latest surfaced error message.
func (s *Service) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Subscribe registers fn to run after every state change.
func (s *Service) Subscribe(fn func()) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Service) notify() {
	s.mu.Lock()
	subs := make([]func(), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

func (s *Service) fail(fallback string, err error) error {
	message := fallback
	var apiErr *clients.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		message = apiErr.Detail
	}

	s.mu.Lock()
	s.lastErr = message
	s.mu.Unlock()
	return err
}
