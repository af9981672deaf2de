package realtime

import (
	"encoding/json"
	"time"

	"github.com/bsamson01/gamesnight/go/internal/models"
)

// Envelope is the wire frame exchanged over the channel. Inbound frames
// carry a named event; outbound commands that expect an acknowledgment
// carry an AckID the server echoes back on the matching ack frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ack_id,omitempty"`
}

// Inbound server events. Connected/Disconnected/Error are also emitted
// locally by the connection itself on lifecycle changes.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventError        = "error"
	EventUserJoined   = "user_joined"
	EventUserLeft     = "user_left"
	EventGameUpdate   = "game_update"
	EventTimerSync    = "timer_sync"
	EventStrokeUpdate = "stroke_update"

	eventAck = "ack"
)

// Outbound commands.
const (
	CommandJoinRoom      = "join_room"
	CommandLeaveRoom     = "leave_room"
	CommandGameAction    = "game_action"
	CommandStartTimer    = "start_timer"
	CommandDrawingStroke = "drawing_stroke"
)

type UserJoinedPayload struct {
	UserID      int64               `json:"user_id"`
	Participant *models.Participant `json:"participant,omitempty"`
	Timestamp   time.Time           `json:"timestamp,omitempty"`
}

type UserLeftPayload struct {
	UserID    int64     `json:"user_id"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// GameUpdatePayload is the tagged-variant carrier for pushed game state.
// Unrecognized types are ignored by consumers; new game types extend the
// set without protocol changes.
type GameUpdatePayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type TimerSyncPayload struct {
	T0       float64 `json:"t0"`
	Duration int     `json:"duration"`
}

type StrokeUpdatePayload struct {
	Stroke json.RawMessage `json:"stroke"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type JoinRoomPayload struct {
	RoomID int64 `json:"room_id"`
}

type LeaveRoomPayload struct {
	RoomID int64 `json:"room_id"`
}

type GameActionPayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type StartTimerPayload struct {
	Duration int `json:"duration"`
}

type DrawingStrokePayload struct {
	Stroke json.RawMessage `json:"stroke"`
}

// ackPayload is the body of an ack frame. A non-empty Error means the
// command failed server-side.
type ackPayload struct {
	Error string `json:"error,omitempty"`
}
