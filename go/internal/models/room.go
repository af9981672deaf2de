package models

import "time"

// RoomStatus defines the lifecycle state of a room. The server is
// authoritative; the client applies pushed status values without
// validating transitions.
type RoomStatus string

const (
	RoomStatusOpen   RoomStatus = "open"
	RoomStatusLocked RoomStatus = "locked"
	RoomStatusActive RoomStatus = "active"
	RoomStatusClosed RoomStatus = "closed"
)

// Room represents a game room as returned by the server.
type Room struct {
	ID               int64      `json:"id"`
	HostID           int64      `json:"host_id"`
	GameSlug         string     `json:"game_slug"`
	InviteCode       string     `json:"invite_code"`
	Status           RoomStatus `json:"status"`
	ParticipantCount int        `json:"participant_count,omitempty"`
	CreatedAt        time.Time  `json:"created_at,omitempty"`
}

// Participant represents one member of a room. UserID is zero for guests.
// IsApproved only ever transitions false to true.
type Participant struct {
	ID         int64     `json:"id"`
	RoomID     int64     `json:"room_id,omitempty"`
	UserID     int64     `json:"user_id,omitempty"`
	GuestName  string    `json:"guest_name,omitempty"`
	IsGuest    bool      `json:"is_guest"`
	IsApproved bool      `json:"is_approved"`
	JoinedAt   time.Time `json:"joined_at,omitempty"`
}
