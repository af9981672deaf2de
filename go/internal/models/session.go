package models

import "time"

// Session holds the client's credential state. An empty Token means the
// realtime channel must be disconnected.
type Session struct {
	Token           string     `json:"token,omitempty"`
	User            *User      `json:"user,omitempty"`
	IsAuthenticated bool       `json:"is_authenticated"`
	TokenExpiresAt  *time.Time `json:"token_expires_at,omitempty"`
}
