package models

// GameStatus defines the state of a game session on the client. The
// sequence waiting -> active -> ended is monotonic and never regresses.
type GameStatus string

const (
	GameStatusWaiting GameStatus = "waiting"
	GameStatusActive  GameStatus = "active"
	GameStatusEnded   GameStatus = "ended"
)

// Prompt is one question/challenge served to the room.
type Prompt struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

// Timer mirrors the server-authoritative countdown. T0 is the epoch start
// in unix seconds, Duration is in seconds, Remaining is derived locally
// and never authoritative.
type Timer struct {
	T0        float64 `json:"t0,omitempty"`
	Duration  int     `json:"duration"`
	Remaining float64 `json:"remaining"`
}
