package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a command is issued on a channel
	// that has no live connection.
	ErrNotConnected = errors.New("channel not connected")

	// ErrConnectionClosed rejects pending calls when the channel drops or
	// is superseded before their ack arrives.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrCallTimeout is returned when a command's ack does not arrive
	// within the configured call timeout.
	ErrCallTimeout = errors.New("command ack timed out")

	// ErrAuthFailed means the server rejected the channel handshake. It is
	// terminal; reconnection does not retry it.
	ErrAuthFailed = errors.New("channel authentication failed")
)

// CommandError is an acknowledged command that came back with an error
// payload from the server.
type CommandError struct {
	Command string
	Reason  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %s", e.Command, e.Reason)
}
