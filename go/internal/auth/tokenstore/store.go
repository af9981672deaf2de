package tokenstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no token has been persisted.
var ErrNotFound = errors.New("token not found")

// Store persists the session token durably under a single fixed key. It is
// read once at startup and cleared on logout.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	Close() error
}
