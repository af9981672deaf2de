package auth

import (
	"errors"

	"github.com/bsamson01/gamesnight/go/clients"
)

// AuthError is a failed login, registration or refresh. Message carries the
// server's structured error detail when present, otherwise the fallback.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

func newAuthError(fallback string, err error) *AuthError {
	var apiErr *clients.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return &AuthError{Message: apiErr.Detail, Err: err}
	}
	return &AuthError{Message: fallback, Err: err}
}
