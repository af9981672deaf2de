package gamesnight_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bsamson01/gamesnight/go/internal/models"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is the token+user pair returned by login, register and
// refresh.
type AuthResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type,omitempty"`
	User        models.User `json:"user"`
}

// Login exchanges credentials for a token+user pair. Auth endpoints skip
// the 401 refresh+retry path.
func (c *GamesNightClient) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	return c.authRequest(ctx, LoginEndpoint, req)
}

// Register creates an account; same contract as Login, different endpoint.
func (c *GamesNightClient) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	return c.authRequest(ctx, RegisterEndpoint, req)
}

// Refresh exchanges the current token for a new token+user pair. The
// current token is attached by the TokenSource.
func (c *GamesNightClient) Refresh(ctx context.Context) (*AuthResponse, error) {
	return c.authRequest(ctx, RefreshEndpoint, nil)
}

// Logout notifies the server that the session is over.
func (c *GamesNightClient) Logout(ctx context.Context) error {
	_, err := c.MakeRequestNoRetry(ctx, http.MethodPost, LogoutEndpoint, nil)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (c *GamesNightClient) authRequest(ctx context.Context, endpoint string, req interface{}) (*AuthResponse, error) {
	var body []byte
	if req != nil {
		var err error
		body, err = json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	respBody, err := c.MakeRequestNoRetry(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(respBody))
	}
	return &resp, nil
}
