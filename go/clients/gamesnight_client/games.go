package gamesnight_client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bsamson01/gamesnight/go/internal/models"
)

type StartGameResponse struct {
	SessionID   int64 `json:"session_id,omitempty"`
	PromptCount int   `json:"prompt_count"`
}

// NextPromptResponse reports either the next prompt or, with Success
// false, that the prompt deck is exhausted.
type NextPromptResponse struct {
	Success   bool           `json:"success"`
	Prompt    *models.Prompt `json:"prompt,omitempty"`
	Remaining int            `json:"remaining,omitempty"`
}

type GameActionRequest struct {
	Action string                 `json:"action"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// StartGame starts the game for a room. Host only.
func (c *GamesNightClient) StartGame(ctx context.Context, roomID int64) (*StartGameResponse, error) {
	respBody, err := c.Post(ctx, fmt.Sprintf(StartGameEndpoint, roomID), nil)
	if err != nil {
		return nil, err
	}

	var resp StartGameResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(respBody))
	}
	return &resp, nil
}

// GetNextPrompt advances the prompt deck.
func (c *GamesNightClient) GetNextPrompt(ctx context.Context, roomID int64) (*NextPromptResponse, error) {
	respBody, err := c.Get(ctx, fmt.Sprintf(NextPromptEndpoint, roomID))
	if err != nil {
		return nil, err
	}

	var resp NextPromptResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// SendGameAction forwards a game action to the server. State changes
// arrive later as pushed events, never from this response.
func (c *GamesNightClient) SendGameAction(ctx context.Context, roomID int64, req GameActionRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := c.Post(ctx, fmt.Sprintf(GameActionEndpoint, roomID), body)
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

// EndGame ends the game for a room. Host only.
func (c *GamesNightClient) EndGame(ctx context.Context, roomID int64) error {
	_, err := c.Post(ctx, fmt.Sprintf(EndGameEndpoint, roomID), nil)
	return err
}
