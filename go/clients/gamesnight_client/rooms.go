package gamesnight_client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bsamson01/gamesnight/go/internal/models"
)

type CreateRoomRequest struct {
	GameSlug string  `json:"game_slug"`
	ThemeIDs []int64 `json:"theme_ids,omitempty"`
}

type JoinRoomRequest struct {
	GuestName string `json:"guest_name,omitempty"`
}

// CreateRoom creates a room hosted by the current user.
func (c *GamesNightClient) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := c.Post(ctx, RoomsEndpoint, body)
	if err != nil {
		return nil, err
	}

	var room models.Room
	if err := json.Unmarshal(respBody, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w, raw response: %s", err, string(respBody))
	}
	return &room, nil
}

// GetRoom fetches the full room state.
func (c *GamesNightClient) GetRoom(ctx context.Context, roomID int64) (*models.Room, error) {
	respBody, err := c.Get(ctx, fmt.Sprintf(RoomEndpoint, roomID))
	if err != nil {
		return nil, err
	}

	var room models.Room
	if err := json.Unmarshal(respBody, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &room, nil
}

// GetRoomByInvite resolves an invite code to a room without requiring
// prior membership.
func (c *GamesNightClient) GetRoomByInvite(ctx context.Context, inviteCode string) (*models.Room, error) {
	respBody, err := c.Get(ctx, fmt.Sprintf(RoomInviteEndpoint, inviteCode))
	if err != nil {
		return nil, err
	}

	var room models.Room
	if err := json.Unmarshal(respBody, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &room, nil
}

// JoinRoom joins a room as the current user.
func (c *GamesNightClient) JoinRoom(ctx context.Context, roomID int64) (*models.Participant, error) {
	return c.join(ctx, fmt.Sprintf(JoinRoomEndpoint, roomID), JoinRoomRequest{})
}

// JoinRoomAsGuest joins a room with a display name and no account.
func (c *GamesNightClient) JoinRoomAsGuest(ctx context.Context, roomID int64, guestName string) (*models.Participant, error) {
	return c.join(ctx, fmt.Sprintf(JoinGuestEndpoint, roomID), JoinRoomRequest{GuestName: guestName})
}

func (c *GamesNightClient) join(ctx context.Context, endpoint string, req JoinRoomRequest) (*models.Participant, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := c.Post(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var participant models.Participant
	if err := json.Unmarshal(respBody, &participant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participant: %w", err)
	}
	return &participant, nil
}

// ApproveParticipant marks a pending participant as approved. Host only;
// the server enforces this.
func (c *GamesNightClient) ApproveParticipant(ctx context.Context, roomID, participantID int64) error {
	_, err := c.Put(ctx, fmt.Sprintf(ApproveEndpoint, roomID, participantID), nil)
	return err
}

// GetParticipants fetches the room's participant list.
func (c *GamesNightClient) GetParticipants(ctx context.Context, roomID int64) ([]models.Participant, error) {
	respBody, err := c.Get(ctx, fmt.Sprintf(ParticipantsEndpoint, roomID))
	if err != nil {
		return nil, err
	}

	var participants []models.Participant
	if err := json.Unmarshal(respBody, &participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	return participants, nil
}
