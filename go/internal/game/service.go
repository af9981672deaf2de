package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bsamson01/gamesnight/go/clients"
	"github.com/bsamson01/gamesnight/go/clients/gamesnight_client"
	"github.com/bsamson01/gamesnight/go/internal/models"
	"github.com/bsamson01/gamesnight/go/internal/realtime"
)

// API is what the game synchronizer needs from the REST client.
type API interface {
	StartGame(ctx context.Context, roomID int64) (*gamesnight_client.StartGameResponse, error)
	GetNextPrompt(ctx context.Context, roomID int64) (*gamesnight_client.NextPromptResponse, error)
	SendGameAction(ctx context.Context, roomID int64, req gamesnight_client.GameActionRequest) (json.RawMessage, error)
	EndGame(ctx context.Context, roomID int64) error
}

// Channel issues commands on the realtime connection.
type Channel interface {
	Call(ctx context.Context, command string, payload interface{}) (json.RawMessage, error)
	Notify(command string, payload interface{}) error
}

// RoomSource exposes the room context the game runs in.
type RoomSource interface {
	RoomID() (int64, bool)
	IsHost() bool
	GameSlug() string
}

// State is a snapshot of the extensible per-game state, reduced from
// tagged game_update variants.
type State struct {
	Votes   map[string]int    `json:"votes,omitempty"`
	Answers []json.RawMessage `json:"answers,omitempty"`
	Strokes []json.RawMessage `json:"strokes,omitempty"`
}

var statusRank = map[models.GameStatus]int{
	models.GameStatusWaiting: 0,
	models.GameStatusActive:  1,
	models.GameStatusEnded:   2,
}

// Service maintains game-session state from REST responses and pushed
// channel events, and issues game commands. Status only moves forward
// through waiting -> active -> ended; Reset starts a fresh session.
type Service struct {
	api     API
	channel Channel
	rooms   RoomSource
	clock   clockwork.Clock

	mu            sync.Mutex
	status        models.GameStatus
	currentPrompt *models.Prompt
	promptCount   int
	timer         models.Timer
	votes         map[string]int
	answers       []json.RawMessage
	strokes       []json.RawMessage
	lastErr       string
	subs          []func()
}

func NewService(api API, channel Channel, rooms RoomSource, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		api:     api,
		channel: channel,
		rooms:   rooms,
		clock:   clock,
		status:  models.GameStatusWaiting,
	}
}

// Register subscribes the synchronizer to the game-scoped channel events.
func (s *Service) Register(router *realtime.Router) {
	router.On(realtime.EventGameUpdate, func(data json.RawMessage) {
		var payload realtime.GameUpdatePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn().Err(err).Msg("malformed game_update payload")
			return
		}
		s.UpdateGameState(payload)
	})

	router.On(realtime.EventTimerSync, func(data json.RawMessage) {
		var payload realtime.TimerSyncPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn().Err(err).Msg("malformed timer_sync payload")
			return
		}
		s.SyncTimer(payload.T0, payload.Duration)
	})

	router.On(realtime.EventStrokeUpdate, func(data json.RawMessage) {
		var payload realtime.StrokeUpdatePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		s.addStroke(payload.Stroke)
	})
}

// StartGame starts the game and fetches the first prompt. Host only: a
// no-op when this client is not host or no room is loaded.
func (s *Service) StartGame(ctx context.Context) error {
	roomID, ok := s.rooms.RoomID()
	if !ok || !s.rooms.IsHost() {
		return nil
	}

	resp, err := s.api.StartGame(ctx, roomID)
	if err != nil {
		return s.fail("Failed to start game", err)
	}

	s.mu.Lock()
	s.promptCount = resp.PromptCount
	s.advanceLocked(models.GameStatusActive)
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()

	_, err = s.GetNextPrompt(ctx)
	return err
}

// GetNextPrompt advances the prompt deck. A reply signaling exhaustion
// clears the current prompt and ends the session; this and EndGame are the
// only paths to the ended state.
func (s *Service) GetNextPrompt(ctx context.Context) (*gamesnight_client.NextPromptResponse, error) {
	roomID, ok := s.rooms.RoomID()
	if !ok {
		return nil, nil
	}

	resp, err := s.api.GetNextPrompt(ctx, roomID)
	if err != nil {
		return nil, s.fail("Failed to get prompt", err)
	}

	s.mu.Lock()
	if resp.Success {
		s.currentPrompt = resp.Prompt
	} else {
		s.currentPrompt = nil
		s.advanceLocked(models.GameStatusEnded)
	}
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()
	return resp, nil
}

// SendGameAction forwards an action over REST. It never mutates local game
// state; changes arrive later as pushed events.
func (s *Service) SendGameAction(ctx context.Context, action string, data map[string]interface{}) (json.RawMessage, error) {
	roomID, ok := s.rooms.RoomID()
	if !ok {
		return nil, nil
	}

	resp, err := s.api.SendGameAction(ctx, roomID, gamesnight_client.GameActionRequest{Action: action, Data: data})
	if err != nil {
		return nil, s.fail("Failed to send action", err)
	}
	return resp, nil
}

// SendRealtimeAction issues an acknowledged game_action command on the
// channel for actions that need low latency rather than durability.
func (s *Service) SendRealtimeAction(ctx context.Context, actionType string, data json.RawMessage) error {
	_, err := s.channel.Call(ctx, realtime.CommandGameAction, realtime.GameActionPayload{Type: actionType, Data: data})
	if err != nil {
		return s.fail("Failed to send action", err)
	}
	return nil
}

// EndGame forces the session to ended. Host only: a no-op when this
// client is not host or no room is loaded.
func (s *Service) EndGame(ctx context.Context) error {
	roomID, ok := s.rooms.RoomID()
	if !ok || !s.rooms.IsHost() {
		return nil
	}

	if err := s.api.EndGame(ctx, roomID); err != nil {
		return s.fail("Failed to end game", err)
	}

	s.mu.Lock()
	s.advanceLocked(models.GameStatusEnded)
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()
	return nil
}

// StartTimer asks the server to begin an authoritative countdown. Local
// timer fields are only set when the server pushes the timer_sync back.
func (s *Service) StartTimer(ctx context.Context, duration int) error {
	_, err := s.channel.Call(ctx, realtime.CommandStartTimer, realtime.StartTimerPayload{Duration: duration})
	if err != nil {
		return s.fail("Failed to start timer", err)
	}
	return nil
}

// SyncTimer records the server-authoritative epoch start and duration and
// recomputes the derived remaining time.
func (s *Service) SyncTimer(t0 float64, duration int) {
	s.mu.Lock()
	s.timer.T0 = t0
	s.timer.Duration = duration
	s.updateRemainingLocked()
	s.mu.Unlock()
	s.notify()
}

// UpdateTimerRemaining recomputes the derived remaining seconds from the
// authoritative (t0, duration) pair. Pure recomputation: callable any
// number of times, never negative, saturating at the full duration when
// sampled before t0.
func (s *Service) UpdateTimerRemaining() {
	s.mu.Lock()
	s.updateRemainingLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Service) updateRemainingLocked() {
	if s.timer.T0 == 0 {
		return
	}
	now := float64(s.clock.Now().UnixNano()) / 1e9
	remaining := float64(s.timer.Duration) - (now - s.timer.T0)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > float64(s.timer.Duration) {
		remaining = float64(s.timer.Duration)
	}
	s.timer.Remaining = remaining
}

// UpdateGameState reduces one pushed game_update into local state, keyed
// by the update's type. Unrecognized types are ignored by design; new game
// types extend the switch.
func (s *Service) UpdateGameState(update realtime.GameUpdatePayload) {
	switch update.Type {
	case "vote_update":
		var data struct {
			VoteCounts map[string]int `json:"vote_counts"`
		}
		if err := json.Unmarshal(update.Data, &data); err != nil {
			log.Warn().Err(err).Msg("malformed vote_update data")
			return
		}
		s.mu.Lock()
		s.votes = data.VoteCounts
		s.mu.Unlock()
		s.notify()

	case "player_answer":
		s.mu.Lock()
		s.answers = append(s.answers, update.Data)
		s.mu.Unlock()
		s.notify()

	default:
		log.Debug().Str("type", update.Type).Msg("ignoring unrecognized game update")
	}
}

// SendDrawingStroke sends a stroke fire-and-forget; strokes are
// high-frequency and loss-tolerant.
func (s *Service) SendDrawingStroke(stroke json.RawMessage) {
	if err := s.channel.Notify(realtime.CommandDrawingStroke, realtime.DrawingStrokePayload{Stroke: stroke}); err != nil {
		log.Debug().Err(err).Msg("dropped drawing stroke")
	}
}

func (s *Service) addStroke(stroke json.RawMessage) {
	s.mu.Lock()
	s.strokes = append(s.strokes, stroke)
	s.mu.Unlock()
	s.notify()
}

// Reset returns the synchronizer to its initial waiting state with empty
// prompt, timer and game state.
func (s *Service) Reset() {
	s.mu.Lock()
	s.status = models.GameStatusWaiting
	s.currentPrompt = nil
	s.promptCount = 0
	s.timer = models.Timer{}
	s.votes = nil
	s.answers = nil
	s.strokes = nil
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()
}

// advanceLocked moves the status forward only; a regression is discarded.
// Caller holds s.mu.
func (s *Service) advanceLocked(next models.GameStatus) {
	if statusRank[next] < statusRank[s.status] {
		log.Warn().
			Str("from", string(s.status)).
			Str("to", string(next)).
			Msg("discarding game status regression")
		return
	}
	s.status = next
}

func (s *Service) Status() models.GameStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Service) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == models.GameStatusActive
}

// CurrentPrompt returns a copy of the active prompt, or nil between
// prompts.
func (s *Service) CurrentPrompt() *models.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentPrompt == nil {
		return nil
	}
	prompt := *s.currentPrompt
	return &prompt
}

func (s *Service) PromptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promptCount
}

func (s *Service) Timer() models.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer
}

// TimerExpired reports whether a synced timer has run out.
func (s *Service) TimerExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer.T0 != 0 && s.timer.Remaining <= 0
}

// GameState returns a snapshot of the reduced per-game state.
func (s *Service) GameState() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := State{}
	if s.votes != nil {
		state.Votes = make(map[string]int, len(s.votes))
		for k, v := range s.votes {
			state.Votes[k] = v
		}
	}
	state.Answers = append(state.Answers, s.answers...)
	state.Strokes = append(state.Strokes, s.strokes...)
	return state
}

// GameType returns the slug of the game the loaded room plays.
func (s *Service) GameType() string {
	return s.rooms.GameSlug()
}

// LastError returns the latest surfaced error message.
func (s *Service) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Subscribe registers fn to run after every state change.
func (s *Service) Subscribe(fn func()) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Service) notify() {
	s.mu.Lock()
	subs := make([]func(), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

func (s *Service) fail(fallback string, err error) error {
	message := fallback
	var apiErr *clients.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		message = apiErr.Detail
	}

	s.mu.Lock()
	s.lastErr = message
	s.mu.Unlock()
	return err
}
