package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Socket is the subset of *websocket.Conn the connection uses. Tests
// substitute an in-memory implementation.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// DialFunc opens one websocket to the given URL. The *http.Response is the
// handshake response and may be non-nil even on error.
type DialFunc func(ctx context.Context, rawURL string) (Socket, *http.Response, error)

func gorillaDial(ctx context.Context, rawURL string) (Socket, *http.Response, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, resp, err
	}
	return conn, resp, nil
}

// Config holds the channel connection configuration.
type Config struct {
	URL string // websocket base URL, e.g. ws://localhost:8000

	CallTimeout       time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	Clock clockwork.Clock
	Dial  DialFunc
}

// DefaultConfig returns the production channel configuration.
func DefaultConfig(rawURL string) Config {
	return Config{
		URL:               rawURL,
		CallTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		Clock:             clockwork.NewRealClock(),
		Dial:              gorillaDial,
	}
}

type ackResult struct {
	data json.RawMessage
	err  error
}

type pendingCall struct {
	command string
	ch      chan ackResult
}

// Conn owns the single logical channel to the server: connect/disconnect,
// bounded reconnection, inbound event forwarding to the Router, and
// acknowledged outbound commands. At most one live connection exists at a
// time; connecting again supersedes the previous one and the stale socket
// delivers no further events.
type Conn struct {
	config Config
	router *Router
	clock  clockwork.Clock
	dial   DialFunc

	mu                sync.Mutex
	sock              Socket
	epoch             uint64
	connected         bool
	manualClose       bool
	token             string
	attemptsRemaining int
	pending           map[string]pendingCall
	stopPing          chan struct{}

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

// NewConn creates a channel connection that forwards inbound events to
// router. It does not connect; call Connect with a token.
func NewConn(config Config, router *Router) *Conn {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.Dial == nil {
		config.Dial = gorillaDial
	}
	return &Conn{
		config:            config,
		router:            router,
		clock:             config.Clock,
		dial:              config.Dial,
		attemptsRemaining: config.ReconnectAttempts,
		pending:           make(map[string]pendingCall),
	}
}

// Connect opens the channel authenticated with token. A call while already
// connected supersedes the previous channel. Handshake rejection with
// 401/403 returns ErrAuthFailed and is not retried.
func (c *Conn) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.connected {
		log.Info().Msg("superseding existing channel connection")
		c.teardownLocked()
	}
	c.manualClose = false
	c.token = token
	c.mu.Unlock()

	if err := c.establish(ctx, token); err != nil {
		return err
	}

	c.mu.Lock()
	c.attemptsRemaining = c.config.ReconnectAttempts
	c.mu.Unlock()
	return nil
}

// Disconnect closes the channel and rejects every outstanding call.
// Idempotent if already disconnected.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	wasConnected := c.connected
	c.manualClose = true
	c.teardownLocked()
	c.mu.Unlock()

	if wasConnected {
		log.Info().Msg("channel disconnected")
		c.router.Emit(EventDisconnected, nil)
	}
}

// Connected reports whether the channel is live.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// AttemptsRemaining reports how many automatic reconnect attempts are left
// before the connection goes terminal.
func (c *Conn) AttemptsRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptsRemaining
}

// Call sends an acknowledged command and blocks until the matching ack or
// error arrives, the call times out, or ctx is done. A disconnect while
// the call is outstanding rejects it with ErrConnectionClosed.
func (c *Conn) Call(ctx context.Context, command string, payload interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", command, err)
	}

	ackID := uuid.New().String()
	ch := make(chan ackResult, 1)

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	sock := c.sock
	c.pending[ackID] = pendingCall{command: command, ch: ch}
	c.mu.Unlock()

	if err := c.writeEnvelope(sock, Envelope{Event: command, Data: data, AckID: ackID}); err != nil {
		c.removePending(ackID)
		return nil, fmt.Errorf("failed to send %s: %w", command, err)
	}

	select {
	case res := <-ch:
		return res.data, res.err
	case <-c.clock.After(c.config.CallTimeout):
		c.removePending(ackID)
		return nil, fmt.Errorf("%s: %w", command, ErrCallTimeout)
	case <-ctx.Done():
		c.removePending(ackID)
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget command. Used for high-frequency,
// loss-tolerant signals like drawing strokes.
func (c *Conn) Notify(command string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", command, err)
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	sock := c.sock
	c.mu.Unlock()

	return c.writeEnvelope(sock, Envelope{Event: command, Data: data})
}

func (c *Conn) establish(ctx context.Context, token string) error {
	sock, resp, err := c.dial(ctx, c.wsURL(token))
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: handshake status %d", ErrAuthFailed, resp.StatusCode)
		}
		return fmt.Errorf("failed to dial channel: %w", err)
	}

	sock.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	c.mu.Lock()
	if c.manualClose {
		// Disconnect raced the dial; drop the fresh socket.
		c.mu.Unlock()
		sock.Close()
		return ErrConnectionClosed
	}
	if c.sock != nil {
		// A concurrent establish installed its socket first; supersede
		// it so only one channel stays live.
		c.teardownLocked()
	}
	c.epoch++
	epoch := c.epoch
	c.sock = sock
	c.connected = true
	stop := make(chan struct{})
	c.stopPing = stop
	c.mu.Unlock()

	go c.readPump(epoch, sock)
	go c.pingLoop(sock, stop)

	log.Info().Str("url", c.config.URL).Msg("channel connected")
	c.router.Emit(EventConnected, nil)
	return nil
}

// teardownLocked closes the live socket, invalidates its pumps, and
// rejects every outstanding call. Caller holds c.mu.
func (c *Conn) teardownLocked() {
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
	c.connected = false
	c.epoch++
	for id, p := range c.pending {
		p.ch <- ackResult{err: fmt.Errorf("%s: %w", p.command, ErrConnectionClosed)}
		delete(c.pending, id)
	}
}

func (c *Conn) readPump(epoch uint64, sock Socket) {
	for {
		_, msg, err := sock.ReadMessage()
		if err != nil {
			c.handleReadError(epoch, err)
			return
		}
		sock.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			log.Warn().Err(err).Msg("discarding malformed channel frame")
			continue
		}

		c.mu.Lock()
		stale := c.epoch != epoch
		c.mu.Unlock()
		if stale {
			return
		}

		if env.Event == eventAck {
			c.resolveAck(env)
			continue
		}
		c.router.Emit(env.Event, env.Data)
	}
}

func (c *Conn) handleReadError(epoch uint64, err error) {
	c.mu.Lock()
	if c.epoch != epoch {
		// Superseded or explicitly closed; that path already cleaned up.
		c.mu.Unlock()
		return
	}
	token := c.token
	c.teardownLocked()
	c.mu.Unlock()

	log.Warn().Err(err).Msg("channel connection lost")
	c.router.Emit(EventDisconnected, nil)

	go c.reconnectLoop(token)
}

// reconnectLoop retries the connection after an unexpected drop, up to the
// attempt budget with a fixed delay. Exhausting the budget leaves the
// connection terminally disconnected until an explicit Connect.
func (c *Conn) reconnectLoop(token string) {
	for {
		c.mu.Lock()
		if c.manualClose || c.connected || c.attemptsRemaining <= 0 {
			c.mu.Unlock()
			return
		}
		c.attemptsRemaining--
		remaining := c.attemptsRemaining
		c.mu.Unlock()

		<-c.clock.After(c.config.ReconnectDelay)

		c.mu.Lock()
		if c.manualClose || c.connected {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		err := c.establish(context.Background(), token)
		if err == nil {
			c.mu.Lock()
			c.attemptsRemaining = c.config.ReconnectAttempts
			c.mu.Unlock()
			return
		}

		if errors.Is(err, ErrAuthFailed) {
			log.Error().Err(err).Msg("reconnect rejected by server, giving up")
			c.emitError("channel authentication failed")
			return
		}
		if remaining <= 0 {
			log.Error().Err(err).Int("attempts", c.config.ReconnectAttempts).Msg("reconnect attempts exhausted")
			c.emitError("reconnect attempts exhausted")
			return
		}
		log.Warn().Err(err).Int("attempts_remaining", remaining).Msg("reconnect attempt failed")
	}
}

func (c *Conn) resolveAck(env Envelope) {
	c.mu.Lock()
	p, ok := c.pending[env.AckID]
	if ok {
		delete(c.pending, env.AckID)
	}
	c.mu.Unlock()

	if !ok {
		log.Debug().Str("ack_id", env.AckID).Msg("ack with no matching pending call")
		return
	}

	var ack ackPayload
	if env.Data != nil {
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			p.ch <- ackResult{err: fmt.Errorf("failed to decode ack for %s: %w", p.command, err)}
			return
		}
	}
	if ack.Error != "" {
		p.ch <- ackResult{err: &CommandError{Command: p.command, Reason: ack.Error}}
		return
	}
	p.ch <- ackResult{data: env.Data}
}

func (c *Conn) removePending(ackID string) {
	c.mu.Lock()
	delete(c.pending, ackID)
	c.mu.Unlock()
}

func (c *Conn) writeEnvelope(sock Socket, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	sock.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return sock.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) pingLoop(sock Socket, stop chan struct{}) {
	ticker := c.clock.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			c.writeMu.Lock()
			sock.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			err := sock.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				log.Error().Err(err).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Conn) emitError(message string) {
	data, _ := json.Marshal(ErrorPayload{Message: message})
	c.router.Emit(EventError, data)
}

func (c *Conn) wsURL(token string) string {
	return c.config.URL + "/ws?token=" + url.QueryEscape(token)
}
