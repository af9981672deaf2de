package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSocket is an in-memory Socket. Frames pushed to in are read by the
// pump; outbound text frames are decoded onto writes.
type fakeSocket struct {
	in        chan []byte
	writes    chan Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan []byte, 16),
		writes: make(chan Envelope, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.in:
		return websocket.TextMessage, msg, nil
	case <-f.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("use of closed connection")
	default:
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	f.writes <- env
	return nil
}

func (f *fakeSocket) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeSocket) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeSocket) SetPongHandler(func(string) error) {}

func (f *fakeSocket) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSocket) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func testConfig(dial DialFunc, clock clockwork.Clock) Config {
	cfg := DefaultConfig("ws://test")
	cfg.Dial = dial
	cfg.Clock = clock
	cfg.ReconnectDelay = time.Millisecond
	return cfg
}

func dialTo(sock *fakeSocket) DialFunc {
	return func(context.Context, string) (Socket, *http.Response, error) {
		return sock, nil, nil
	}
}

func TestConnectEmitsConnected(t *testing.T) {
	router := NewRouter()
	sock := newFakeSocket()
	conn := NewConn(testConfig(dialTo(sock), nil), router)

	connected := 0
	router.On(EventConnected, func(json.RawMessage) { connected++ })

	require.NoError(t, conn.Connect(context.Background(), "tok"))
	assert.True(t, conn.Connected())
	assert.Equal(t, 1, connected)
	assert.Equal(t, 5, conn.AttemptsRemaining())
}

func TestForwardsInboundEventsToRouter(t *testing.T) {
	router := NewRouter()
	sock := newFakeSocket()
	conn := NewConn(testConfig(dialTo(sock), nil), router)

	got := make(chan json.RawMessage, 1)
	router.On(EventUserJoined, func(data json.RawMessage) { got <- data })

	require.NoError(t, conn.Connect(context.Background(), "tok"))
	sock.in <- []byte(`{"event":"user_joined","data":{"user_id":7}}`)

	select {
	case data := <-got:
		assert.JSONEq(t, `{"user_id":7}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}
}

func TestCallResolvedByAck(t *testing.T) {
	router := NewRouter()
	sock := newFakeSocket()
	conn := NewConn(testConfig(dialTo(sock), nil), router)
	require.NoError(t, conn.Connect(context.Background(), "tok"))

	go func() {
		env := <-sock.writes
		ack := fmt.Sprintf(`{"event":"ack","ack_id":%q,"data":{"success":true,"room_id":42}}`, env.AckID)
		sock.in <- []byte(ack)
	}()

	data, err := conn.Call(context.Background(), CommandJoinRoom, JoinRoomPayload{RoomID: 42})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"room_id":42}`, string(data))
}

func TestCallRejectedByErrorAck(t *testing.T) {
	router := NewRouter()
	sock := newFakeSocket()
	conn := NewConn(testConfig(dialTo(sock), nil), router)
	require.NoError(t, conn.Connect(context.Background(), "tok"))

	go func() {
		env := <-sock.writes
		sock.in <- []byte(fmt.Sprintf(`{"event":"ack","ack_id":%q,"data":{"error":"Room not found"}}`, env.AckID))
	}()

	_, err := conn.Call(context.Background(), CommandJoinRoom, JoinRoomPayload{RoomID: 42})

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, CommandJoinRoom, cmdErr.Command)
	assert.Equal(t, "Room not found", cmdErr.Reason)
}

func TestDisconnectRejectsPendingCalls(t *testing.T) {
	router := NewRouter()
	sock := newFakeSocket()
	conn := NewConn(testConfig(dialTo(sock), nil), router)
	require.NoError(t, conn.Connect(context.Background(), "tok"))

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Call(context.Background(), CommandStartTimer, StartTimerPayload{Duration: 30})
		errCh <- err
	}()

	<-sock.writes // command is on the wire, call is pending
	conn.Disconnect()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(time.Second):
		t.Fatal("pending call was never rejected")
	}
	assert.False(t, conn.Connected())
}

func TestCallTimesOut(t *testing.T) {
	router := NewRouter()
	sock := newFakeSocket()
	clock := clockwork.NewFakeClock()
	cfg := testConfig(dialTo(sock), clock)
	conn := NewConn(cfg, router)
	require.NoError(t, conn.Connect(context.Background(), "tok"))

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Call(context.Background(), CommandStartTimer, StartTimerPayload{Duration: 30})
		errCh <- err
	}()

	<-sock.writes
	// Two waiters on the fake clock: the ping ticker and the call timeout.
	clock.BlockUntil(2)
	clock.Advance(cfg.CallTimeout)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCallTimeout)
	case <-time.After(time.Second):
		t.Fatal("call never timed out")
	}
}

func TestCallWhenDisconnected(t *testing.T) {
	router := NewRouter()
	conn := NewConn(testConfig(dialTo(newFakeSocket()), nil), router)

	_, err := conn.Call(context.Background(), CommandJoinRoom, JoinRoomPayload{RoomID: 1})
	assert.ErrorIs(t, err, ErrNotConnected)

	err = conn.Notify(CommandDrawingStroke, DrawingStrokePayload{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestReconnectExhaustsBudgetThenStops(t *testing.T) {
	router := NewRouter()
	sock := newFakeSocket()
	later := newFakeSocket()

	var dials int32
	dial := func(context.Context, string) (Socket, *http.Response, error) {
		switch n := atomic.AddInt32(&dials, 1); {
		case n == 1:
			return sock, nil, nil
		case n >= 7:
			return later, nil, nil
		default:
			return nil, nil, errors.New("dial refused")
		}
	}

	conn := NewConn(testConfig(dial, nil), router)
	require.NoError(t, conn.Connect(context.Background(), "tok"))

	// Simulate an unexpected server-side drop.
	sock.Close()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&dials) == 6
	}, 2*time.Second, 2*time.Millisecond, "expected 1 initial dial + 5 reconnect attempts")

	assert.False(t, conn.Connected())
	assert.Equal(t, 0, conn.AttemptsRemaining())

	// Budget exhausted: no further automatic attempts.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(6), atomic.LoadInt32(&dials))

	// A manual connect recovers and resets the budget.
	require.NoError(t, conn.Connect(context.Background(), "tok"))
	assert.True(t, conn.Connected())
	assert.Equal(t, 5, conn.AttemptsRemaining())
}

func TestReconnectResumesOnSuccess(t *testing.T) {
	router := NewRouter()
	first := newFakeSocket()
	second := newFakeSocket()

	var dials int32
	dial := func(context.Context, string) (Socket, *http.Response, error) {
		if atomic.AddInt32(&dials, 1) == 1 {
			return first, nil, nil
		}
		return second, nil, nil
	}

	conn := NewConn(testConfig(dial, nil), router)
	require.NoError(t, conn.Connect(context.Background(), "tok"))

	first.Close()

	require.Eventually(t, conn.Connected, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, 5, conn.AttemptsRemaining())
}

func TestConnectAuthFailureIsTerminal(t *testing.T) {
	router := NewRouter()
	dial := func(context.Context, string) (Socket, *http.Response, error) {
		return nil, &http.Response{StatusCode: http.StatusUnauthorized}, errors.New("bad handshake")
	}

	conn := NewConn(testConfig(dial, nil), router)
	err := conn.Connect(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.False(t, conn.Connected())
}

func TestReconnectStopsOnAuthFailure(t *testing.T) {
	router := NewRouter()
	sock := newFakeSocket()

	var dials int32
	dial := func(context.Context, string) (Socket, *http.Response, error) {
		if atomic.AddInt32(&dials, 1) == 1 {
			return sock, nil, nil
		}
		return nil, &http.Response{StatusCode: http.StatusUnauthorized}, errors.New("bad handshake")
	}

	conn := NewConn(testConfig(dial, nil), router)
	require.NoError(t, conn.Connect(context.Background(), "tok"))

	sock.Close()

	// Exactly one reconnect attempt: the auth rejection is terminal.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&dials) == 2
	}, 2*time.Second, 2*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&dials))
	assert.False(t, conn.Connected())
}

func TestConnectSupersedesPreviousChannel(t *testing.T) {
	router := NewRouter()
	first := newFakeSocket()
	second := newFakeSocket()

	var dials int32
	dial := func(context.Context, string) (Socket, *http.Response, error) {
		if atomic.AddInt32(&dials, 1) == 1 {
			return first, nil, nil
		}
		return second, nil, nil
	}

	conn := NewConn(testConfig(dial, nil), router)

	got := make(chan json.RawMessage, 2)
	router.On(EventUserJoined, func(data json.RawMessage) { got <- data })

	require.NoError(t, conn.Connect(context.Background(), "tok"))
	require.NoError(t, conn.Connect(context.Background(), "tok"))
	assert.True(t, conn.Connected())

	// The stale socket must not deliver further events.
	first.in <- []byte(`{"event":"user_joined","data":{"user_id":1}}`)
	second.in <- []byte(`{"event":"user_joined","data":{"user_id":2}}`)

	select {
	case data := <-got:
		assert.JSONEq(t, `{"user_id":2}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("event from live socket not forwarded")
	}

	time.Sleep(20 * time.Millisecond)
	select {
	case data := <-got:
		t.Fatalf("stale socket delivered event: %s", data)
	default:
	}
}

func TestConcurrentConnectLeavesOneLiveChannel(t *testing.T) {
	router := NewRouter()
	socks := []*fakeSocket{newFakeSocket(), newFakeSocket()}

	// Hold both dials open until both are in flight, so neither connect
	// observes the other's socket before dialing.
	var dials int32
	var inFlight sync.WaitGroup
	inFlight.Add(2)
	dial := func(context.Context, string) (Socket, *http.Response, error) {
		n := atomic.AddInt32(&dials, 1) - 1
		inFlight.Done()
		inFlight.Wait()
		return socks[n], nil, nil
	}

	conn := NewConn(testConfig(dial, nil), router)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, conn.Connect(context.Background(), "tok"))
		}()
	}
	wg.Wait()

	assert.True(t, conn.Connected())

	// The losing socket must already be closed, and Disconnect must close
	// the winner: no orphaned channel or ping loop survives.
	conn.Disconnect()
	assert.False(t, conn.Connected())
	assert.True(t, socks[0].isClosed())
	assert.True(t, socks[1].isClosed())
}

func TestNotifySendsWithoutAckID(t *testing.T) {
	router := NewRouter()
	sock := newFakeSocket()
	conn := NewConn(testConfig(dialTo(sock), nil), router)
	require.NoError(t, conn.Connect(context.Background(), "tok"))

	require.NoError(t, conn.Notify(CommandDrawingStroke, DrawingStrokePayload{Stroke: json.RawMessage(`{"x":1}`)}))

	env := <-sock.writes
	assert.Equal(t, CommandDrawingStroke, env.Event)
	assert.Empty(t, env.AckID)
}
