// ABOUTME: Tests for the push manager: backoff schedule, heartbeat, teardown.
// ABOUTME: Uses a fake dialer and captured timers; goleak proves nothing leaks.

package push

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gauravksahni/ai-chatbot/internal/chat"
	"github.com/gauravksahni/ai-chatbot/internal/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeConn is an in-process stand-in for a websocket connection.
type fakeConn struct {
	mu       sync.Mutex
	inbound  chan []byte
	writes   [][]byte
	done     chan struct{}
	doneOnce sync.Once
	readErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return 0, nil, c.readErr
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.writes = append(c.writes, data)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.failWith(errors.New("use of closed connection"))
	return nil
}

// failWith terminates the read loop with the given error.
func (c *fakeConn) failWith(err error) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.readErr = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *fakeConn) deliver(t *testing.T, data string) {
	t.Helper()
	select {
	case c.inbound <- []byte(data):
	case <-time.After(time.Second):
		t.Fatal("fake conn inbound buffer full")
	}
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// fakeDialer hands out fake connections, or fails every dial.
type fakeDialer struct {
	mu    sync.Mutex
	fail  bool
	conns []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) latest() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// timerCapture records scheduled reconnect delays instead of running timers.
type timerCapture struct {
	mu        sync.Mutex
	delays    []time.Duration
	callbacks []func()
}

func (tc *timerCapture) afterFunc(d time.Duration, f func()) *time.Timer {
	tc.mu.Lock()
	tc.delays = append(tc.delays, d)
	tc.callbacks = append(tc.callbacks, f)
	tc.mu.Unlock()
	return time.NewTimer(time.Hour)
}

func (tc *timerCapture) count() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.delays)
}

func (tc *timerCapture) fire(i int) {
	tc.mu.Lock()
	cb := tc.callbacks[i]
	tc.mu.Unlock()
	cb()
}

func newTestManager(t *testing.T, dialer Dialer, opts Options) (*Manager, *events.Bus, *timerCapture) {
	t.Helper()
	bus := events.NewBus(nil)
	opts.Dialer = dialer
	m := NewManager("ws://test", bus, opts)
	tc := &timerCapture{}
	m.afterFunc = tc.afterFunc
	t.Cleanup(m.Close)
	return m, bus, tc
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.State() == want
	}, 2*time.Second, time.Millisecond, "want state %s, have %s", want, m.State())
}

func TestManager_Open_ReachesOpenState(t *testing.T) {
	dialer := &fakeDialer{}
	m, bus, _ := newTestManager(t, dialer, Options{})

	var openEvents int
	var mu sync.Mutex
	bus.Subscribe(events.KindOpen, func(events.Event) {
		mu.Lock()
		openEvents++
		mu.Unlock()
	})

	m.Open("token")
	waitForState(t, m, StateOpen)

	mu.Lock()
	assert.Equal(t, 1, openEvents)
	mu.Unlock()
}

func TestManager_Open_ClosesPreviousConnection(t *testing.T) {
	dialer := &fakeDialer{}
	m, _, _ := newTestManager(t, dialer, Options{})

	m.Open("token")
	waitForState(t, m, StateOpen)
	first := dialer.latest()

	m.Open("token")
	waitForState(t, m, StateOpen)

	require.Equal(t, 2, dialer.dialCount())
	select {
	case <-first.done:
		// first connection was closed
	case <-time.After(time.Second):
		t.Fatal("previous connection was not closed")
	}
}

// gateDialer records dial URLs and blocks the first gated dials until
// released, so a test can issue a second Open while one is in flight.
type gateDialer struct {
	mu      sync.Mutex
	urls    []string
	release chan struct{}
	gated   int
}

func (d *gateDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	block := len(d.urls) <= d.gated
	d.mu.Unlock()

	if block {
		<-d.release
	}
	return newFakeConn(), nil
}

func (d *gateDialer) urlCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func TestManager_Open_WhileDialInFlight_UsesNewCredential(t *testing.T) {
	dialer := &gateDialer{gated: 1, release: make(chan struct{})}
	m, _, _ := newTestManager(t, dialer, Options{})

	m.Open("token-one")
	require.Eventually(t, func() bool { return dialer.urlCount() == 1 }, time.Second, time.Millisecond)

	// A second Open while the first dial is still in flight must dial the new
	// credential's endpoint, not re-read state the first dial started from.
	m.Open("token-two")
	require.Eventually(t, func() bool { return dialer.urlCount() == 2 }, time.Second, time.Millisecond)

	close(dialer.release)
	waitForState(t, m, StateOpen)

	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	assert.True(t, strings.HasSuffix(dialer.urls[0], "/chat/ws/token-one"), "first dial: %s", dialer.urls[0])
	assert.True(t, strings.HasSuffix(dialer.urls[1], "/chat/ws/token-two"), "second dial: %s", dialer.urls[1])
}

// gateFailDialer blocks every dial until released, then fails it.
type gateFailDialer struct {
	release chan struct{}
}

func (d *gateFailDialer) Dial(context.Context, string) (Conn, error) {
	<-d.release
	return nil, errors.New("connection refused")
}

func TestManager_CloseOrphansInFlightDial_NoErrorEvent(t *testing.T) {
	dialer := &gateFailDialer{release: make(chan struct{})}
	m, bus, timers := newTestManager(t, dialer, Options{})

	errs := make(chan events.Event, 4)
	bus.Subscribe(events.KindError, func(ev events.Event) { errs <- ev })

	m.Open("token")
	m.Close()
	close(dialer.release)

	// The dial failure belongs to a superseded generation: no error event,
	// no reconnect schedule, state stays down.
	time.Sleep(20 * time.Millisecond)
	select {
	case ev := <-errs:
		t.Fatalf("unexpected error event after close: %#v", ev)
	default:
	}
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, 0, timers.count())
}

func TestManager_Send_NotConnected(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeDialer{fail: true}, Options{})

	err := m.Send(chat.OutboundFrame{Message: "hello"})
	assert.ErrorIs(t, err, chat.ErrNotConnected)
}

func TestManager_Send_WhenOpen(t *testing.T) {
	dialer := &fakeDialer{}
	m, _, _ := newTestManager(t, dialer, Options{})

	m.Open("token")
	waitForState(t, m, StateOpen)

	require.NoError(t, m.Send(chat.OutboundFrame{Message: "hello"}))
	assert.Equal(t, 1, dialer.latest().writeCount())
}

func TestManager_Backoff_Schedule(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	m, _, timers := newTestManager(t, dialer, Options{})

	m.Open("token")
	waitForState(t, m, StateReconnecting)
	require.Eventually(t, func() bool { return timers.count() == 1 }, time.Second, time.Millisecond)

	// Each timer fire redials synchronously; the dial fails and schedules
	// the next attempt before fire returns.
	for i := 0; i < 4; i++ {
		timers.fire(i)
		require.Equal(t, i+2, timers.count())
	}

	// The 6th consecutive failure exhausts the budget.
	timers.fire(4)
	assert.Equal(t, StateFailed, m.State())
	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}, timers.delays)
}

func TestManager_Open_ResetsRetryBudgetAfterFailed(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	m, _, timers := newTestManager(t, dialer, Options{})

	m.Open("token")
	waitForState(t, m, StateReconnecting)
	require.Eventually(t, func() bool { return timers.count() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 5; i++ {
		timers.fire(i)
	}
	require.Equal(t, StateFailed, m.State())

	// A fresh manual open starts over with the base delay.
	m.Open("token")
	waitForState(t, m, StateReconnecting)
	require.Eventually(t, func() bool { return timers.count() == 6 }, time.Second, time.Millisecond)
	assert.Equal(t, 1000*time.Millisecond, timers.delays[5])
}

func TestManager_CleanClose_NoReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	m, bus, timers := newTestManager(t, dialer, Options{})

	var closedClean bool
	var mu sync.Mutex
	bus.Subscribe(events.KindClose, func(ev events.Event) {
		mu.Lock()
		closedClean = ev.(events.Closed).Clean
		mu.Unlock()
	})

	m.Open("token")
	waitForState(t, m, StateOpen)

	dialer.latest().failWith(&websocket.CloseError{Code: websocket.CloseNormalClosure})
	waitForState(t, m, StateDisconnected)

	assert.Equal(t, 0, timers.count())
	mu.Lock()
	assert.True(t, closedClean)
	mu.Unlock()
}

func TestManager_UncleanClose_SchedulesReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	m, _, timers := newTestManager(t, dialer, Options{})

	m.Open("token")
	waitForState(t, m, StateOpen)

	dialer.latest().failWith(errors.New("broken pipe"))
	waitForState(t, m, StateReconnecting)

	require.Eventually(t, func() bool { return timers.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1000*time.Millisecond, timers.delays[0])

	// The timer reconnects and a fresh dial succeeds.
	timers.fire(0)
	waitForState(t, m, StateOpen)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestManager_CloseDuringReconnecting_SuppressesRetry(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	m, _, timers := newTestManager(t, dialer, Options{})

	m.Open("token")
	waitForState(t, m, StateReconnecting)
	require.Eventually(t, func() bool { return timers.count() == 1 }, time.Second, time.Millisecond)
	dials := dialer.dialCount()

	m.Close()

	// Even if the scheduled timer were to fire, no new attempt may start.
	timers.fire(0)
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, dials, dialer.dialCount())
	assert.Equal(t, 1, timers.count())
}

func TestManager_Heartbeat_SendsPings(t *testing.T) {
	dialer := &fakeDialer{}
	m, _, _ := newTestManager(t, dialer, Options{HeartbeatInterval: 10 * time.Millisecond})

	m.Open("token")
	waitForState(t, m, StateOpen)
	conn := dialer.latest()

	require.Eventually(t, func() bool {
		return conn.writeCount() >= 3
	}, time.Second, time.Millisecond)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	for _, data := range conn.writes {
		var frame chat.OutboundFrame
		require.NoError(t, json.Unmarshal(data, &frame))
		assert.Equal(t, "__ping__", frame.Message)
		assert.Nil(t, frame.SessionID)
	}
}

func TestManager_Heartbeat_PongFiltered(t *testing.T) {
	dialer := &fakeDialer{}
	m, bus, _ := newTestManager(t, dialer, Options{})

	var mu sync.Mutex
	var frames []events.Frame
	bus.Subscribe(events.KindMessage, func(ev events.Event) {
		mu.Lock()
		frames = append(frames, ev.(events.Frame))
		mu.Unlock()
	})

	m.Open("token")
	waitForState(t, m, StateOpen)
	conn := dialer.latest()

	conn.deliver(t, `"__pong__"`)
	conn.deliver(t, `{"message":"__pong__"}`)
	conn.deliver(t, `{"message":"real reply","session_id":"s1","message_id":"m1"}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "real reply", frames[0].Message)
	assert.Equal(t, "m1", frames[0].MessageID)
}

func TestManager_MalformedFrame_DroppedConnectionStaysOpen(t *testing.T) {
	dialer := &fakeDialer{}
	m, bus, _ := newTestManager(t, dialer, Options{})

	var mu sync.Mutex
	var frames []events.Frame
	var parseErr *chat.ParseError
	bus.Subscribe(events.KindMessage, func(ev events.Event) {
		mu.Lock()
		frames = append(frames, ev.(events.Frame))
		mu.Unlock()
	})
	bus.Subscribe(events.KindError, func(ev events.Event) {
		mu.Lock()
		errors.As(ev.(events.Err).Err, &parseErr)
		mu.Unlock()
	})

	m.Open("token")
	waitForState(t, m, StateOpen)
	conn := dialer.latest()

	conn.deliver(t, `{not json`)
	conn.deliver(t, `{"message":"after garbage","session_id":"s1"}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.NotNil(t, parseErr)
	mu.Unlock()
	assert.Equal(t, StateOpen, m.State())
}

func TestManager_ErrorOnlyFrame_IsApplicationError(t *testing.T) {
	dialer := &fakeDialer{}
	m, bus, _ := newTestManager(t, dialer, Options{})

	var mu sync.Mutex
	var appErr *chat.ApplicationError
	bus.Subscribe(events.KindError, func(ev events.Event) {
		mu.Lock()
		errors.As(ev.(events.Err).Err, &appErr)
		mu.Unlock()
	})

	m.Open("token")
	waitForState(t, m, StateOpen)
	dialer.latest().deliver(t, `{"error":"rate limit exceeded"}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return appErr != nil
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, "rate limit exceeded", appErr.Message)
	mu.Unlock()
	// Application errors never close the connection.
	assert.Equal(t, StateOpen, m.State())
}
