// ABOUTME: End-to-end tests for the controller: bus wiring, lifecycle teardown,
// ABOUTME: error surfacing, and archive recording.

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauravksahni/ai-chatbot/internal/chat"
	"github.com/gauravksahni/ai-chatbot/internal/events"
	"github.com/gauravksahni/ai-chatbot/internal/push"
)

// stubConn feeds scripted frames to the manager's read loop.
type stubConn struct {
	inbound chan []byte
	done    chan struct{}
	once    sync.Once
}

func (c *stubConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return 1, data, nil
	case <-c.done:
		return 0, nil, errors.New("closed")
	}
}

func (c *stubConn) WriteJSON(v any) error { return nil }

func (c *stubConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type stubDialer struct {
	mu   sync.Mutex
	conn *stubConn
}

func (d *stubDialer) Dial(context.Context, string) (push.Conn, error) {
	conn := &stubConn{inbound: make(chan []byte, 16), done: make(chan struct{})}
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
	return conn, nil
}

func (d *stubDialer) deliver(t *testing.T, frame chat.PushFrame) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	require.NotNil(t, conn, "no live connection to deliver on")
	conn.inbound <- data
}

// memRecorder collects recorded messages.
type memRecorder struct {
	mu   sync.Mutex
	seen map[string]chat.Message
}

func newMemRecorder() *memRecorder {
	return &memRecorder{seen: make(map[string]chat.Message)}
}

func (r *memRecorder) RecordMessage(msg chat.Message) error {
	r.mu.Lock()
	r.seen[msg.ID] = msg
	r.mu.Unlock()
	return nil
}

func (r *memRecorder) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[id]
	return ok
}

type controllerFixture struct {
	api        *fakeAPI
	bus        *events.Bus
	dialer     *stubDialer
	controller *Controller
	updates    chan struct{}
	errs       chan error
	recorder   *memRecorder
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		api:      newFakeAPI(),
		bus:      events.NewBus(nil),
		dialer:   &stubDialer{},
		updates:  make(chan struct{}, 64),
		errs:     make(chan error, 16),
		recorder: newMemRecorder(),
	}

	store := NewStore(f.api, nil)
	manager := push.NewManager("ws://test", f.bus, push.Options{Dialer: f.dialer})

	f.controller = NewController(Config{
		Store:    store,
		Bus:      f.bus,
		Manager:  manager,
		SendAPI:  f.api,
		Recorder: f.recorder,
		OnUpdate: func() {
			select {
			case f.updates <- struct{}{}:
			default:
			}
		},
		OnError: func(err error) { f.errs <- err },
	})
	t.Cleanup(f.controller.Close)
	return f
}

func (f *controllerFixture) connect(t *testing.T) {
	t.Helper()
	f.controller.Connect("token")
	require.Eventually(t, func() bool {
		return f.controller.ConnectionState() == push.StateOpen
	}, 2*time.Second, time.Millisecond)
}

func TestController_PushFrameReachesStore(t *testing.T) {
	f := newControllerFixture(t)
	f.api.addSession("s1", "chat", userMsg("u1", "hello"))
	store := f.controller.Store()
	require.NoError(t, store.RefreshSessions(context.Background()))
	require.NoError(t, store.SelectSession(context.Background(), "s1"))

	f.connect(t)
	f.dialer.deliver(t, chat.PushFrame{Message: "live reply", SessionID: "s1", MessageID: "a1"})

	require.Eventually(t, func() bool {
		return len(store.Messages()) == 2
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{"hello", "live reply"}, contents(store.Messages()))
}

func TestController_ErrorFrameSurfacesWithoutTouchingLog(t *testing.T) {
	f := newControllerFixture(t)
	f.api.addSession("s1", "chat", userMsg("u1", "hello"))
	store := f.controller.Store()
	require.NoError(t, store.RefreshSessions(context.Background()))
	require.NoError(t, store.SelectSession(context.Background(), "s1"))

	f.connect(t)
	f.dialer.deliver(t, chat.PushFrame{Error: "model overloaded"})

	select {
	case err := <-f.errs:
		var appErr *chat.ApplicationError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "model overloaded", appErr.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an application error")
	}
	assert.Equal(t, []string{"hello"}, contents(store.Messages()))
}

func TestController_SendRecordsToArchive(t *testing.T) {
	f := newControllerFixture(t)
	f.api.addSession("s1", "chat")
	f.api.sendReply = "recorded reply"
	store := f.controller.Store()
	require.NoError(t, store.RefreshSessions(context.Background()))
	require.NoError(t, store.SelectSession(context.Background(), "s1"))

	outcome, err := f.controller.Send(context.Background(), "record me")
	require.NoError(t, err)
	require.NotNil(t, outcome.Reply)

	assert.True(t, f.recorder.has(outcome.Reply.ID))
}

func TestController_PushFrameRecordsToArchive(t *testing.T) {
	f := newControllerFixture(t)
	f.api.addSession("s1", "chat", userMsg("u1", "hello"))
	store := f.controller.Store()
	require.NoError(t, store.RefreshSessions(context.Background()))
	require.NoError(t, store.SelectSession(context.Background(), "s1"))

	f.connect(t)
	f.dialer.deliver(t, chat.PushFrame{Message: "keep this", SessionID: "s1", MessageID: "a9"})

	require.Eventually(t, func() bool {
		return f.recorder.has("a9")
	}, 2*time.Second, time.Millisecond)
}

func TestController_CloseStopsEventDelivery(t *testing.T) {
	f := newControllerFixture(t)
	f.api.addSession("s1", "chat", userMsg("u1", "hello"))
	store := f.controller.Store()
	require.NoError(t, store.RefreshSessions(context.Background()))
	require.NoError(t, store.SelectSession(context.Background(), "s1"))

	f.connect(t)
	f.controller.Close()
	assert.Equal(t, push.StateDisconnected, f.controller.ConnectionState())

	// Events published after teardown no longer reach the reconciler.
	f.bus.Publish(events.Frame{Message: "ghost", SessionID: "s1", MessageID: "g1"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"hello"}, contents(store.Messages()))

	// Close is idempotent.
	f.controller.Close()
}

func TestController_LiveUpdatesAvailable(t *testing.T) {
	f := newControllerFixture(t)
	assert.True(t, f.controller.LiveUpdatesAvailable())
	f.connect(t)
	assert.True(t, f.controller.LiveUpdatesAvailable())
}
