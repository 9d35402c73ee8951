// ABOUTME: Manages the single push-channel websocket connection.
// ABOUTME: Owns reconnection with exponential backoff and the heartbeat timer.

package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gauravksahni/ai-chatbot/internal/chat"
	"github.com/gauravksahni/ai-chatbot/internal/events"
)

const (
	// DefaultInitialDelay is the base reconnect delay; it doubles per attempt.
	DefaultInitialDelay = 1000 * time.Millisecond
	// DefaultMaxRetries is the reconnect attempt budget before giving up.
	DefaultMaxRetries = 5
	// DefaultHeartbeatInterval is how often a ping sentinel is sent while open.
	DefaultHeartbeatInterval = 30 * time.Second

	heartbeatPing = "__ping__"
	heartbeatPong = "__pong__"
)

// Conn is the subset of a websocket connection the manager needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Dialer establishes push-channel connections. The production implementation
// wraps gorilla/websocket; tests substitute an in-process fake.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type websocketDialer struct {
	handshakeTimeout time.Duration
}

func (d *websocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures a Manager. Zero values fall back to the defaults above.
type Options struct {
	Dialer            Dialer
	InitialDelay      time.Duration
	MaxRetries        int
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	Logger            *slog.Logger
}

// Manager owns at most one live push-channel connection plus the reconnect
// and heartbeat timers attached to it. Raw events fan out through the bus;
// the manager never retries application payloads itself.
type Manager struct {
	bus               *events.Bus
	dialer            Dialer
	baseURL           string
	initialDelay      time.Duration
	maxRetries        int
	heartbeatInterval time.Duration
	logger            *slog.Logger

	// afterFunc schedules the reconnect timer; tests substitute it to
	// observe the computed delays.
	afterFunc func(time.Duration, func()) *time.Timer

	mu             sync.Mutex
	writeMu        sync.Mutex
	state          State
	attempts       int
	gen            int
	conn           Conn
	credential     string
	manualClose    bool
	reconnectTimer *time.Timer
	heartbeatDone  chan struct{}
}

// NewManager creates a manager for the push endpoint at baseURL
// (e.g. "ws://localhost:8000"). It does not connect; call Open.
func NewManager(baseURL string, bus *events.Bus, opts Options) *Manager {
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = DefaultInitialDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocketDialer{handshakeTimeout: opts.HandshakeTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Manager{
		bus:               bus,
		dialer:            opts.Dialer,
		baseURL:           strings.TrimSuffix(baseURL, "/"),
		initialDelay:      opts.InitialDelay,
		maxRetries:        opts.MaxRetries,
		heartbeatInterval: opts.HeartbeatInterval,
		logger:            opts.Logger.With("component", "push"),
		afterFunc:         time.AfterFunc,
		state:             StateDisconnected,
	}
}

// Open establishes a connection using the given bearer credential. Any
// previously open connection is closed first; the retry counter resets.
func (m *Manager) Open(credential string) {
	m.mu.Lock()
	m.manualClose = false
	m.credential = credential
	m.attempts = 0
	m.stopReconnectLocked()
	m.stopHeartbeatLocked()
	m.closeConnLocked()
	m.gen++
	gen := m.gen
	m.state = StateConnecting
	url := m.endpointURLLocked()
	m.mu.Unlock()

	go m.dial(gen, url)
}

// Close is a manual, user-intended teardown. It suppresses any pending
// reconnect attempt and cancels all timers.
func (m *Manager) Close() {
	m.mu.Lock()
	wasLive := m.state != StateDisconnected
	m.manualClose = true
	m.stopReconnectLocked()
	m.stopHeartbeatLocked()
	m.closeConnLocked()
	m.gen++
	m.state = StateDisconnected
	m.mu.Unlock()

	if wasLive {
		m.bus.Publish(events.Closed{Clean: true})
	}
}

// Send writes an application payload over the channel. It fails with
// chat.ErrNotConnected unless the connection is open.
func (m *Manager) Send(payload any) error {
	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		m.mu.Unlock()
		return chat.ErrNotConnected
	}
	conn := m.conn
	m.mu.Unlock()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(payload)
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the channel is open and usable for sends.
func (m *Manager) Connected() bool {
	return m.State() == StateOpen
}

// endpointURLLocked builds the push endpoint path, which carries the
// credential as its final segment. Must be called with mu held: the
// credential changes across Opens, so callers snapshot the URL under the
// lock and hand it to dial.
func (m *Manager) endpointURLLocked() string {
	base := m.baseURL
	base = strings.Replace(base, "http://", "ws://", 1)
	base = strings.Replace(base, "https://", "wss://", 1)
	return base + "/chat/ws/" + m.credential
}

func (m *Manager) dial(gen int, url string) {
	conn, err := m.dialer.Dial(context.Background(), url)
	if err != nil {
		m.connectionLost(gen, false, err)
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.manualClose {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.attempts = 0
	m.startHeartbeatLocked()
	m.mu.Unlock()

	m.logger.Info("push channel open")
	m.bus.Publish(events.Open{})

	go m.readLoop(gen, conn)
}

func (m *Manager) readLoop(gen int, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(gen, isCleanClose(err), err)
			return
		}
		m.handleFrame(data)
	}
}

// isCleanClose reports whether a read error represents an intentional close.
func isCleanClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return false
}

// handleFrame decodes one inbound frame. Heartbeat replies are intercepted
// here and never reach subscribers; malformed frames are dropped without
// touching the connection.
func (m *Manager) handleFrame(data []byte) {
	text := strings.TrimSpace(string(data))
	if text == heartbeatPong || text == `"`+heartbeatPong+`"` {
		return
	}

	var frame chat.PushFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		m.logger.Warn("dropping malformed push frame", "error", err)
		m.bus.Publish(events.Err{Err: &chat.ParseError{Err: err}})
		return
	}

	if frame.Message == heartbeatPong {
		return
	}

	if frame.Error != "" && frame.Message == "" {
		m.bus.Publish(events.Err{Err: &chat.ApplicationError{Message: frame.Error}})
		return
	}

	if frame.Message == "" {
		// Server-side status frames carry neither message nor error.
		return
	}

	m.bus.Publish(events.Frame{
		Message:   frame.Message,
		SessionID: frame.SessionID,
		MessageID: frame.MessageID,
		Timestamp: frame.Timestamp,
	})
}

// connectionLost handles a dial failure or dropped connection for the given
// generation. Stale generations (superseded by a newer Open or Close) are
// ignored entirely, their errors included, so a dial orphaned mid-flight
// cannot emit events after teardown. On the unclean path cause is published
// as a transport error before the close event.
func (m *Manager) connectionLost(gen int, clean bool, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.stopHeartbeatLocked()
	m.closeConnLocked()

	if m.manualClose {
		m.state = StateDisconnected
		m.mu.Unlock()
		return
	}

	if clean {
		m.state = StateDisconnected
		m.mu.Unlock()
		m.bus.Publish(events.Closed{Clean: true})
		return
	}

	if m.attempts >= m.maxRetries {
		m.state = StateFailed
		m.mu.Unlock()
		m.logger.Error("push channel failed, retry budget exhausted", "attempts", m.maxRetries)
		if cause != nil {
			m.bus.Publish(events.Err{Err: &chat.TransportError{Err: cause}})
		}
		m.bus.Publish(events.Closed{Clean: false})
		return
	}

	delay := m.initialDelay << m.attempts
	m.attempts++
	m.state = StateReconnecting
	m.stopReconnectLocked()
	m.reconnectTimer = m.afterFunc(delay, m.redial)
	m.mu.Unlock()

	m.logger.Warn("push channel lost, reconnecting",
		"error", cause,
		"attempt", m.attempts,
		"delay", delay)
	if cause != nil {
		m.bus.Publish(events.Err{Err: &chat.TransportError{Err: cause}})
	}
	m.bus.Publish(events.Closed{Clean: false})
}

// redial fires when the reconnect timer expires.
func (m *Manager) redial() {
	m.mu.Lock()
	if m.manualClose || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	m.state = StateConnecting
	url := m.endpointURLLocked()
	m.mu.Unlock()

	m.dial(gen, url)
}

// startHeartbeatLocked replaces any running heartbeat timer with a fresh one.
// Must be called with mu held.
func (m *Manager) startHeartbeatLocked() {
	m.stopHeartbeatLocked()
	done := make(chan struct{})
	m.heartbeatDone = done
	go m.heartbeat(done)
}

func (m *Manager) heartbeat(done chan struct{}) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Send(chat.OutboundFrame{Message: heartbeatPing}); err != nil {
				// Connection went away; teardown will stop this goroutine.
				continue
			}
		case <-done:
			return
		}
	}
}

// stopHeartbeatLocked stops the heartbeat goroutine. Must be called with mu held.
func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatDone != nil {
		close(m.heartbeatDone)
		m.heartbeatDone = nil
	}
}

// stopReconnectLocked cancels a pending reconnect timer. Must be called with mu held.
func (m *Manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) closeConnLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}
