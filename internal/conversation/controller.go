// ABOUTME: Owning context that wires the bus, push manager, store, and reconciler.
// ABOUTME: Close tears everything down atomically so nothing leaks into the next session.

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gauravksahni/ai-chatbot/internal/chat"
	"github.com/gauravksahni/ai-chatbot/internal/events"
	"github.com/gauravksahni/ai-chatbot/internal/push"
)

// Recorder receives every message that lands in the active log, for optional
// local archiving. It must tolerate duplicates.
type Recorder interface {
	RecordMessage(msg chat.Message) error
}

// Config assembles a Controller's collaborators.
type Config struct {
	Store    *Store
	Bus      *events.Bus
	Manager  *push.Manager
	SendAPI  SendAPI
	Recorder Recorder // optional
	Logger   *slog.Logger

	// OnUpdate fires after any store mutation or connection state change.
	OnUpdate func()
	// OnError surfaces application and transport errors upward. The user's
	// own messages stay visible; this only annotates them.
	OnError func(error)
}

// Controller owns the realtime half of a chat session. Its lifetime bounds
// the connection, the timers, and the bus subscriptions it registers;
// constructing one per consuming context replaces the original's
// process-wide mutable connection state.
type Controller struct {
	store       *Store
	bus         *events.Bus
	manager     *push.Manager
	coordinator *Coordinator
	reconciler  *Reconciler
	recorder    Recorder
	onUpdate    func()
	onError     func(error)
	logger      *slog.Logger

	tokens    []events.Token
	closeOnce sync.Once
}

// NewController wires the components together and subscribes them to the bus.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		store:    cfg.Store,
		bus:      cfg.Bus,
		manager:  cfg.Manager,
		recorder: cfg.Recorder,
		onUpdate: cfg.OnUpdate,
		onError:  cfg.OnError,
		logger:   logger.With("component", "controller"),
	}

	c.coordinator = NewCoordinator(cfg.Store, cfg.SendAPI, cfg.Manager, logger)
	c.reconciler = NewReconciler(cfg.Store, c.refreshList, logger)

	cfg.Store.SetNotify(c.notifyUpdate)

	c.tokens = append(c.tokens,
		cfg.Bus.Subscribe(events.KindMessage, c.handleMessage),
		cfg.Bus.Subscribe(events.KindError, c.handleError),
		cfg.Bus.Subscribe(events.KindOpen, c.handleStateChange),
		cfg.Bus.Subscribe(events.KindClose, c.handleStateChange),
	)

	return c
}

// Connect opens the push channel with the given credential.
func (c *Controller) Connect(credential string) {
	c.manager.Open(credential)
}

// Send submits a user message over whichever transport is available.
func (c *Controller) Send(ctx context.Context, text string) (*SendOutcome, error) {
	outcome, err := c.coordinator.Send(ctx, text)
	if err != nil {
		return nil, err
	}
	if c.recorder != nil {
		c.recordActiveLogTail()
	}
	return outcome, nil
}

// Store exposes the state container for the rendering layer.
func (c *Controller) Store() *Store {
	return c.store
}

// ConnectionState reports the push channel's lifecycle state.
func (c *Controller) ConnectionState() push.State {
	return c.manager.State()
}

// LiveUpdatesAvailable is false once the push channel has given up
// reconnecting; request/response operations keep working regardless.
func (c *Controller) LiveUpdatesAvailable() bool {
	return c.manager.State() != push.StateFailed
}

// Close tears down this context in one step: manual-close the connection
// (suppressing reconnection and cancelling timers) and remove every bus
// subscription registered here. Safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.manager.Close()
		for _, token := range c.tokens {
			c.bus.Unsubscribe(token)
		}
		c.tokens = nil
		c.store.SetNotify(nil)
	})
}

func (c *Controller) handleMessage(ev events.Event) {
	frame, ok := ev.(events.Frame)
	if !ok {
		return
	}
	c.reconciler.HandleFrame(frame)
	if c.recorder != nil {
		c.recordActiveLogTail()
	}
}

func (c *Controller) handleError(ev events.Event) {
	errEv, ok := ev.(events.Err)
	if !ok {
		return
	}
	if c.onError != nil {
		c.onError(errEv.Err)
	}
	c.notifyUpdate()
}

func (c *Controller) handleStateChange(events.Event) {
	c.notifyUpdate()
}

func (c *Controller) notifyUpdate() {
	if c.onUpdate != nil {
		c.onUpdate()
	}
}

// refreshList refetches the session list when a push message references a
// session the local list has never seen.
func (c *Controller) refreshList() {
	if err := c.store.RefreshSessions(context.Background()); err != nil {
		c.logger.Warn("session list refresh failed", "error", err)
	}
}

// recordActiveLogTail mirrors the newest log entries into the archive.
// Recording is best-effort; the archive deduplicates replays itself.
func (c *Controller) recordActiveLogTail() {
	log := c.store.Messages()
	sessionID := c.store.ActiveSessionID()

	n := 2
	if len(log) < n {
		n = len(log)
	}
	for _, msg := range log[len(log)-n:] {
		if msg.SessionID == "" {
			msg.SessionID = sessionID
		}
		if err := c.recorder.RecordMessage(msg); err != nil {
			c.logger.Debug("archive write failed", "error", err)
		}
	}
}
