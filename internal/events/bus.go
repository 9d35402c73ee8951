// ABOUTME: Synchronous fan-out event bus for push-channel events.
// ABOUTME: Handlers run in registration order; a panicking handler is isolated.

package events

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Kind classifies an event on the bus.
type Kind string

const (
	KindOpen    Kind = "open"
	KindMessage Kind = "message"
	KindError   Kind = "error"
	KindClose   Kind = "close"
)

// Event is the closed set of payloads published on the bus. Consumers type
// switch on the concrete type instead of probing fields.
type Event interface {
	Kind() Kind
}

// Open signals that the push channel finished its handshake.
type Open struct{}

func (Open) Kind() Kind { return KindOpen }

// Closed signals that the push channel closed. Clean distinguishes an
// intentional close from a dropped connection.
type Closed struct {
	Clean bool
}

func (Closed) Kind() Kind { return KindClose }

// Frame is a decoded application frame from the push channel. Heartbeat
// sentinels never reach the bus.
type Frame struct {
	Message   string
	SessionID string
	MessageID string
	Timestamp string
}

func (Frame) Kind() Kind { return KindMessage }

// Err carries a transport- or server-reported error. The wrapped error is a
// *chat.TransportError or *chat.ApplicationError.
type Err struct {
	Err error
}

func (Err) Kind() Kind { return KindError }

// Handler receives events for the kind it subscribed to.
type Handler func(Event)

// Token identifies a single subscription for later removal.
type Token string

type subscriber struct {
	token   Token
	handler Handler
}

// Bus dispatches events synchronously to subscribers in registration order.
// Events published before any subscriber registered are lost; there is no
// replay.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Kind][]subscriber
	logger      *slog.Logger
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[Kind][]subscriber),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers a handler for the given kind and returns a token for
// unsubscribing. Multiple independent handlers per kind are allowed.
func (b *Bus) Subscribe(kind Kind, handler Handler) Token {
	token := Token(uuid.New().String())

	b.mu.Lock()
	b.subscribers[kind] = append(b.subscribers[kind], subscriber{token: token, handler: handler})
	b.mu.Unlock()

	return token
}

// Unsubscribe removes exactly one registration. Unknown tokens are a no-op,
// so calling it twice is safe.
func (b *Bus) Unsubscribe(token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, subs := range b.subscribers {
		for i, sub := range subs {
			if sub.token == token {
				b.subscribers[kind] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to every subscriber of its kind, in the order
// they registered. A handler panic is recovered and logged; remaining
// handlers still run.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := b.subscribers[event.Kind()]
	targets := make([]subscriber, len(subs))
	copy(targets, subs)
	b.mu.RUnlock()

	for _, sub := range targets {
		b.dispatch(sub, event)
	}
}

func (b *Bus) dispatch(sub subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"kind", event.Kind(),
				"token", sub.token,
				"panic", fmt.Sprint(r))
		}
	}()
	sub.handler(event)
}
