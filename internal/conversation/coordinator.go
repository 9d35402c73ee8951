// ABOUTME: Decides per send whether to use the push channel or the REST fallback.
// ABOUTME: Both paths produce the same final log shape via truncate-then-append.

package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gauravksahni/ai-chatbot/internal/api"
	"github.com/gauravksahni/ai-chatbot/internal/chat"
)

// Channel is what the coordinator needs from the push connection.
type Channel interface {
	Connected() bool
	Send(payload any) error
}

// SendAPI is what the coordinator needs from the request/response client.
type SendAPI interface {
	SendMessage(ctx context.Context, text string, sessionID *string) (*api.SendResult, error)
}

// SendOutcome describes how a send was delivered.
type SendOutcome struct {
	// SessionID is the session the message belongs to; on the synchronous
	// path this may be a freshly server-assigned id.
	SessionID string
	// ViaPush is true when the message went over the push channel and the
	// reply will arrive asynchronously through reconciliation.
	ViaPush bool
	// Reply is the assistant message, set only on the synchronous path with
	// an existing session.
	Reply *chat.Message
}

// Coordinator normalizes the two send transports into one resulting
// conversation update.
type Coordinator struct {
	store   *Store
	api     SendAPI
	channel Channel
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator. channel may be nil, forcing the
// synchronous path.
func NewCoordinator(store *Store, sendAPI SendAPI, channel Channel, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   store,
		api:     sendAPI,
		channel: channel,
		logger:  logger.With("component", "send"),
	}
}

// Send submits a user message. The optimistic local echo is appended before
// any network round-trip and is never rolled back on failure; the caller
// surfaces the error alongside the still-visible message.
func (c *Coordinator) Send(ctx context.Context, text string) (*SendOutcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, chat.ErrInvalidInput
	}

	sessionID := c.store.ActiveSessionID()

	c.store.appendLocal(chat.Message{
		ID:        "user-" + uuid.New().String(),
		Role:      chat.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
		SessionID: sessionID,
	})

	// A new send invalidates the previous accepted reply id; the next push
	// message must not be mistaken for a duplicate.
	c.store.clearCursor()

	var sid *string
	if sessionID != "" {
		sid = &sessionID
	}

	if c.channel != nil && c.channel.Connected() {
		if err := c.channel.Send(chat.OutboundFrame{Message: text, SessionID: sid}); err != nil {
			return nil, err
		}
		return &SendOutcome{SessionID: sessionID, ViaPush: true}, nil
	}

	result, err := c.api.SendMessage(ctx, text, sid)
	if err != nil {
		return nil, err
	}

	if sessionID == "" {
		// The server created the session; adopt its id and load the
		// canonical log so local state matches what it recorded.
		if err := c.store.RefreshSessions(ctx); err != nil {
			c.logger.Warn("session list refresh failed after send", "error", err)
		}
		if err := c.store.SelectSession(ctx, result.SessionID); err != nil {
			return nil, err
		}
		return &SendOutcome{SessionID: result.SessionID}, nil
	}

	reply := chat.Message{
		ID:        "assistant-" + uuid.New().String(),
		Role:      chat.RoleAssistant,
		Content:   result.Message,
		Timestamp: time.Now(),
		SessionID: sessionID,
	}
	c.store.applyReply(reply)

	return &SendOutcome{SessionID: sessionID, Reply: &reply}, nil
}

// applyReply lands a synchronous assistant reply using the same
// truncate-then-append rule as push reconciliation, so both transports
// produce identical final state for the same inputs.
func (s *Store) applyReply(msg chat.Message) {
	s.apply(func() {
		s.log = reconcile(s.log, msg)
		s.cursor = msg.ID
		if sess, ok := s.sessions[s.active]; ok {
			sess.UpdatedAt = time.Now()
		}
	})
}
