// ABOUTME: Merges inbound push messages into the in-memory conversation log.
// ABOUTME: Dedup against the cursor, then truncate-then-append into the active log.

package conversation

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gauravksahni/ai-chatbot/internal/chat"
	"github.com/gauravksahni/ai-chatbot/internal/events"
)

// pushOutcome classifies what reconciliation did with an inbound message.
type pushOutcome int

const (
	pushDuplicate pushOutcome = iota
	pushApplied
	pushSessionTouched
	pushSessionUnknown
)

// Reconciler consumes message events from the bus and turns them into store
// mutations. The push channel and the optimistic local echo of a send can
// race; the truncate-then-append rule makes both orderings converge.
type Reconciler struct {
	store *Store
	// refreshList is called when a push message references a session the
	// local list has never seen; it refetches the session list.
	refreshList func()
	logger      *slog.Logger
}

// NewReconciler creates a reconciler bound to the store. refreshList may be
// nil if session-list refresh is not wanted.
func NewReconciler(store *Store, refreshList func(), logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:       store,
		refreshList: refreshList,
		logger:      logger.With("component", "reconcile"),
	}
}

// HandleFrame processes one inbound application frame.
func (r *Reconciler) HandleFrame(frame events.Frame) {
	msg := chat.Message{
		ID:        frame.MessageID,
		Role:      chat.RoleAssistant,
		Content:   frame.Message,
		SessionID: frame.SessionID,
		Timestamp: parseTimestamp(frame.Timestamp),
	}
	if msg.ID == "" {
		// The server omits ids on some replies; a generated one keeps the
		// log's uniqueness invariant.
		msg.ID = "assistant-" + uuid.New().String()
	}

	switch r.store.reconcilePush(msg) {
	case pushDuplicate:
		r.logger.Debug("duplicate push message dropped", "message_id", msg.ID)
	case pushSessionUnknown:
		if r.refreshList != nil {
			go r.refreshList()
		}
	}
}

// parseTimestamp decodes the frame timestamp, falling back to now.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now()
	}
	return t
}

// reconcilePush merges one inbound push message under the store lock.
//
// Rules, in order: drop when the id matches the last accepted push id;
// messages for inactive sessions only bump that session's updatedAt; active
// messages land via reconcile and advance the cursor.
func (s *Store) reconcilePush(msg chat.Message) pushOutcome {
	var outcome pushOutcome
	s.apply(func() {
		if s.cursor != "" && msg.ID == s.cursor {
			outcome = pushDuplicate
			return
		}

		if msg.SessionID != s.active {
			if sess, ok := s.sessions[msg.SessionID]; ok {
				sess.UpdatedAt = time.Now()
				outcome = pushSessionTouched
			} else {
				outcome = pushSessionUnknown
			}
			return
		}

		s.log = reconcile(s.log, msg)
		s.cursor = msg.ID
		if sess, ok := s.sessions[s.active]; ok {
			sess.UpdatedAt = time.Now()
		}
		outcome = pushApplied
	})
	return outcome
}

// reconcile returns the log with the inbound message placed directly after
// the most recent user message. Anything trailing that user message (a stale
// placeholder or an earlier partial reply) is discarded, so the
// authoritative reply always sits next to the message that triggered it.
// Note this also discards a legitimate second assistant reply in a row; the
// server never produces one today.
func reconcile(log []chat.Message, inbound chat.Message) []chat.Message {
	cut := len(log)
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Role == chat.RoleUser {
			cut = i + 1
			break
		}
	}

	out := make([]chat.Message, 0, cut+1)
	out = append(out, log[:cut]...)
	return append(out, inbound)
}
