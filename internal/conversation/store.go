// ABOUTME: In-memory state for the session list and the active conversation log.
// ABOUTME: Every mutation funnels through one serialized apply-and-notify entry point.

package conversation

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gauravksahni/ai-chatbot/internal/chat"
)

// SessionAPI is what the store needs from the request/response client.
type SessionAPI interface {
	History(ctx context.Context) ([]chat.Session, error)
	CreateSession(ctx context.Context, title string) (*chat.Session, error)
	GetSession(ctx context.Context, id string) (*chat.Session, error)
	UpdateSession(ctx context.Context, id, title string) (*chat.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Store holds the session list, the active session, and its ordered message
// log. It is the single mutable state the rendering layer queries; push
// events, timer callbacks, and completed request/response calls all mutate it
// through the same serialized entry point, so readers never observe a
// half-applied update.
type Store struct {
	api    SessionAPI
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*chat.Session
	active   string
	log      []chat.Message
	cursor   string // id of the last accepted push message
	notify   func()
}

// NewStore creates an empty store backed by the given API client.
func NewStore(api SessionAPI, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		api:      api,
		logger:   logger.With("component", "store"),
		sessions: make(map[string]*chat.Session),
	}
}

// SetNotify registers a callback invoked after every applied mutation,
// outside the store lock. The rendering layer uses it to re-read state.
func (s *Store) SetNotify(fn func()) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// apply is the single mutation entry point. The mutation runs under the
// lock; the notify callback runs after it is released.
func (s *Store) apply(mut func()) {
	s.mu.Lock()
	mut()
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Sessions returns session summaries, most recently updated first.
func (s *Store) Sessions() []chat.Session {
	s.mu.Lock()
	out := make([]chat.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		copied := *sess
		copied.Messages = nil
		out = append(out, copied)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// ActiveSessionID returns the selected session id, or "" for a new chat.
func (s *Store) ActiveSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Messages returns a copy of the active session's log.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.log))
	copy(out, s.log)
	return out
}

// RefreshSessions reloads the session list from the API. Summaries replace
// the cached list; the active log is untouched.
func (s *Store) RefreshSessions(ctx context.Context) error {
	sessions, err := s.api.History(ctx)
	if err != nil {
		return err
	}

	s.apply(func() {
		s.sessions = make(map[string]*chat.Session, len(sessions))
		for i := range sessions {
			sess := sessions[i]
			s.sessions[sess.SessionID] = &sess
		}
	})
	return nil
}

// SelectSession makes the given session active, replacing the local log with
// the canonical one from the API. The dedup cursor is recomputed from the
// loaded log's trailing message. An empty id clears the active session
// without deleting anything (the "new chat" affordance).
func (s *Store) SelectSession(ctx context.Context, id string) error {
	if id == "" {
		s.apply(func() {
			s.active = ""
			s.log = nil
			s.cursor = ""
		})
		return nil
	}

	session, err := s.api.GetSession(ctx, id)
	if err != nil {
		return err
	}

	s.apply(func() {
		s.active = session.SessionID
		s.log = append([]chat.Message(nil), session.Messages...)
		s.cursor = trailingAssistantID(session.Messages)
		s.sessions[session.SessionID] = session
	})
	return nil
}

// trailingAssistantID returns the id of the final message if it is an
// assistant reply; a log ending in a user message has no accepted reply yet.
func trailingAssistantID(log []chat.Message) string {
	if len(log) == 0 {
		return ""
	}
	last := log[len(log)-1]
	if last.Role == chat.RoleAssistant {
		return last.ID
	}
	return ""
}

// CreateSession creates a session via the API and adds it to the list.
func (s *Store) CreateSession(ctx context.Context, title string) (*chat.Session, error) {
	session, err := s.api.CreateSession(ctx, title)
	if err != nil {
		return nil, err
	}

	s.apply(func() {
		s.sessions[session.SessionID] = session
	})
	return session, nil
}

// RenameSession changes a session's title via the API.
func (s *Store) RenameSession(ctx context.Context, id, title string) error {
	session, err := s.api.UpdateSession(ctx, id, title)
	if err != nil {
		return err
	}

	s.apply(func() {
		s.sessions[session.SessionID] = session
	})
	return nil
}

// DeleteSession removes a session. Deleting the active session also clears
// the active log and cursor.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := s.api.DeleteSession(ctx, id); err != nil {
		return err
	}

	s.apply(func() {
		delete(s.sessions, id)
		if s.active == id {
			s.active = ""
			s.log = nil
			s.cursor = ""
		}
	})
	return nil
}

// ApplyLog replaces the log for the given session. Logs for sessions other
// than the active one are not held locally, so those only update the cached
// summary.
func (s *Store) ApplyLog(sessionID string, log []chat.Message) {
	s.apply(func() {
		if sess, ok := s.sessions[sessionID]; ok {
			sess.UpdatedAt = time.Now()
		}
		if sessionID == s.active {
			s.log = append([]chat.Message(nil), log...)
		}
	})
}

// TouchSession bumps a session's updatedAt after push activity, avoiding a
// full refetch. Returns false if the session is unknown locally.
func (s *Store) TouchSession(id string) bool {
	known := false
	s.apply(func() {
		if sess, ok := s.sessions[id]; ok {
			sess.UpdatedAt = time.Now()
			known = true
		}
	})
	return known
}

// appendLocal adds the optimistic local echo of a user's own send.
func (s *Store) appendLocal(msg chat.Message) {
	s.apply(func() {
		s.log = append(s.log, msg)
	})
}

// clearCursor invalidates the last accepted push id; a new send means a new
// reply is expected.
func (s *Store) clearCursor() {
	s.apply(func() {
		s.cursor = ""
	})
}
