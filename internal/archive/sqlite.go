// ABOUTME: Local SQLite mirror of conversation transcripts using modernc.org/sqlite.
// ABOUTME: Best-effort: it never feeds state back into the live conversation.

package archive

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gauravksahni/ai-chatbot/internal/chat"
	"github.com/gauravksahni/ai-chatbot/internal/dedupe"
)

const (
	// dedupeTTL bounds how long a message id is remembered; reconnect
	// replays arrive well inside this window.
	dedupeTTL     = 10 * time.Minute
	dedupeEntries = 4096
)

// Archive persists transcripts locally so they can be exported or read
// offline. Writes are idempotent: the id cache plus INSERT OR IGNORE make
// reconnect replays harmless.
type Archive struct {
	db     *sql.DB
	seen   *dedupe.Cache
	logger *slog.Logger
}

// Open creates or opens the archive database at path. Parent directories are
// created if needed.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "archive")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	a := &Archive{
		db:     db,
		seen:   dedupe.NewCache(dedupeTTL, dedupeEntries),
		logger: logger,
	}

	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("archive opened", "path", path)
	return a, nil
}

func (a *Archive) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session_time
			ON messages(session_id, timestamp);
	`
	_, err := a.db.Exec(schema)
	return err
}

// RecordMessage appends one message to the mirror. Duplicate ids are
// silently skipped.
func (a *Archive) RecordMessage(msg chat.Message) error {
	if msg.ID == "" || msg.SessionID == "" {
		return nil
	}
	if a.seen.Seen(msg.ID) {
		return nil
	}

	if _, err := a.db.Exec(
		`INSERT OR IGNORE INTO sessions (id, title, created_at, updated_at) VALUES (?, '', ?, ?)`,
		msg.SessionID, msg.Timestamp, msg.Timestamp,
	); err != nil {
		return fmt.Errorf("recording session: %w", err)
	}

	if _, err := a.db.Exec(
		`INSERT OR IGNORE INTO messages (id, session_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.Timestamp,
	); err != nil {
		return fmt.Errorf("recording message: %w", err)
	}

	_, err := a.db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, msg.Timestamp, msg.SessionID)
	return err
}

// Snapshot upserts an entire session and its log, replacing any partial
// mirror built up from live recording.
func (a *Archive) Snapshot(session *chat.Session) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		session.SessionID, session.Title, session.CreatedAt, session.UpdatedAt,
	); err != nil {
		return fmt.Errorf("snapshotting session: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, session.SessionID); err != nil {
		return fmt.Errorf("clearing old messages: %w", err)
	}

	for _, msg := range session.Messages {
		if _, err := tx.Exec(
			`INSERT INTO messages (id, session_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
			msg.ID, session.SessionID, string(msg.Role), msg.Content, msg.Timestamp,
		); err != nil {
			return fmt.Errorf("snapshotting message %s: %w", msg.ID, err)
		}
	}

	return tx.Commit()
}

// GetSession reads a mirrored session and its log, ordered by timestamp.
func (a *Archive) GetSession(id string) (*chat.Session, error) {
	session := &chat.Session{SessionID: id}
	err := a.db.QueryRow(
		`SELECT COALESCE(title, ''), created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&session.Title, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not in archive", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	rows, err := a.db.Query(
		`SELECT id, role, content, timestamp FROM messages WHERE session_id = ? ORDER BY timestamp, id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg chat.Message
		var role string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = chat.Role(role)
		msg.SessionID = id
		session.Messages = append(session.Messages, msg)
	}

	return session, rows.Err()
}

// Close closes the database and stops the dedupe sweep.
func (a *Archive) Close() error {
	a.seen.Close()
	return a.db.Close()
}
