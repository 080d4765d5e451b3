// ABOUTME: Append-only chat log and per-user rolling summaries in their own SQLite file
// ABOUTME: Insertion order is conversational order; summaries are upserted by user

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Chat roles recorded in the log.
const (
	ChatRoleHuman     = "human"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one entry of a session history.
type ChatMessage struct {
	Role      string
	Text      string
	Timestamp time.Time
}

// SQLiteChatStore persists session histories and rolling summaries.
type SQLiteChatStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteChatStore opens the chat log database at path, creating it if needed.
func NewSQLiteChatStore(path string) (*SQLiteChatStore, error) {
	logger := slog.Default().With("component", "chatstore")

	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	schema := `
		CREATE TABLE IF NOT EXISTS chat_history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			message    TEXT NOT NULL,
			timestamp  TEXT NOT NULL,

			CHECK (role IN ('human', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_chat_history_session ON chat_history(user_id, session_id, id);

		CREATE TABLE IF NOT EXISTS chat_summaries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL UNIQUE,
			summary    TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating chat schema: %w", err)
	}

	logger.Info("chat store initialized", "path", path)
	return &SQLiteChatStore{db: db, logger: logger, now: time.Now}, nil
}

// Append durably records one message. The row is written by a single
// statement, so it is either fully present or absent.
func (s *SQLiteChatStore) Append(ctx context.Context, userID, sessionID, role, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_history (user_id, session_id, role, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, userID, sessionID, role, text, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: appending %s message: %v", ErrPersistence, role, err)
	}
	return nil
}

// AppendTurn records the human message and then the assistant reply in one
// transaction so a turn is never half-written.
func (s *SQLiteChatStore) AppendTurn(ctx context.Context, userID, sessionID, human, assistant string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning turn: %v", ErrPersistence, err)
	}
	defer tx.Rollback()

	ts := s.now().UTC().Format(time.RFC3339Nano)
	stmt := `INSERT INTO chat_history (user_id, session_id, role, message, timestamp) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, stmt, userID, sessionID, ChatRoleHuman, human, ts); err != nil {
		return fmt.Errorf("%w: appending human message: %v", ErrPersistence, err)
	}
	if _, err := tx.ExecContext(ctx, stmt, userID, sessionID, ChatRoleAssistant, assistant, ts); err != nil {
		return fmt.Errorf("%w: appending assistant message: %v", ErrPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing turn: %v", ErrPersistence, err)
	}
	return nil
}

// History returns every message of a session in insertion order. It never
// consumes the log, so repeated calls return the same result.
func (s *SQLiteChatStore) History(ctx context.Context, userID, sessionID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, message, timestamp
		FROM chat_history
		WHERE user_id = ? AND session_id = ?
		ORDER BY id ASC
	`, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	out := []ChatMessage{}
	for rows.Next() {
		var m ChatMessage
		var ts string
		if err := rows.Scan(&m.Role, &m.Text, &ts); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		if m.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing history timestamp %q: %w", ts, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Sessions returns the distinct session ids of a user in first-seen order.
func (s *SQLiteChatStore) Sessions(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id
		FROM chat_history
		WHERE user_id = ?
		GROUP BY session_id
		ORDER BY MIN(id)
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetSummary returns the user's rolling summary, or "" when none exists.
func (s *SQLiteChatStore) GetSummary(ctx context.Context, userID string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx, `SELECT summary FROM chat_summaries WHERE user_id = ?`, userID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying summary: %w", err)
	}
	return summary, nil
}

// PutSummary replaces the user's rolling summary.
func (s *SQLiteChatStore) PutSummary(ctx context.Context, userID, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_summaries (user_id, summary, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at
	`, userID, summary, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: upserting summary: %v", ErrPersistence, err)
	}
	return nil
}

// Ping verifies the database connection is usable.
func (s *SQLiteChatStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteChatStore) Close() error {
	s.logger.Info("closing chat store")
	return s.db.Close()
}
