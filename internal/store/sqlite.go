// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session/message/usage persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_activity TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			estimated_cost REAL NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

		CREATE TABLE IF NOT EXISTS token_usage (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			model TEXT NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_usage_session ON token_usage(session_id);
		CREATE INDEX IF NOT EXISTS idx_usage_created ON token_usage(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// SaveSession upserts a session snapshot.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *Session) error {
	query := `
		INSERT INTO sessions (id, owner, model, created_at, last_activity,
			input_tokens, output_tokens, total_tokens, estimated_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			model = excluded.model,
			last_activity = excluded.last_activity,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			total_tokens = excluded.total_tokens,
			estimated_cost = excluded.estimated_cost
	`
	_, err := s.db.ExecContext(ctx, query,
		sess.ID,
		sess.Owner,
		sess.Model,
		formatTime(sess.CreatedAt),
		formatTime(sess.LastActivity),
		sess.InputTokens,
		sess.OutputTokens,
		sess.TotalTokens,
		sess.EstimatedCost,
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetSession retrieves a session snapshot by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, owner, model, created_at, last_activity,
		       input_tokens, output_tokens, total_tokens, estimated_cost
		FROM sessions WHERE id = ?
	`
	row := s.db.QueryRowContext(ctx, query, id)

	var sess Session
	var createdAt, lastActivity string
	err := row.Scan(&sess.ID, &sess.Owner, &sess.Model, &createdAt, &lastActivity,
		&sess.InputTokens, &sess.OutputTokens, &sess.TotalTokens, &sess.EstimatedCost)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sess.LastActivity, err = parseTime(lastActivity); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns the most recently active sessions.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	query := `
		SELECT id, owner, model, created_at, last_activity,
		       input_tokens, output_tokens, total_tokens, estimated_cost
		FROM sessions ORDER BY last_activity DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		var createdAt, lastActivity string
		if err := rows.Scan(&sess.ID, &sess.Owner, &sess.Model, &createdAt, &lastActivity,
			&sess.InputTokens, &sess.OutputTokens, &sess.TotalTokens, &sess.EstimatedCost); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		if sess.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if sess.LastActivity, err = parseTime(lastActivity); err != nil {
			return nil, err
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// DeleteSession prunes a session and everything archived under it.
// Conversation deletion does not call this; it exists for explicit
// archive maintenance.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM messages WHERE session_id = ?",
		"DELETE FROM token_usage WHERE session_id = ?",
		"DELETE FROM sessions WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("deleting session rows: %w", err)
		}
	}
	return tx.Commit()
}

// SaveMessage appends one history entry.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	query := `INSERT INTO messages (id, session_id, role, content, model, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.Model, formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving message: %w", err)
	}
	return nil
}

// GetSessionMessages returns a session's messages in chronological order.
func (s *SQLiteStore) GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	query := `
		SELECT id, session_id, role, content, model, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Model, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// SaveUsage stores one exchange's token consumption.
func (s *SQLiteStore) SaveUsage(ctx context.Context, usage *Usage) error {
	query := `
		INSERT INTO token_usage (id, session_id, model, input_tokens, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		usage.ID, usage.SessionID, usage.Model,
		usage.InputTokens, usage.OutputTokens, formatTime(usage.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}

	s.logger.Debug("saved token usage",
		"session_id", usage.SessionID,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
	)
	return nil
}

// GetUsageStats returns aggregated usage with optional filters.
func (s *SQLiteStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	query := `
		SELECT
			COALESCE(SUM(input_tokens), 0) as total_input,
			COALESCE(SUM(output_tokens), 0) as total_output,
			COUNT(*) as exchange_count
		FROM token_usage
		WHERE 1=1
	`
	args := []any{}

	if filter.Model != nil {
		query += " AND model = ?"
		args = append(args, *filter.Model)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, formatTime(*filter.Since))
	}
	if filter.Until != nil {
		query += " AND created_at < ?"
		args = append(args, formatTime(*filter.Until))
	}

	var stats UsageStats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalInput,
		&stats.TotalOutput,
		&stats.ExchangeCount,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}
	stats.TotalTokens = stats.TotalInput + stats.TotalOutput
	return &stats, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Timestamps are stored as RFC3339Nano so sub-second message ordering
// survives the round trip.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return t, nil
}

// Ensure SQLiteStore implements the Store interface.
var _ Store = (*SQLiteStore)(nil)
