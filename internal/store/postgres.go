package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ashureev/borichat/internal/domain"
)

// PostgresStore implements Repository using PostgreSQL through pgx.
type PostgresStore struct {
	db *sql.DB
}

var openDB = sql.Open

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	session_id TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	last_activity_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	end_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_activity ON chat_sessions(last_activity_at);

CREATE TABLE IF NOT EXISTS chat_messages (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES chat_sessions(session_id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, id);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgres connects to conn and creates the schema when missing.
func NewPostgres(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Ping verifies database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// SaveMessage appends a transcript entry.
func (p *PostgresStore) SaveMessage(ctx context.Context, sessionID string, role domain.Role, text string) error {
	if err := validateMessage(sessionID, role, text); err != nil {
		return err
	}
	now := time.Now().UTC()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_sessions (session_id, started_at, last_activity_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (session_id) DO UPDATE SET last_activity_at = EXCLUDED.last_activity_at`,
		sessionID, now,
	); err != nil {
		return fmt.Errorf("upsert chat session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, role, message, created_at) VALUES ($1, $2, $3, $4)`,
		sessionID, string(role), text, now,
	); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save message: %w", err)
	}
	return nil
}

// ListMessages returns the transcript of a session, oldest first.
func (p *PostgresStore) ListMessages(ctx context.Context, sessionID string) ([]domain.StoredMessage, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_id, role, message, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	messages := []domain.StoredMessage{}
	for rows.Next() {
		var m domain.StoredMessage
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = domain.Role(role)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// GetSession retrieves a session record.
func (p *PostgresStore) GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT session_id, started_at, last_activity_at, ended_at, end_reason
		FROM chat_sessions WHERE session_id = $1`, sessionID)

	var cs domain.ChatSession
	var endedAt sql.NullTime
	var reason sql.NullString
	err := row.Scan(&cs.SessionID, &cs.StartedAt, &cs.LastActivityAt, &endedAt, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	if endedAt.Valid {
		ts := endedAt.Time
		cs.EndedAt = &ts
	}
	cs.EndReason = reason.String
	return &cs, nil
}

// EndSession records why a conversation ended.
func (p *PostgresStore) EndSession(ctx context.Context, sessionID, reason string) error {
	now := time.Now().UTC()
	if _, err := p.db.ExecContext(ctx, `
		UPDATE chat_sessions SET ended_at = $1, end_reason = $2, last_activity_at = $1
		WHERE session_id = $3 AND ended_at IS NULL`,
		now, reason, sessionID,
	); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// GetSetting returns a stored setting, or "" when it is missing.
func (p *PostgresStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// PutSetting creates or replaces a setting.
func (p *PostgresStore) PutSetting(ctx context.Context, key, value string) error {
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

// PurgeBefore removes sessions idle since before cutoff. Messages go with
// them through the cascading foreign key.
func (p *PostgresStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE last_activity_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
