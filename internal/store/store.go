// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/borichat/internal/domain"
)

// ErrInvalidMessage is returned for a message without session id, with an
// unknown role or with empty text.
var ErrInvalidMessage = errors.New("invalid chat message")

// Repository defines the interface for persisting chat transcripts and
// settings.
type Repository interface {
	// SaveMessage appends a transcript entry, creating the session record on
	// first use.
	SaveMessage(ctx context.Context, sessionID string, role domain.Role, text string) error

	// ListMessages returns the transcript of a session, oldest first.
	ListMessages(ctx context.Context, sessionID string) ([]domain.StoredMessage, error)

	// GetSession retrieves a session record. It returns nil, nil when the
	// session does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error)

	// EndSession records why a conversation ended. Ending an unknown or
	// already ended session is a no-op.
	EndSession(ctx context.Context, sessionID, reason string) error

	// GetSetting returns a stored setting, or "" when it is missing.
	GetSetting(ctx context.Context, key string) (string, error)

	// PutSetting creates or replaces a setting.
	PutSetting(ctx context.Context, key, value string) error

	// PurgeBefore removes sessions, with their messages, whose last
	// activity is older than cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

func validateMessage(sessionID string, role domain.Role, text string) error {
	if sessionID == "" || !role.Valid() || text == "" {
		return ErrInvalidMessage
	}
	return nil
}
