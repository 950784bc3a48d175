package domain

import (
	"time"
)

// StoredMessage is a persisted transcript entry.
type StoredMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession is the persisted record of one conversation.
type ChatSession struct {
	SessionID      string     `json:"session_id"`
	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	EndReason      string     `json:"end_reason,omitempty"`
}

// Ended returns true once the conversation has been closed.
func (c *ChatSession) Ended() bool {
	return c.EndedAt != nil
}
