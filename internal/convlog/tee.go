package convlog

import (
	"context"

	"github.com/ashureev/borichat/internal/domain"
)

// Persister matches run.Persister.
type Persister interface {
	SaveMessage(ctx context.Context, sessionID string, role domain.Role, text string) error
}

// Recorder matches bridge.ConversationRecorder.
type Recorder interface {
	EndSession(ctx context.Context, sessionID, reason string) error
}

// Tee logs transcript writes and session ends before passing them on.
// Either destination may be nil.
type Tee struct {
	persister Persister
	recorder  Recorder
	log       Logger
}

// NewTee creates a tee. A nil log disables logging.
func NewTee(persister Persister, recorder Recorder, log Logger) *Tee {
	if log == nil {
		log = noopLogger{}
	}
	return &Tee{persister: persister, recorder: recorder, log: log}
}

// SaveMessage logs and persists a transcript entry.
func (t *Tee) SaveMessage(ctx context.Context, sessionID string, role domain.Role, text string) error {
	ev := Event{
		SessionID:  sessionID,
		Channel:    "widget",
		ContentRaw: text,
	}
	if role == domain.RoleUser {
		ev.Direction = "inbound"
		ev.EventType = "chat_user_message"
	} else {
		ev.Direction = "outbound"
		ev.EventType = "chat_assistant_message"
	}
	t.log.Log(ev)

	if t.persister == nil {
		return nil
	}
	return t.persister.SaveMessage(ctx, sessionID, role, text)
}

// EndSession logs and records the end of a conversation.
func (t *Tee) EndSession(ctx context.Context, sessionID, reason string) error {
	t.log.Log(Event{
		SessionID: sessionID,
		Channel:   "widget",
		Direction: "internal",
		EventType: "session_end",
		Meta:      map[string]any{"reason": reason},
	})

	if t.recorder == nil {
		return nil
	}
	return t.recorder.EndSession(ctx, sessionID, reason)
}
