// Package domain contains core domain types for the chat widget.
package domain

// Role identifies who authored a transcript entry.
type Role string

const (
	// RoleUser marks messages typed by the visitor.
	RoleUser Role = "user"
	// RoleAssistant marks replies produced by the assistant run.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// DefaultLanguage is used until an inbound event names another one.
const DefaultLanguage = "en"

// TranscriptEntry is a single turn of the running conversation.
type TranscriptEntry struct {
	Role     Role   `json:"role"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// Session holds the visitor-facing conversation state of one widget.
// The zero value (plus DefaultLanguage) is the state before any interaction.
type Session struct {
	SessionID       string            `json:"session_id,omitempty"`
	Transcript      []TranscriptEntry `json:"transcript"`
	LastBotResponse string            `json:"last_bot_response,omitempty"`
	HasInteracted   bool              `json:"has_interacted"`
	Language        string            `json:"language"`
}

// NewSession returns an empty session with the default language.
func NewSession() Session {
	return Session{Language: DefaultLanguage}
}

// RecentEntries returns the last n transcript entries.
func (s *Session) RecentEntries(n int) []TranscriptEntry {
	if n >= len(s.Transcript) {
		return s.Transcript
	}
	return s.Transcript[len(s.Transcript)-n:]
}
