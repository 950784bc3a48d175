// Package session holds the per-widget conversation state: identity,
// transcript, last bot reply and the run side-channel state.
package session

import (
	"sync"

	"github.com/ashureev/borichat/internal/domain"
)

// Store is the session state of one widget. The widget's event loop is the
// only writer; the lock lets status handlers read snapshots concurrently.
type Store struct {
	mu      sync.RWMutex
	session domain.Session
	run     domain.RunState
}

// NewStore creates a store holding the initial (pre-interaction) state.
func NewStore() *Store {
	return &Store{session: domain.NewSession()}
}

// Begin records the first interaction and assigns the session identity.
func (s *Store) Begin(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.SessionID = sessionID
	s.session.HasInteracted = true
}

// SessionID returns the current session identity, empty before Begin.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.SessionID
}

// HasInteracted reports whether Begin has been called since the last reset.
func (s *Store) HasInteracted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.HasInteracted
}

// Language returns the language used for poll requests and localized text.
func (s *Store) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Language
}

// SetLanguage switches the session language. Empty values are ignored.
func (s *Store) SetLanguage(lang string) {
	if lang == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Language = lang
}

// AppendUser adds a visitor message to the transcript.
func (s *Store) AppendUser(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Transcript = append(s.session.Transcript, domain.TranscriptEntry{
		Role: domain.RoleUser,
		Text: text,
	})
}

// AppendAssistant adds an assistant reply and remembers it as the last bot
// response.
func (s *Store) AppendAssistant(text, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Transcript = append(s.session.Transcript, domain.TranscriptEntry{
		Role:     domain.RoleAssistant,
		Text:     text,
		Language: language,
	})
	s.session.LastBotResponse = text
}

// LastBotResponse returns the most recent assistant reply.
func (s *Store) LastBotResponse() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.LastBotResponse
}

// Transcript returns a copy of the running transcript.
func (s *Store) Transcript() []domain.TranscriptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TranscriptEntry, len(s.session.Transcript))
	copy(out, s.session.Transcript)
	return out
}

// RunState returns a copy of the run side-channel state.
func (s *Store) RunState() domain.RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

// SetThreadID stores the thread handle returned by a run start.
func (s *Store) SetThreadID(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.ThreadID = threadID
}

// MarkMapConfirmed flags the next run as carrying the visitor's "yes" to the
// pending map link.
func (s *Store) MarkMapConfirmed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.IncludeMapLink = true
}

// ApplyPoll refreshes the map fields from a poll response and consumes the
// confirmation flag.
func (s *Store) ApplyPoll(awaitingMapConfirmation, lastMapLink string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.AwaitingMapConfirmation = awaitingMapConfirmation
	s.run.LastMapLink = lastMapLink
	s.run.IncludeMapLink = false
}

// Reset wipes the session and run state back to their initial values.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = domain.NewSession()
	s.run = domain.RunState{}
}

// Snapshot is a point-in-time copy of the whole store.
type Snapshot struct {
	Session domain.Session  `json:"session"`
	Run     domain.RunState `json:"run"`
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := s.session
	sess.Transcript = make([]domain.TranscriptEntry, len(s.session.Transcript))
	copy(sess.Transcript, s.session.Transcript)
	return Snapshot{Session: sess, Run: s.run}
}
