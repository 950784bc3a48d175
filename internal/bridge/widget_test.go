package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/borichat/internal/clock"
	"github.com/ashureev/borichat/internal/domain"
	"github.com/ashureev/borichat/internal/i18n"
	"github.com/ashureev/borichat/internal/inactivity"
	"github.com/ashureev/borichat/internal/run"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type notes struct {
	mu  sync.Mutex
	all []domain.Notification
}

func (n *notes) Notify(note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all = append(n.all, note)
}

func (n *notes) list() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.all...)
}

func (n *notes) ofType(t domain.NotificationType) []domain.Notification {
	var out []domain.Notification
	for _, note := range n.list() {
		if note.Type == t {
			out = append(out, note)
		}
	}
	return out
}

// scriptedAssistant completes every run on its first poll with a fixed reply.
type scriptedAssistant struct {
	reply string
}

func (a *scriptedAssistant) StartRun(context.Context, string, string) (run.StartResult, error) {
	return run.StartResult{ThreadID: "thread-1", RunID: "run-1"}, nil
}

func (a *scriptedAssistant) PollRun(context.Context, run.PollRequest) (run.PollResult, error) {
	return run.PollResult{Status: run.StatusCompleted, BotResponseText: a.reply, LanguageForTTS: "en"}, nil
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []string
	err   error
	email string
}

func (m *fakeMailer) SendEmail(_ context.Context, email, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.email = email
	m.sent = append(m.sent, message)
	return m.err
}

func (m *fakeMailer) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type fakeSpeaker struct {
	mu     sync.Mutex
	texts  []string
	result SpeechResult
	err    error
}

func (s *fakeSpeaker) GenerateSpeech(_ context.Context, text, _ string) (SpeechResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.result, s.err
}

func (s *fakeSpeaker) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type fakePlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *fakePlayer) Play(_ context.Context, uri string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, uri)
	return errors.New("no audio device")
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

type endRecord struct {
	sessionID string
	reason    string
}

type fakeRecorder struct {
	mu   sync.Mutex
	ends []endRecord
}

func (r *fakeRecorder) EndSession(_ context.Context, sessionID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, endRecord{sessionID: sessionID, reason: reason})
	return nil
}

func (r *fakeRecorder) list() []endRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]endRecord(nil), r.ends...)
}

type widgetHarness struct {
	widget   *Widget
	clock    *clock.Manual
	notes    *notes
	mailer   *fakeMailer
	speaker  *fakeSpeaker
	player   *fakePlayer
	recorder *fakeRecorder
	cancel   context.CancelFunc
}

func newWidgetHarness(t *testing.T) *widgetHarness {
	t.Helper()
	h := &widgetHarness{
		clock:    clock.NewManual(),
		notes:    &notes{},
		mailer:   &fakeMailer{},
		speaker:  &fakeSpeaker{result: SpeechResult{AudioURI: "data:audio/mpeg;base64,AAAA"}},
		player:   &fakePlayer{},
		recorder: &fakeRecorder{},
	}
	ids := 0
	h.widget = NewWidget(h.notes, Deps{
		Assistant: &scriptedAssistant{reply: "Try the mofongo at El Jibarito."},
		Mailer:    h.mailer,
		Speaker:   h.speaker,
		Player:    h.player,
		Recorder:  h.recorder,
		Catalog:   i18n.Default(),
		Scheduler: h.clock,
		NewSessionID: func() string {
			ids++
			return "sess-" + string(rune('0'+ids))
		},
	}, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.widget.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.widget.Done()
	})

	// Run arms the initial auto-close timer.
	require.Eventually(t, func() bool { return h.clock.Pending() == 1 }, waitFor, tick)
	return h
}

func (h *widgetHarness) state(t *testing.T) inactivity.State {
	t.Helper()
	st, err := h.widget.State(context.Background())
	require.NoError(t, err)
	return st
}

func (h *widgetHarness) chat(t *testing.T, text string) {
	t.Helper()
	before := len(h.notes.ofType(domain.NotifyBotMessage))
	require.True(t, h.widget.Handle(Inbound{Type: InboundMessage, Text: text}))
	// Wait for the poll timer to be armed, then let it fire.
	require.Eventually(t, func() bool {
		return h.clock.Pending() == 2
	}, waitFor, tick)
	h.clock.Advance(run.DefaultOptions().PollInterval)
	require.Eventually(t, func() bool {
		return len(h.notes.ofType(domain.NotifyBotMessage)) == before+1
	}, waitFor, tick)
}

func TestWidgetInitialInactivityForceClose(t *testing.T) {
	h := newWidgetHarness(t)

	h.clock.Advance(60 * time.Second)
	require.Eventually(t, func() bool {
		return len(h.notes.ofType(domain.NotifyForceClose)) == 1
	}, waitFor, tick)

	closeNote := h.notes.ofType(domain.NotifyForceClose)[0]
	require.Equal(t, string(inactivity.ReasonInitialInactivity), closeNote.Reason)
	require.Equal(t, "Timeout! Chat closed due to inactivity. 🦤", closeNote.Message)
	require.Equal(t, inactivity.Closed, h.state(t))
	require.Empty(t, h.recorder.list(), "no conversation was started")

	h.clock.Advance(time.Hour)
	require.Len(t, h.notes.ofType(domain.NotifyForceClose), 1)
}

func TestWidgetFirstMessageStartsSession(t *testing.T) {
	h := newWidgetHarness(t)

	h.chat(t, "Where should I eat?")

	snap := h.widget.Snapshot()
	require.Equal(t, "sess-1", snap.Session.SessionID)
	require.True(t, snap.Session.HasInteracted)
	require.Len(t, snap.Session.Transcript, 2)
	require.Equal(t, "Try the mofongo at El Jibarito.", snap.Session.LastBotResponse)
	require.Equal(t, "thread-1", snap.Run.ThreadID)
	require.Equal(t, inactivity.Active, h.state(t))

	// The initial close deadline passes without effect.
	h.clock.Advance(90 * time.Second)
	require.Empty(t, h.notes.ofType(domain.NotifyForceClose))
}

func TestWidgetSessionTimeoutWipesState(t *testing.T) {
	h := newWidgetHarness(t)
	h.chat(t, "hola")

	h.clock.Advance(120 * time.Second)
	require.Eventually(t, func() bool {
		return len(h.notes.ofType(domain.NotifyActivityWarning)) == 1
	}, waitFor, tick)
	require.Equal(t, "Still there? Chat will close in 1 minute(s).", h.notes.ofType(domain.NotifyActivityWarning)[0].Message)

	h.clock.Advance(60 * time.Second)
	require.Eventually(t, func() bool {
		return len(h.notes.ofType(domain.NotifyForceClose)) == 1
	}, waitFor, tick)
	require.Equal(t, string(inactivity.ReasonSessionTimeout), h.notes.ofType(domain.NotifyForceClose)[0].Reason)

	snap := h.widget.Snapshot()
	require.Empty(t, snap.Session.SessionID)
	require.Empty(t, snap.Session.Transcript)
	require.Empty(t, snap.Session.LastBotResponse)
	require.Equal(t, domain.RunState{}, snap.Run)

	require.Eventually(t, func() bool { return len(h.recorder.list()) == 1 }, waitFor, tick)
	require.Equal(t, endRecord{sessionID: "sess-1", reason: "session_timeout"}, h.recorder.list()[0])
}

func TestWidgetActivityAfterCloseStartsNewSession(t *testing.T) {
	h := newWidgetHarness(t)
	h.clock.Advance(60 * time.Second)
	require.Eventually(t, func() bool { return h.state(t) == inactivity.Closed }, waitFor, tick)

	require.True(t, h.widget.Handle(Inbound{Type: InboundUserInputFocus}))
	require.Eventually(t, func() bool { return h.widget.Snapshot().Session.SessionID == "sess-1" }, waitFor, tick)
	require.Equal(t, inactivity.Active, h.state(t))
}

func TestWidgetSendToGuestWithoutReply(t *testing.T) {
	h := newWidgetHarness(t)

	h.widget.Handle(Inbound{Type: InboundSendToGuest, Email: "guest@example.com", Language: "es"})
	require.Eventually(t, func() bool {
		return len(h.notes.ofType(domain.NotifyBotMessage)) == 1
	}, waitFor, tick)

	require.Equal(t, "🤔 ¡No hay respuesta para enviar! Chatea primero.", h.notes.ofType(domain.NotifyBotMessage)[0].Text)
	require.Empty(t, h.mailer.messages())
	require.Equal(t, inactivity.Active, h.state(t), "sendToGuest counts as activity")
}

func TestWidgetSendToGuestForwardsLastReply(t *testing.T) {
	h := newWidgetHarness(t)
	h.chat(t, "Where should I eat?")

	h.widget.Handle(Inbound{Type: InboundSendToGuest, Email: "guest@example.com", Language: "en"})
	require.Eventually(t, func() bool {
		return len(h.notes.ofType(domain.NotifyBotMessage)) == 2
	}, waitFor, tick)

	require.Equal(t, []string{"Try the mofongo at El Jibarito."}, h.mailer.messages())
	require.Equal(t, "✅ Email sent successfully!", h.notes.ofType(domain.NotifyBotMessage)[1].Text)
}

func TestWidgetSendToGuestFailure(t *testing.T) {
	h := newWidgetHarness(t)
	h.mailer.err = errors.New("smtp down")
	h.chat(t, "hi")

	h.widget.Handle(Inbound{Type: InboundSendToGuest, Email: "guest@example.com", Language: "es"})
	require.Eventually(t, func() bool {
		return len(h.notes.ofType(domain.NotifyBotError)) == 1
	}, waitFor, tick)
	require.Equal(t, "❌ ¡Problema al enviar el email! Intenta de nuevo.", h.notes.ofType(domain.NotifyBotError)[0].Text)
}

func TestWidgetPlayAudio(t *testing.T) {
	h := newWidgetHarness(t)
	original := "Visit https://maps.app.goo.gl/abc at 18.4655, -66.1057 today"

	h.widget.Handle(Inbound{Type: InboundPlayAudio, Text: original, Language: "en"})
	require.Eventually(t, func() bool {
		return len(h.notes.ofType(domain.NotifyAudioResponse)) == 1
	}, waitFor, tick)

	spoken := h.speaker.requested()
	require.Len(t, spoken, 1)
	require.NotContains(t, spoken[0], "https://")
	require.NotContains(t, spoken[0], "18.4655")

	note := h.notes.ofType(domain.NotifyAudioResponse)[0]
	require.Equal(t, original, note.Text)
	require.Equal(t, original, note.OriginalText)
	require.Equal(t, "data:audio/mpeg;base64,AAAA", note.AudioData)

	// Playback failure is swallowed.
	require.Eventually(t, func() bool { return h.player.count() == 1 }, waitFor, tick)
	require.Empty(t, h.notes.ofType(domain.NotifyBotError))
}

func TestWidgetPlayAudioErrors(t *testing.T) {
	h := newWidgetHarness(t)
	h.speaker.result = SpeechResult{Error: "voice unavailable"}

	h.widget.Handle(Inbound{Type: InboundPlayAudio, Text: "hola", Language: "es"})
	require.Eventually(t, func() bool {
		return len(h.notes.ofType(domain.NotifyBotError)) == 1
	}, waitFor, tick)
	require.Equal(t, "❌ ¡No se pudo generar el audio!", h.notes.ofType(domain.NotifyBotError)[0].Text)

	h.speaker.mu.Lock()
	h.speaker.err = errors.New("timeout")
	h.speaker.mu.Unlock()

	h.widget.Handle(Inbound{Type: InboundPlayAudio, Text: "hello", Language: "en"})
	require.Eventually(t, func() bool {
		return len(h.notes.ofType(domain.NotifyBotError)) == 2
	}, waitFor, tick)
	require.Equal(t, "❌ Audio generation failed.", h.notes.ofType(domain.NotifyBotError)[1].Text)
	require.Zero(t, h.player.count())
}

func TestWidgetTeardownReleasesTimers(t *testing.T) {
	h := newWidgetHarness(t)
	h.widget.Handle(Inbound{Type: InboundUserInputFocus})
	require.Eventually(t, func() bool { return h.state(t) == inactivity.Active }, waitFor, tick)

	h.cancel()
	<-h.widget.Done()

	require.Zero(t, h.clock.Pending())
	h.clock.Advance(time.Hour)
	require.Empty(t, h.notes.ofType(domain.NotifyActivityWarning))
	require.Empty(t, h.notes.ofType(domain.NotifyForceClose))
	require.False(t, h.widget.Handle(Inbound{Type: InboundUserInputFocus}))
}
