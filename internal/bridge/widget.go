package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/borichat/internal/clock"
	"github.com/ashureev/borichat/internal/domain"
	"github.com/ashureev/borichat/internal/eventloop"
	"github.com/ashureev/borichat/internal/i18n"
	"github.com/ashureev/borichat/internal/inactivity"
	"github.com/ashureev/borichat/internal/run"
	"github.com/ashureev/borichat/internal/session"
	"github.com/ashureev/borichat/internal/textnorm"
)

// Mailer forwards a reply to a guest's inbox.
type Mailer interface {
	SendEmail(ctx context.Context, email, message string) error
}

// SpeechResult is the outcome of a speech request. A non-empty Error is a
// failure reported by the speech backend.
type SpeechResult struct {
	AudioURI string `json:"audioUri,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Speaker synthesizes speech for a reply.
type Speaker interface {
	GenerateSpeech(ctx context.Context, text, language string) (SpeechResult, error)
}

// Player plays generated audio next to the widget. Failures are swallowed.
type Player interface {
	Play(ctx context.Context, audioURI string) error
}

// ConversationRecorder records the end of a conversation.
type ConversationRecorder interface {
	EndSession(ctx context.Context, sessionID, reason string) error
}

// Deps are the collaborators shared by every widget.
type Deps struct {
	Assistant run.Assistant
	Persister run.Persister
	Mailer    Mailer
	Speaker   Speaker
	Player    Player
	Recorder  ConversationRecorder
	Catalog   *i18n.Catalog
	Scheduler clock.Scheduler
	Logger    *slog.Logger
	// NewSessionID mints session identities. Defaults to random UUIDs.
	NewSessionID func() string
}

// Config holds the per-widget tunables.
type Config struct {
	Timers         inactivity.Durations
	Run            run.Options
	RequestTimeout time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		Timers:         inactivity.DefaultDurations(),
		Run:            run.DefaultOptions(),
		RequestTimeout: 30 * time.Second,
	}
}

// Widget is the bridge for one embedded chat frame. A single event loop owns
// its session, timers and poll handle; Handle may be called from any
// goroutine.
type Widget struct {
	loop     *eventloop.Loop
	store    *session.Store
	timers   *inactivity.Controller
	orch     *run.Orchestrator
	notifier run.Notifier
	deps     Deps
	cfg      Config
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWidget wires a widget that sends its notifications to notifier. Call
// Run to start it.
func NewWidget(notifier run.Notifier, deps Deps, cfg Config) *Widget {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Catalog == nil {
		deps.Catalog = i18n.Default()
	}
	if deps.Scheduler == nil {
		deps.Scheduler = clock.Real()
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = uuid.NewString
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Widget{
		loop:     eventloop.New(64, deps.Logger),
		store:    session.NewStore(),
		notifier: notifier,
		deps:     deps,
		cfg:      cfg,
		logger:   deps.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	w.timers = inactivity.NewController(cfg.Timers, deps.Scheduler, w.loop, inactivity.Hooks{
		OnWarning: w.onWarning,
		OnClose:   w.onClose,
	}, deps.Logger)

	w.orch = run.New(ctx, run.Deps{
		Assistant: deps.Assistant,
		Persister: deps.Persister,
		Store:     w.store,
		Notifier:  notifier,
		Timers:    w.timers,
		Exec:      w.loop,
		Scheduler: deps.Scheduler,
		Catalog:   deps.Catalog,
		Logger:    deps.Logger,
	}, cfg.Run)

	return w
}

// Run arms the initial auto-close timer and processes events until ctx is
// cancelled. On return every timer, the poll loop and in-flight requests
// have been released.
func (w *Widget) Run(ctx context.Context) {
	w.loop.Post(w.timers.Start)
	w.loop.Run(ctx, func() {
		w.timers.Stop()
		w.orch.Close()
		w.cancel()
	})
}

// Done is closed once Run has returned.
func (w *Widget) Done() <-chan struct{} {
	return w.loop.Done()
}

// Handle queues an inbound event. It reports false once the widget stopped.
func (w *Widget) Handle(ev Inbound) bool {
	return w.loop.Post(func() { w.dispatch(ev) })
}

// Snapshot returns the current session state.
func (w *Widget) Snapshot() session.Snapshot {
	return w.store.Snapshot()
}

// State returns the inactivity state, read on the widget loop.
func (w *Widget) State(ctx context.Context) (inactivity.State, error) {
	var st inactivity.State
	err := w.loop.Do(ctx, func() { st = w.timers.State() })
	return st, err
}

func (w *Widget) dispatch(ev Inbound) {
	switch ev.Type {
	case InboundMessage:
		w.activity()
		w.orch.Submit(ev.Text)
	case InboundChatInitialized:
	case InboundUserInputFocus:
		w.activity()
	case InboundSendToGuest:
		w.activity()
		w.store.SetLanguage(ev.Language)
		w.sendToGuest(ev)
	case InboundPlayAudio:
		w.activity()
		w.store.SetLanguage(ev.Language)
		w.playAudio(ev)
	default:
		w.logger.Debug("Ignoring unknown widget event", "type", ev.Type, "session_id", w.store.SessionID())
	}
}

// activity feeds the inactivity machine and opens a session on the first
// interaction.
func (w *Widget) activity() {
	if !w.timers.Activity() {
		return
	}
	id := w.deps.NewSessionID()
	w.store.Begin(id)
	w.logger.Info("Chat session started", "session_id", id)
}

func (w *Widget) language(ev Inbound) string {
	if ev.Language != "" {
		return ev.Language
	}
	return w.store.Language()
}

func (w *Widget) sendToGuest(ev Inbound) {
	lang := w.language(ev)
	reply := w.store.LastBotResponse()
	if reply == "" {
		w.notifier.Notify(domain.BotMessage(w.deps.Catalog.Text(i18n.NothingToSend, lang)))
		return
	}
	if w.deps.Mailer == nil {
		w.notifier.Notify(domain.BotError(w.deps.Catalog.Text(i18n.EmailFailed, lang)))
		return
	}

	sessionID := w.store.SessionID()
	go func() {
		ctx, cancel := context.WithTimeout(w.ctx, w.cfg.RequestTimeout)
		defer cancel()
		err := w.deps.Mailer.SendEmail(ctx, ev.Email, reply)
		w.loop.Post(func() {
			if err != nil {
				w.logger.Warn("Failed to send reply by email", "session_id", sessionID, "error", err)
				w.notifier.Notify(domain.BotError(w.deps.Catalog.Text(i18n.EmailFailed, lang)))
				return
			}
			w.notifier.Notify(domain.BotMessage(w.deps.Catalog.Text(i18n.EmailSent, lang)))
		})
	}()
}

func (w *Widget) playAudio(ev Inbound) {
	lang := w.language(ev)
	if w.deps.Speaker == nil {
		w.notifier.Notify(domain.BotError(w.deps.Catalog.Text(i18n.AudioUnavailable, lang)))
		return
	}

	spoken := textnorm.PrepareForSpeech(ev.Text)
	sessionID := w.store.SessionID()
	go func() {
		ctx, cancel := context.WithTimeout(w.ctx, w.cfg.RequestTimeout)
		defer cancel()
		res, err := w.deps.Speaker.GenerateSpeech(ctx, spoken, lang)
		w.loop.Post(func() { w.applySpeech(sessionID, ev, lang, res, err) })
	}()
}

func (w *Widget) applySpeech(sessionID string, ev Inbound, lang string, res SpeechResult, err error) {
	switch {
	case err != nil:
		w.logger.Warn("Speech generation failed", "session_id", sessionID, "error", err)
		w.notifier.Notify(domain.BotError(w.deps.Catalog.Text(i18n.AudioFailed, lang)))
	case res.Error != "" || res.AudioURI == "":
		w.logger.Info("Speech unavailable", "session_id", sessionID, "reason", res.Error)
		w.notifier.Notify(domain.BotError(w.deps.Catalog.Text(i18n.AudioUnavailable, lang)))
	default:
		w.play(res.AudioURI)
		w.notifier.Notify(domain.AudioResponse(ev.Text, res.AudioURI, ev.Text))
	}
}

func (w *Widget) play(uri string) {
	if w.deps.Player == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(w.ctx, w.cfg.RequestTimeout)
		defer cancel()
		if err := w.deps.Player.Play(ctx, uri); err != nil {
			w.logger.Debug("Local playback failed", "error", err)
		}
	}()
}

func (w *Widget) onWarning() {
	lang := w.store.Language()
	w.notifier.Notify(domain.ActivityWarning(w.deps.Catalog.Text(i18n.ActivityWarning, lang)))
}

func (w *Widget) onClose(reason inactivity.Reason) {
	lang := w.store.Language()
	sessionID := w.store.SessionID()

	w.orch.Reset()
	w.store.Reset()
	w.notifier.Notify(domain.ForceClose(string(reason), w.deps.Catalog.Text(i18n.ForceClose, lang)))
	w.logger.Info("Chat session closed", "session_id", sessionID, "reason", reason)

	if w.deps.Recorder == nil || sessionID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), w.cfg.RequestTimeout)
		defer cancel()
		if err := w.deps.Recorder.EndSession(ctx, sessionID, string(reason)); err != nil {
			w.logger.Warn("Failed to record conversation end", "session_id", sessionID, "error", err)
		}
	}()
}

// End records a teardown of an open conversation. It is called by the
// transport after Run returned.
func (w *Widget) End(ctx context.Context, reason string) {
	sessionID := w.store.SessionID()
	if w.deps.Recorder == nil || sessionID == "" {
		return
	}
	if err := w.deps.Recorder.EndSession(ctx, sessionID, reason); err != nil {
		w.logger.Warn("Failed to record conversation end", "session_id", sessionID, "error", err)
	}
}
