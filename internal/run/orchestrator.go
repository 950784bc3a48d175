package run

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/borichat/internal/clock"
	"github.com/ashureev/borichat/internal/domain"
	"github.com/ashureev/borichat/internal/eventloop"
	"github.com/ashureev/borichat/internal/i18n"
	"github.com/ashureev/borichat/internal/session"
	"github.com/ashureev/borichat/internal/textnorm"
)

// Options tunes the orchestrator.
type Options struct {
	// PollInterval is the delay between a poll response and the next request.
	PollInterval time.Duration
	// SurfacePollErrors shows a bot error and rearms the inactivity timers
	// when a poll request fails. Off by default: the typing indicator is
	// hidden and the failure is only logged.
	SurfacePollErrors bool
	// RequestTimeout bounds each start or poll request.
	RequestTimeout time.Duration
	// PersistTimeout bounds each transcript save.
	PersistTimeout time.Duration
}

// DefaultOptions returns a 3s poll interval and 30s request timeouts.
func DefaultOptions() Options {
	return Options{
		PollInterval:   3 * time.Second,
		RequestTimeout: 30 * time.Second,
		PersistTimeout: 10 * time.Second,
	}
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Assistant Assistant
	Persister Persister
	Store     *session.Store
	Notifier  Notifier
	Timers    Rearmer
	Exec      eventloop.Executor
	Scheduler clock.Scheduler
	Catalog   *i18n.Catalog
	Logger    *slog.Logger
}

// Orchestrator drives assistant runs for one widget. All methods except
// Close must be called on the widget's executor.
type Orchestrator struct {
	assistant Assistant
	persister Persister
	store     *session.Store
	notifier  Notifier
	timers    Rearmer
	exec      eventloop.Executor
	scheduler clock.Scheduler
	catalog   *i18n.Catalog
	logger    *slog.Logger
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc

	submission uint64
	poll       *pollHandle
}

type pollHandle struct {
	threadID string
	runID    string
	ctx      context.Context
	cancel   context.CancelFunc
	timer    clock.Timer

	// includeMapLink is the confirmation captured when the run was
	// submitted. The store flag is cleared by the first poll response, so
	// every poll of this run sends the captured value instead.
	includeMapLink bool
}

// New creates an orchestrator. Its lifetime ends when ctx is cancelled or
// Close is called.
func New(ctx context.Context, deps Deps, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultOptions().RequestTimeout
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultOptions().PersistTimeout
	}
	if deps.Scheduler == nil {
		deps.Scheduler = clock.Real()
	}
	if deps.Catalog == nil {
		deps.Catalog = i18n.Default()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Orchestrator{
		assistant: deps.Assistant,
		persister: deps.Persister,
		store:     deps.Store,
		notifier:  deps.Notifier,
		timers:    deps.Timers,
		exec:      deps.Exec,
		scheduler: deps.Scheduler,
		catalog:   deps.Catalog,
		logger:    deps.Logger,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit records the visitor message and starts a run for it.
func (o *Orchestrator) Submit(text string) {
	if o.ctx.Err() != nil {
		return
	}
	o.store.AppendUser(text)
	o.persist(domain.RoleUser, text)
	o.notifier.Notify(domain.ShowTyping())

	if o.store.RunState().AwaitingConfirmation() && textnorm.IsAffirmative(text) {
		o.store.MarkMapConfirmed()
	}

	o.submission++
	submission := o.submission
	state := o.store.RunState()
	go func() {
		ctx, cancel := context.WithTimeout(o.ctx, o.opts.RequestTimeout)
		defer cancel()
		res, err := o.assistant.StartRun(ctx, text, state.ThreadID)
		o.exec.Post(func() { o.applyStart(submission, state.IncludeMapLink, res, err) })
	}()
}

func (o *Orchestrator) applyStart(submission uint64, includeMapLink bool, res StartResult, err error) {
	if o.ctx.Err() != nil {
		return
	}
	if submission != o.submission {
		o.logger.Debug("Dropping start result of a superseded message", "session_id", o.store.SessionID(), "run_id", res.RunID)
		return
	}

	if err != nil {
		o.logger.Warn("Failed to start assistant run", "session_id", o.store.SessionID(), "error", err)
		o.failTurn(o.catalog.Text(i18n.GenericError, o.store.Language()))
		return
	}
	if res.Error != "" {
		o.logger.Info("Assistant run rejected", "session_id", o.store.SessionID(), "reason", res.Error)
		o.failTurn(res.Error)
		return
	}

	o.store.SetThreadID(res.ThreadID)
	o.startPoll(res.ThreadID, res.RunID, includeMapLink)
}

// failTurn ends a turn with a bot error and restarts the inactivity cycle.
func (o *Orchestrator) failTurn(text string) {
	o.notifier.Notify(domain.BotError(text))
	o.notifier.Notify(domain.HideTyping())
	o.timers.Rearm()
}

func (o *Orchestrator) startPoll(threadID, runID string, includeMapLink bool) {
	o.cancelPoll()

	ctx, cancel := context.WithCancel(o.ctx)
	h := &pollHandle{threadID: threadID, runID: runID, includeMapLink: includeMapLink, ctx: ctx, cancel: cancel}
	o.poll = h
	o.logger.Debug("Polling assistant run", "session_id", o.store.SessionID(), "thread_id", threadID, "run_id", runID)
	o.scheduleTick(h)
}

func (o *Orchestrator) scheduleTick(h *pollHandle) {
	h.timer = o.scheduler.AfterFunc(o.opts.PollInterval, func() {
		o.exec.Post(func() {
			if o.poll != h {
				return
			}
			o.tick(h)
		})
	})
}

func (o *Orchestrator) tick(h *pollHandle) {
	state := o.store.RunState()
	state.IncludeMapLink = h.includeMapLink
	req := PollRequest{
		ThreadID: h.threadID,
		RunID:    h.runID,
		Language: o.store.Language(),
		State:    state,
	}
	go func() {
		ctx, cancel := context.WithTimeout(h.ctx, o.opts.RequestTimeout)
		defer cancel()
		res, err := o.assistant.PollRun(ctx, req)
		o.exec.Post(func() { o.applyPoll(h, res, err) })
	}()
}

func (o *Orchestrator) applyPoll(h *pollHandle, res PollResult, err error) {
	if o.poll != h {
		return
	}

	if err != nil {
		o.cancelPoll()
		o.logger.Warn("Polling assistant run failed", "session_id", o.store.SessionID(), "run_id", h.runID, "error", err)
		o.notifier.Notify(domain.HideTyping())
		if o.opts.SurfacePollErrors {
			o.notifier.Notify(domain.BotError(o.catalog.Text(i18n.GenericError, o.store.Language())))
			o.timers.Rearm()
		}
		return
	}

	o.store.ApplyPoll(res.AwaitingMapConfirmation, res.LastMapLink)

	switch res.Status {
	case StatusCompleted:
		o.cancelPoll()
		lang := res.LanguageForTTS
		if lang == "" {
			lang = o.store.Language()
		}
		o.store.AppendAssistant(res.BotResponseText, lang)
		o.persist(domain.RoleAssistant, res.BotResponseText)
		o.notifier.Notify(domain.BotMessage(res.BotResponseText))
		o.notifier.Notify(domain.HideTyping())
		o.timers.Rearm()
	case StatusFailed:
		o.cancelPoll()
		text := res.BotResponseText
		if text == "" {
			text = o.catalog.Text(i18n.GenericError, o.store.Language())
		}
		o.failTurn(text)
	default:
		o.scheduleTick(h)
	}
}

// Polling reports whether a poll loop is active.
func (o *Orchestrator) Polling() bool {
	return o.poll != nil
}

// Reset stops the active poll after a forced close. The orchestrator stays
// usable for the next session.
func (o *Orchestrator) Reset() {
	o.cancelPoll()
	o.submission++
}

// Close releases the poll loop and cancels every in-flight request. It is
// safe to call from any goroutine once the owning loop has stopped.
func (o *Orchestrator) Close() {
	o.cancel()
	o.cancelPoll()
}

func (o *Orchestrator) cancelPoll() {
	h := o.poll
	if h == nil {
		return
	}
	o.poll = nil
	if h.timer != nil {
		h.timer.Stop()
	}
	h.cancel()
}

func (o *Orchestrator) persist(role domain.Role, text string) {
	if o.persister == nil {
		return
	}
	sessionID := o.store.SessionID()
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), o.opts.PersistTimeout)
		defer cancel()
		if err := o.persister.SaveMessage(ctx, sessionID, role, text); err != nil {
			o.logger.Warn("Failed to persist chat message", "session_id", sessionID, "role", role, "error", err)
		}
	}()
}
