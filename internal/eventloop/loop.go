// Package eventloop runs closures one at a time on a single goroutine so that
// widget state has exactly one owner.
package eventloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned when work is submitted to a loop that has exited.
var ErrStopped = errors.New("event loop stopped")

// Executor accepts work to run on the owning goroutine.
type Executor interface {
	// Post queues f and reports whether it was accepted. It never blocks the
	// caller once the loop has stopped.
	Post(f func()) bool
}

// Loop is a serial executor. Closures posted to it run in order, never
// concurrently with each other.
type Loop struct {
	tasks  chan func()
	done   chan struct{}
	stop   sync.Once
	logger *slog.Logger
}

// New creates a loop with a task buffer of the given size.
func New(buffer int, logger *slog.Logger) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		tasks:  make(chan func(), buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post implements Executor.
func (l *Loop) Post(f func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case <-l.done:
		return false
	case l.tasks <- f:
		return true
	}
}

// Run executes posted closures until ctx is cancelled. The onStop hook runs
// on the loop goroutine after the last task and before Run returns.
func (l *Loop) Run(ctx context.Context, onStop func()) {
	defer func() {
		l.stop.Do(func() { close(l.done) })
		if onStop != nil {
			onStop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-l.tasks:
			l.runTask(f)
		}
	}
}

func (l *Loop) runTask(f func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Event loop task panicked", "panic", r)
		}
	}()
	f()
}

// Do runs f on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		f()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		// The task may still have run before the loop stopped.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Inline runs posted work immediately on the caller's goroutine. It is meant
// for tests that drive timers by hand.
type Inline struct{}

// Post implements Executor.
func (Inline) Post(f func()) bool {
	f()
	return true
}
