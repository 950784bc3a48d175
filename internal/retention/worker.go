// Package retention purges old chat transcripts.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/borichat/internal/shared"
)

// DefaultInterval is the time between purge sweeps.
const DefaultInterval = time.Hour

// Purger removes sessions idle since before cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeCallback is called after a sweep that removed sessions.
type PurgeCallback func(removed int64)

// Worker periodically purges transcripts older than the retention window.
type Worker struct {
	repo      Purger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	onPurge   PurgeCallback
}

// NewWorker creates a worker. A non-positive interval uses DefaultInterval.
func NewWorker(repo Purger, retention, interval time.Duration, onPurge PurgeCallback) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Worker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		onPurge:   onPurge,
	}
}

// Start runs the sweep loop in a goroutine until ctx is cancelled. A
// non-positive retention disables purging.
func (w *Worker) Start(ctx context.Context) {
	if w.retention <= 0 {
		slog.Info("Retention worker disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", w.interval, "retention", w.retention)

		for {
			select {
			case <-ticker.C:
				w.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep purges once, retrying SQLite lock conflicts with exponential
// backoff: 50ms, 100ms.
func (w *Worker) Sweep(ctx context.Context) int64 {
	cutoff := w.now().Add(-w.retention)
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		removed, err := w.repo.PurgeBefore(ctx, cutoff)
		if err == nil {
			if removed > 0 {
				slog.Info("Retention worker purged sessions", "count", removed, "cutoff", cutoff)
				if w.onPurge != nil {
					w.onPurge(removed)
				}
			}
			return removed
		}

		if ctx.Err() != nil {
			slog.Debug("Retention worker: context canceled during purge", "error", err)
			return 0
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("Retention worker: database locked during purge, retrying",
				"attempt", i+1,
				"delay", delay)
			select {
			case <-ctx.Done():
				return 0
			case <-time.After(delay):
			}
			continue
		}

		slog.Error("Retention worker failed to purge sessions", "error", err, "attempts", i+1)
		return 0
	}
	return 0
}
