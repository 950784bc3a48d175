package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/borichat/internal/domain"
)

// Sender writes one notification to the host surface.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

const (
	defaultOutboxSize   = 64
	defaultWriteTimeout = 5 * time.Second
)

// Outbox delivers notifications in order on a background goroutine so the
// widget loop never blocks on the network. Delivery is fire-and-forget: when
// the queue is full the oldest notification is dropped, and failed writes
// are not retried.
type Outbox struct {
	sender       Sender
	queue        chan domain.Notification
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	logger       *slog.Logger
	writeTimeout time.Duration
}

// NewOutbox starts an outbox in front of sender.
func NewOutbox(sender Sender, size int, logger *slog.Logger) *Outbox {
	if size <= 0 {
		size = defaultOutboxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Outbox{
		sender:       sender,
		queue:        make(chan domain.Notification, size),
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
	}

	o.wg.Add(1)
	go o.process()

	return o
}

// Notify implements run.Notifier.
func (o *Outbox) Notify(n domain.Notification) {
	if o.ctx.Err() != nil {
		return
	}

	select {
	case o.queue <- n:
		return
	default:
	}

	// Queue full: drop the oldest to make room.
	select {
	case dropped := <-o.queue:
		o.logger.Warn("Outbox full, dropping notification", "type", dropped.Type, "queue_len", len(o.queue))
	default:
	}

	select {
	case o.queue <- n:
	default:
		o.logger.Warn("Failed to queue notification", "type", n.Type)
	}
}

func (o *Outbox) process() {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return
		case n := <-o.queue:
			o.send(n)
		}
	}
}

func (o *Outbox) send(n domain.Notification) {
	ctx, cancel := context.WithTimeout(o.ctx, o.writeTimeout)
	defer cancel()

	start := time.Now()
	if err := o.sender.Send(ctx, n); err != nil {
		if o.ctx.Err() == nil {
			o.logger.Debug("Notification not delivered", "type", n.Type, "error", err)
		}
		return
	}
	if d := time.Since(start); d > time.Second {
		o.logger.Warn("Slow notification write", "type", n.Type, "duration_ms", d.Milliseconds())
	}
}

// Flush waits until the queue is empty or ctx ends. The notification being
// written when the queue empties may still be in flight.
func (o *Outbox) Flush(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for len(o.queue) > 0 {
		select {
		case <-ctx.Done():
			return
		case <-o.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close stops delivery. Queued notifications are discarded.
func (o *Outbox) Close() error {
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(defaultWriteTimeout):
		o.logger.Warn("Outbox shutdown timeout", "queue_remaining", len(o.queue))
	}
	return nil
}
