// Package announce streams committed ledger events to downstream consumers
// (the reporting layer). Announcement is best-effort: the durable row in the
// event store is the source of truth, so a full inbox drops the announcement
// rather than block or fail the append.
package announce

import (
	"context"
	"log/slog"

	"veritrail/internal/ledger/metrics"
	"veritrail/internal/ledger/models"
)

const defaultInboxSize = 256

// Publisher delivers one committed event to the announcement transport.
type Publisher interface {
	Publish(ctx context.Context, event models.LedgerEvent) error
	Close()
}

// Announcer buffers committed events and publishes them from a worker
// goroutine so the append path never blocks on the transport.
type Announcer struct {
	inbox   chan models.LedgerEvent
	pub     Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Announcer.
type Option func(*Announcer)

// WithInboxSize overrides the inbox buffer size.
func WithInboxSize(n int) Option {
	return func(a *Announcer) {
		if n > 0 {
			a.inbox = make(chan models.LedgerEvent, n)
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Announcer) { a.metrics = m }
}

// New creates an announcer over the given publisher.
func New(pub Publisher, logger *slog.Logger, opts ...Option) *Announcer {
	a := &Announcer{
		inbox:  make(chan models.LedgerEvent, defaultInboxSize),
		pub:    pub,
		logger: logger,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Announce enqueues a committed event without blocking. Drops the event when
// the inbox is full.
func (a *Announcer) Announce(event models.LedgerEvent) {
	select {
	case a.inbox <- event:
	default:
		if a.metrics != nil {
			a.metrics.AnnouncementsDrops.Inc()
		}
		a.logger.Warn("announcer inbox full, dropping event",
			"event_id", event.ID.String(),
			"entity_id", event.EntityID.String(),
		)
	}
}

// Run consumes the inbox until ctx is cancelled, then drains whatever is
// already buffered and closes the publisher. Publish failures are logged and
// counted, never propagated: the ledger row already committed.
func (a *Announcer) Run(ctx context.Context) error {
	defer a.pub.Close()
	for {
		select {
		case <-ctx.Done():
			a.drain()
			return ctx.Err()
		case event := <-a.inbox:
			a.publish(ctx, event)
		}
	}
}

func (a *Announcer) drain() {
	for {
		select {
		case event := <-a.inbox:
			a.publish(context.Background(), event)
		default:
			return
		}
	}
}

func (a *Announcer) publish(ctx context.Context, event models.LedgerEvent) {
	if err := a.pub.Publish(ctx, event); err != nil {
		if a.metrics != nil {
			a.metrics.AnnouncementsErrors.Inc()
		}
		a.logger.Error("failed to publish committed event",
			"event_id", event.ID.String(),
			"entity_id", event.EntityID.String(),
			"error", err,
		)
	}
}
