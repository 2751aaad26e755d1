// Package service implements the chain engine: the append protocol that
// extends an entity's hash chain atomically, and the verification walk that
// detects tampering.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"veritrail/internal/ledger/chain"
	"veritrail/internal/ledger/metrics"
	"veritrail/internal/ledger/models"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/platform/sentinel"
	"veritrail/pkg/requestcontext"
)

// maxAppendAttempts bounds conflict retries. With per-entity locking
// conflicts are rare; the bound exists so a pathological store cannot spin
// the caller forever.
const maxAppendAttempts = 3

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// AppendRequest carries the semantic fields of a new event. Everything else
// (ID, Seq, OccurredAt, PreviousHash, Hash) is assigned by the engine.
type AppendRequest struct {
	EventType  string
	EntityID   id.EntityID
	EntityType string
	ActorID    id.ActorID
	ActorRole  string
	Payload    map[string]any
}

// Service is the chain engine. It is safe for concurrent use; appends for
// the same entity serialize through the store, appends for different
// entities proceed in parallel.
type Service struct {
	store     Store
	tx        StoreTx
	logger    *slog.Logger
	metrics   *metrics.Metrics
	announcer Announcer
	tracer    trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithTx sets the transactional runner. Defaults to an in-process mutex
// runner suitable for the in-memory store.
func WithTx(tx StoreTx) Option {
	return func(s *Service) { s.tx = tx }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAnnouncer sets the committed-event announcer.
func WithAnnouncer(a Announcer) Option {
	return func(s *Service) { s.announcer = a }
}

// New creates the chain engine over the given store.
func New(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("veritrail/ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newInMemoryStoreTx()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Append commits one event to the entity's chain and returns the fully
// populated record. Exactly one durable row is created on success; nothing
// is left behind on failure.
//
// Error codes: CodeInvalidInput when the payload cannot be canonically
// serialized or required fields are missing; CodeConflict when concurrent
// appends for the same entity exhausted the retry budget; CodeUnavailable
// when the store cannot accept the write.
func (s *Service) Append(ctx context.Context, req AppendRequest) (*models.LedgerEvent, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.append", trace.WithAttributes(
		attribute.String("ledger.entity_id", req.EntityID.String()),
		attribute.String("ledger.event_type", req.EventType),
	))
	defer span.End()

	start := time.Now()
	event, err := s.append(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.observeAppend(string(dErrors.CodeOf(err)), start)
		return nil, err
	}
	s.observeAppend("committed", start)

	if s.announcer != nil {
		if s.metrics != nil {
			s.metrics.AnnouncementsTotal.Inc()
		}
		s.announcer.Announce(*event)
	}

	s.logger.DebugContext(ctx, "ledger event committed",
		"request_id", requestcontext.RequestID(ctx),
		"event_id", event.ID.String(),
		"entity_id", event.EntityID.String(),
		"event_type", event.EventType,
		"seq", event.Seq,
	)
	return event, nil
}

func (s *Service) append(ctx context.Context, req AppendRequest) (*models.LedgerEvent, error) {
	candidate := models.LedgerEvent{
		EventType:  req.EventType,
		ActorID:    req.ActorID,
		ActorRole:  req.ActorRole,
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
		Payload:    req.Payload,
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	var committed *models.LedgerEvent
	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.store.LockEntity(txCtx, req.EntityID); err != nil {
				return err
			}

			event := candidate
			event.ID = id.NewEventID()

			head, err := s.store.Head(txCtx, req.EntityID)
			switch {
			case err == nil:
				event.PreviousHash = head.Hash
			case errors.Is(err, sentinel.ErrNotFound):
				event.PreviousHash = ""
			default:
				return err
			}

			// Server-assigned commit time, truncated to the microsecond
			// precision the store round-trips. Clamped to the head so the
			// per-entity ordering invariant survives clock adjustments.
			event.OccurredAt = requestcontext.Now(txCtx).UTC().Truncate(time.Microsecond)
			if head != nil && event.OccurredAt.Before(head.OccurredAt) {
				event.OccurredAt = head.OccurredAt
			}

			event.Hash, err = chain.Digest(event)
			if err != nil {
				return err
			}

			if err := s.store.Insert(txCtx, &event); err != nil {
				return err
			}
			committed = &event
			return nil
		})
		if err == nil {
			return committed, nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			if s.metrics != nil {
				s.metrics.IncrementConflicts()
			}
			s.logger.WarnContext(ctx, "chain conflict, retrying with fresh head",
				"entity_id", req.EntityID.String(),
				"attempt", attempt,
			)
			continue
		}
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger store rejected append")
	}
	return nil, dErrors.Newf(dErrors.CodeConflict,
		"chain conflict: %d concurrent appends lost the race for entity %s",
		maxAppendAttempts, req.EntityID)
}

// Verify re-walks the entity's chain from a consistent snapshot and reports
// the first divergence, if any. Tampering is a result, not an error; an
// empty chain is vacuously valid. Only infrastructure failures return an
// error.
func (s *Service) Verify(ctx context.Context, entityID id.EntityID) (models.VerificationResult, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.verify", trace.WithAttributes(
		attribute.String("ledger.entity_id", entityID.String()),
	))
	defer span.End()

	events, err := s.store.ChainByEntity(ctx, entityID)
	if err != nil {
		span.RecordError(err)
		return models.VerificationResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger store rejected chain read")
	}

	result := chain.Verify(events)
	if s.metrics != nil {
		s.metrics.ObserveVerification(string(result.Status))
	}
	if !result.OK() {
		s.logger.WarnContext(ctx, "chain verification failed",
			"entity_id", entityID.String(),
			"broken_at", result.BrokenAt,
			"reason", string(result.Reason),
			"detail", result.Detail,
		)
	}
	return result, nil
}

// List returns one page of the entity's committed events in chain order and
// the cursor for the next page (0 when exhausted). The cursor is the Seq of
// the last event returned; pagination is restartable from any cursor.
func (s *Service) List(ctx context.Context, entityID id.EntityID, afterSeq int64, limit int) ([]models.LedgerEvent, int64, error) {
	if entityID.IsNil() {
		return nil, 0, dErrors.New(dErrors.CodeInvalidInput, "entity_id is required")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	events, err := s.store.ListByEntity(ctx, entityID, afterSeq, limit)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger store rejected list")
	}

	var next int64
	if len(events) == limit {
		next = events[len(events)-1].Seq
	}
	return events, next, nil
}

func (s *Service) observeAppend(outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveAppend(outcome, time.Since(start).Seconds())
	}
}
