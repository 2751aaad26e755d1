package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency replay is a caller-side convenience, not a chain guarantee:
// the ledger itself treats every append as a distinct event, so the HTTP
// layer deduplicates retried requests before they reach the engine. Replay
// is best-effort; a lost redis entry only means a retried request appends a
// second, equally valid event.

const (
	idempotencyPrefix = "veritrail:idem:"
	idempotencyTTL    = 24 * time.Hour
)

// IdempotencyStore remembers the response body of a committed append keyed
// by the caller's Idempotency-Key.
type IdempotencyStore interface {
	// Get returns the stored body for key, or ok=false when absent.
	Get(ctx context.Context, key string) (body []byte, ok bool, err error)
	// SetNX stores body for key unless one already exists.
	SetNX(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// RedisIdempotencyStore backs idempotency replay with Redis.
type RedisIdempotencyStore struct {
	client redis.Cmdable
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store.
func NewRedisIdempotencyStore(client redis.Cmdable) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get idempotency key: %w", err)
	}
	return body, true, nil
}

func (s *RedisIdempotencyStore) SetNX(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	if err := s.client.SetNX(ctx, idempotencyPrefix+key, body, ttl).Err(); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}

// replayIdempotent returns a previously committed response for the key.
// Store failures degrade to a fresh append rather than failing the request.
func (h *Handler) replayIdempotent(ctx context.Context, key string) ([]byte, bool) {
	body, ok, err := h.idempotency.Get(ctx, key)
	if err != nil {
		h.logger.WarnContext(ctx, "idempotency lookup failed, proceeding without replay",
			"error", err.Error(),
		)
		return nil, false
	}
	return body, ok
}

func (h *Handler) storeIdempotent(ctx context.Context, key string, body []byte) {
	if err := h.idempotency.SetNX(ctx, key, body, idempotencyTTL); err != nil {
		h.logger.WarnContext(ctx, "failed to store idempotency key",
			"error", err.Error(),
		)
	}
}
