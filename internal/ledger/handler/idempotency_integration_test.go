//go:build integration

package handler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"veritrail/internal/ledger/handler"
	"veritrail/pkg/testutil/containers"
)

type RedisIdempotencySuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *handler.RedisIdempotencyStore
}

func TestRedisIdempotencySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisIdempotencySuite))
}

func (s *RedisIdempotencySuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = handler.NewRedisIdempotencyStore(s.redis.Client)
}

func (s *RedisIdempotencySuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisIdempotencySuite) TestGetMissingKey() {
	_, ok, err := s.store.Get(context.Background(), "absent")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisIdempotencySuite) TestSetNXThenGet() {
	ctx := context.Background()
	body := []byte(`{"hash":"abc123"}`)

	s.Require().NoError(s.store.SetNX(ctx, "retry-1", body, time.Minute))

	stored, ok, err := s.store.Get(ctx, "retry-1")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(body, stored)
}

func (s *RedisIdempotencySuite) TestSetNXKeepsFirstWriter() {
	ctx := context.Background()

	s.Require().NoError(s.store.SetNX(ctx, "retry-2", []byte("first"), time.Minute))
	s.Require().NoError(s.store.SetNX(ctx, "retry-2", []byte("second"), time.Minute))

	stored, ok, err := s.store.Get(ctx, "retry-2")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal([]byte("first"), stored)
}
