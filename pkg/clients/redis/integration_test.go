//go:build integration

// Integration tests for the Redis client and the shared refresh limiter
// built on it. Run with:
//
//	go test -v -race -tags=integration ./pkg/clients/redis/...
package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/StricklySoft/taskhub/internal/testutil/containers"
	"github.com/StricklySoft/taskhub/pkg/auth"
	"github.com/StricklySoft/taskhub/pkg/clients/redis"
)

// RedisIntegrationSuite shares one container across its tests; each test
// uses its own key prefix.
type RedisIntegrationSuite struct {
	suite.Suite

	ctx         context.Context
	redisResult *containers.RedisResult
	client      *redis.Client
}

func TestRedisIntegration(t *testing.T) {
	suite.Run(t, new(RedisIntegrationSuite))
}

func (s *RedisIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	result, err := containers.StartRedis(s.ctx)
	require.NoError(s.T(), err)
	s.redisResult = result

	client, err := redis.NewClient(s.ctx, redis.Config{URI: result.ConnString})
	require.NoError(s.T(), err)
	s.client = client
}

func (s *RedisIntegrationSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.redisResult != nil {
		if err := s.redisResult.Container.Terminate(s.ctx); err != nil {
			s.T().Logf("failed to terminate redis container: %v", err)
		}
	}
}

func (s *RedisIntegrationSuite) key(name string) string {
	return fmt.Sprintf("it:%s:%s", s.T().Name(), name)
}

func (s *RedisIntegrationSuite) TestHealth() {
	assert.NoError(s.T(), s.client.Health(s.ctx))
}

func (s *RedisIntegrationSuite) TestIncrAndExpire() {
	k := s.key("counter")

	n, err := s.client.Incr(s.ctx, k)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), n)

	n, err = s.client.Incr(s.ctx, k)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), n)

	ok, err := s.client.Expire(s.ctx, k, time.Minute)
	require.NoError(s.T(), err)
	assert.True(s.T(), ok)

	ok, err = s.client.Expire(s.ctx, s.key("missing"), time.Minute)
	require.NoError(s.T(), err)
	assert.False(s.T(), ok)
}

// TestSharedRefreshLimiter checks that two limiters on the same prefix
// share one budget, as two replicas would.
func (s *RedisIntegrationSuite) TestSharedRefreshLimiter() {
	prefix := s.key("jwks")
	a := auth.NewRedisRefreshLimiter(s.client, prefix, 3, time.Minute, nil, nil)
	b := auth.NewRedisRefreshLimiter(s.client, prefix, 3, time.Minute, nil, nil)

	var allowed int
	for i := 0; i < 3; i++ {
		for _, l := range []*auth.RedisRefreshLimiter{a, b} {
			ok, err := l.Allow(s.ctx)
			require.NoError(s.T(), err)
			if ok {
				allowed++
			}
		}
	}
	// A window boundary may fall inside the loop, so allow for one reset.
	assert.GreaterOrEqual(s.T(), allowed, 3)
	assert.LessOrEqual(s.T(), allowed, 6)
}
