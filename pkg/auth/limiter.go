package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RefreshLimiter decides whether a key-set refresh may go out now. It
// must not block: a refused refresh fails the lookup immediately.
type RefreshLimiter interface {
	Allow(ctx context.Context) (bool, error)
}

// LocalRefreshLimiter is an in-process token bucket holding limit tokens
// that refill evenly over window, so a burst of limit refreshes is allowed
// and then one more every window/limit.
type LocalRefreshLimiter struct {
	bucket *rate.Limiter
}

// NewLocalRefreshLimiter returns a bucket allowing limit refreshes per
// window.
func NewLocalRefreshLimiter(limit int, window time.Duration) *LocalRefreshLimiter {
	every := window / time.Duration(limit)
	return &LocalRefreshLimiter{bucket: rate.NewLimiter(rate.Every(every), limit)}
}

// Allow takes a token if one is available.
func (l *LocalRefreshLimiter) Allow(context.Context) (bool, error) {
	return l.bucket.Allow(), nil
}

// Counter is the subset of a Redis client used by [RedisRefreshLimiter].
// *redis.Client from pkg/clients/redis satisfies it.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
}

// RedisRefreshLimiter shares the refresh ceiling between replicas with a
// fixed window counter: INCR on prefix:<window start>, EXPIRE on the
// first hit. When Redis cannot be reached it defers to Fallback.
type RedisRefreshLimiter struct {
	counter  Counter
	prefix   string
	limit    int64
	window   time.Duration
	fallback RefreshLimiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewRedisRefreshLimiter returns a limiter keyed under prefix. fallback
// is consulted while Redis errors; pass a [LocalRefreshLimiter] with the
// same limit.
func NewRedisRefreshLimiter(counter Counter, prefix string, limit int, window time.Duration, fallback RefreshLimiter, logger *slog.Logger) *RedisRefreshLimiter {
	if prefix == "" {
		prefix = "taskhub:jwks-refresh"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRefreshLimiter{
		counter:  counter,
		prefix:   prefix,
		limit:    int64(limit),
		window:   window,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Allow counts this attempt in the current window and reports whether the
// count is still within the limit.
func (l *RedisRefreshLimiter) Allow(ctx context.Context) (bool, error) {
	start := l.now().UTC().Truncate(l.window)
	key := fmt.Sprintf("%s:%d", l.prefix, start.Unix())

	hits, err := l.counter.Incr(ctx, key)
	if err != nil {
		l.logger.WarnContext(ctx, "auth: refresh limiter counter unavailable, using local limit",
			"error", err,
		)
		if l.fallback == nil {
			return false, err
		}
		return l.fallback.Allow(ctx)
	}

	if hits == 1 {
		if _, err := l.counter.Expire(ctx, key, l.window); err != nil {
			l.logger.WarnContext(ctx, "auth: failed to set refresh window expiry",
				"error", err,
				"key", key,
			)
		}
	}
	return hits <= l.limit, nil
}
