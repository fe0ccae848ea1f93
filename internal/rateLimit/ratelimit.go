package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/storefront-order-core/internal/adapters/redis"
	"github.com/robertarktes/storefront-order-core/internal/observability"
)

// RateLimiter is a fixed-window counter in Redis, keyed per user and per
// client IP by the HTTP middleware.
type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, period)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: a Redis outage must not take checkout down.
		return true
	}

	if incr.Val() > int64(rate) {
		observability.RateLimitExceeded.Inc()
		return false
	}
	return true
}
