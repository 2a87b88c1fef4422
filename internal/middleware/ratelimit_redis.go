package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a GCRA limiter whose state lives in Redis, so every
// instance behind a load balancer shares the same budget per client.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisLimiter creates a RedisLimiter. prefix namespaces the keys so the
// auth and upload limiters do not share budgets.
func NewRedisLimiter(client *redis.Client, config RateLimitConfig, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  config.BurstSize,
			Period: time.Minute,
		},
		prefix: prefix,
	}
}

// Allow consumes one request from key's budget.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	res, err := rl.limiter.Allow(ctx, rl.prefix+":"+key, rl.limit)
	if err != nil {
		return false, 0, fmt.Errorf("redis rate limit: %w", err)
	}
	return res.Allowed > 0, res.Remaining, nil
}

// NewRedisClient builds a client from a redis:// or rediss:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
