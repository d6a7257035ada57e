package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript counts requests in the current window and starts the
// window on the first hit.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// redisLimiter is a fixed-window limiter shared by every edge replica.
// A window admits BurstSize requests and lasts long enough to average out
// at RequestsPerSecond.
type redisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter connects to the Redis instance at url (redis://...).
func NewRedisLimiter(url string, cfg RateLimitConfig) (Limiter, *redis.Client, error) {
	if url == "" {
		return nil, nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return newRedisLimiter(client, cfg), client, nil
}

func newRedisLimiter(client *redis.Client, cfg RateLimitConfig) *redisLimiter {
	limit := cfg.BurstSize
	if limit <= 0 {
		limit = int(math.Ceil(cfg.RequestsPerSecond))
	}
	window := time.Second
	if cfg.RequestsPerSecond > 0 && limit > 0 {
		window = time.Duration(float64(limit) / cfg.RequestsPerSecond * float64(time.Second))
	}
	if window < time.Millisecond {
		window = time.Millisecond
	}
	return &redisLimiter{client: client, limit: limit, window: window, prefix: "hms:ratelimit:"}
}

func (r *redisLimiter) Allow(ctx context.Context, key string) (LimitDecision, error) {
	if r.limit <= 0 {
		return LimitDecision{Allowed: true}, nil
	}
	result, err := fixedWindowScript.Run(ctx, r.client, []string{r.prefix + key}, r.window.Milliseconds()).Result()
	if err != nil {
		return LimitDecision{}, err
	}
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return LimitDecision{}, errors.New("unexpected redis rate limit response")
	}
	current, ok := values[0].(int64)
	if !ok {
		return LimitDecision{}, errors.New("invalid redis counter response")
	}
	ttlMillis, _ := values[1].(int64)

	remaining := r.limit - int(current)
	if remaining < 0 {
		remaining = 0
	}
	d := LimitDecision{
		Allowed:   current <= int64(r.limit),
		Limit:     r.limit,
		Remaining: remaining,
	}
	if !d.Allowed && ttlMillis > 0 {
		d.RetryAfter = time.Duration(ttlMillis) * time.Millisecond
	}
	return d, nil
}
