package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindow increments the window counter, starting the window's expiry on
// its first hit, and returns the count with the remaining TTL in ms
var fixedWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisLimiter is a fixed-window limiter shared by every API instance
type RedisLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// RedisConfig configures a RedisLimiter
type RedisConfig struct {
	Client redis.Cmdable
	Limit  int
	Window time.Duration
	Prefix string // defaults to "fixhub:ratelimit:"
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(cfg RedisConfig) (*RedisLimiter, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "fixhub:ratelimit:"
	}

	return &RedisLimiter{
		client: cfg.Client,
		limit:  cfg.Limit,
		window: cfg.Window,
		prefix: cfg.Prefix,
		now:    time.Now,
	}, nil
}

// Allow counts the request against key's current window
func (l *RedisLimiter) Allow(ctx context.Context, key string) (*Decision, error) {
	res, err := fixedWindow.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(res) != 2 {
		return nil, errors.New("unexpected redis script result")
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   l.now().Add(ttl),
	}, nil
}

// Reset clears key's window
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}
