package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/connectai-gateway/internal/observability"
)

// fixedWindowScript implements check-and-increment atomically.
// KEYS[1] window hash; ARGV limit, window_ms, now_ms.
// Returns {allowed, count, window_start_ms}.
var fixedWindowScript = redis.NewScript(`
local start = tonumber(redis.call('HGET', KEYS[1], 'start'))
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
if start == nil or count == nil or now - start >= window then
  redis.call('HSET', KEYS[1], 'start', now, 'count', 1)
  redis.call('PEXPIRE', KEYS[1], window)
  return {1, 1, now}
end
if count >= limit then
  return {0, count, start}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, count, start}
`)

// RedisLimiter keeps windows in Redis. A single Lua script performs the
// read and conditional increment, so concurrent callers cannot overshoot.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

// NewRedisLimiter constructs a RedisLimiter. Keys are "<prefix><purpose>:<user>".
func NewRedisLimiter(client redis.Scripter, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Allow counts one request. Redis errors fail open.
func (l *RedisLimiter) Allow(ctx context.Context, userID string, q Quota) (Decision, error) {
	now := l.now()
	key := l.prefix + string(q.Purpose) + ":" + userID

	vals, err := fixedWindowScript.Run(ctx, l.client, []string{key}, q.Limit, q.Window.Milliseconds(), now.UnixMilli()).Int64Slice()
	if err == nil && len(vals) != 3 {
		err = fmt.Errorf("unexpected script reply %v", vals)
	}
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("purpose", string(q.Purpose)).
			Msg("redis rate window failed; allowing request")
		return Decision{Allowed: true}, err
	}

	d := Decision{Allowed: vals[0] == 1, Count: int(vals[1])}
	if !d.Allowed {
		d.RetryAfter = retryAfter(time.UnixMilli(vals[2]), q.Window, now)
		observability.QuotaRejections.WithLabelValues(string(q.Purpose)).Inc()
	}
	return d, nil
}
