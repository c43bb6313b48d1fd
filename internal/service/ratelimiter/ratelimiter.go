// Package ratelimiter provides Redis-backed limiters shared across server replicas.
package ratelimiter

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter admits or rejects a unit of work for key. On Redis errors limiters
// fail open and return the error so callers can log it.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// FixedWindow allows at most Limit hits per key within Window. The window starts at the first hit.
type FixedWindow struct {
	redis  redis.Scripter
	prefix string
	limit  int64
	window time.Duration
	script *redis.Script
}

const luaFixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return { current, ttl }
`

// NewFixedWindow returns a FixedWindow limiter namespaced under prefix.
func NewFixedWindow(rdb redis.Scripter, prefix string, limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		redis:  rdb,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		script: redis.NewScript(luaFixedWindowScript),
	}
}

// Allow counts one hit for key.
func (l *FixedWindow) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.redis == nil || l.limit <= 0 || l.window <= 0 {
		return true, 0, nil
	}
	redisKey := l.prefix + key
	res, err := l.script.Run(ctx, l.redis, []string{redisKey}, l.window.Milliseconds()).Result()
	if err != nil {
		slog.Error("redis fixed window script error", slog.String("key", redisKey), slog.Any("error", err))
		return true, 0, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		slog.Error("redis fixed window unexpected script result", slog.String("key", redisKey), slog.Any("result", res))
		return true, 0, nil
	}
	count := toInt64(vals[0])
	if count <= l.limit {
		return true, 0, nil
	}
	ttl := toInt64(vals[1])
	if ttl < 0 {
		ttl = 0
	}
	return false, time.Duration(ttl) * time.Millisecond, nil
}

// BucketConfig sizes a token bucket.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64
}

// NewBucketConfigFromPerMinute sizes a bucket to perMinute with a burst of perMinute.
func NewBucketConfigFromPerMinute(perMinute int) BucketConfig {
	if perMinute <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{
		Capacity:   int64(perMinute),
		RefillRate: float64(perMinute) / 60.0,
	}
}

// TokenBucket is a smoothed limiter evaluated atomically in Redis.
type TokenBucket struct {
	redis  redis.Scripter
	prefix string
	cfg    BucketConfig
	script *redis.Script
	now    func() time.Time
}

// NewTokenBucket returns a TokenBucket limiter namespaced under prefix.
func NewTokenBucket(rdb redis.Scripter, prefix string, cfg BucketConfig) *TokenBucket {
	return &TokenBucket{
		redis:  rdb,
		prefix: prefix,
		cfg:    cfg,
		script: redis.NewScript(luaTokenBucketScript),
		now:    time.Now,
	}
}

const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] ~= false and data[1] ~= nil then
  tokens = tonumber(data[1])
end
if data[2] ~= false and data[2] ~= nil then
  last_refill = tonumber(data[2])
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end

tokens = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
local retry_after = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  retry_after = (cost - tokens) / refill_rate
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
redis.call("EXPIRE", key, math.ceil(capacity / refill_rate) + 1)

return { allowed, tostring(retry_after) }
`

// Allow takes one token for key.
func (l *TokenBucket) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.redis == nil || l.cfg.Capacity <= 0 || l.cfg.RefillRate <= 0 {
		return true, 0, nil
	}
	redisKey := l.prefix + key
	nowSec := float64(l.now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.redis, []string{redisKey}, l.cfg.Capacity, l.cfg.RefillRate, nowSec, 1).Result()
	if err != nil {
		slog.Error("redis token bucket script error", slog.String("key", redisKey), slog.Any("error", err))
		return true, 0, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		slog.Error("redis token bucket unexpected script result", slog.String("key", redisKey), slog.Any("result", res))
		return true, 0, nil
	}
	if toInt64(vals[0]) == 1 {
		return true, 0, nil
	}
	retrySec := toFloat64(vals[1])
	if math.IsNaN(retrySec) || retrySec < 0 {
		retrySec = 0
	}
	return false, time.Duration(math.Ceil(retrySec*1000)) * time.Millisecond, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
