package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter consumes rate budget for a domain. The budget is a fixed window:
// `limit` units per `period`, refilled when the window turns over.
type Limiter interface {
	// Consume takes one unit from the domain's budget. When the budget is
	// exhausted it returns allowed=false and how long until the window
	// turns over.
	Consume(ctx context.Context, sendingDomain string, limit int, period time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

// Lua script for atomic budget consumption. Checks before incrementing so
// concurrent consumers can never overshoot the limit.
const consumeLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")

if current + 1 > limit then
    local remaining = redis.call("PTTL", key)
    if remaining < 0 then
        remaining = ttl * 1000
    end
    return {0, remaining}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end

return {1, 0}
`

// RedisLimiter enforces budgets in Redis so every sender process shares one
// counter per domain.
type RedisLimiter struct {
	client        *redis.Client
	consumeScript *redis.Script
}

// NewRedisLimiter creates a limiter with its Lua script pre-compiled.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client:        client,
		consumeScript: redis.NewScript(consumeLuaScript),
	}
}

func windowKey(sendingDomain string, now time.Time, period time.Duration) string {
	return fmt.Sprintf("dispatch:rate:%s:%d", sendingDomain, now.Truncate(period).Unix())
}

// Consume takes one unit from the domain's current window.
func (l *RedisLimiter) Consume(ctx context.Context, sendingDomain string, limit int, period time.Duration) (bool, time.Duration, error) {
	now := time.Now().UTC()
	key := windowKey(sendingDomain, now, period)
	ttl := int(now.Truncate(period).Add(period).Sub(now).Seconds()) + 1

	res, err := l.consumeScript.Run(ctx, l.client, []string{key}, limit, ttl).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate consume for %s: %w", sendingDomain, err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, fmt.Errorf("unexpected rate script result %v", res)
	}
	allowed, _ := vals[0].(int64)
	if allowed == 1 {
		return true, 0, nil
	}
	retryMs, _ := vals[1].(int64)
	return false, time.Duration(retryMs) * time.Millisecond, nil
}

// LocalLimiter is the in-process fallback when Redis is not configured.
// Correct for a single process only.
type LocalLimiter struct {
	mu      sync.Mutex
	windows map[string]*localWindow
}

type localWindow struct {
	start time.Time
	used  int
}

// NewLocalLimiter creates an in-process fixed-window limiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{windows: make(map[string]*localWindow)}
}

// Consume takes one unit from the domain's current window.
func (l *LocalLimiter) Consume(_ context.Context, sendingDomain string, limit int, period time.Duration) (bool, time.Duration, error) {
	now := time.Now().UTC()
	start := now.Truncate(period)

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[sendingDomain]
	if w == nil || !w.start.Equal(start) {
		w = &localWindow{start: start}
		l.windows[sendingDomain] = w
	}
	if w.used+1 > limit {
		return false, start.Add(period).Sub(now), nil
	}
	w.used++
	return true, 0, nil
}
