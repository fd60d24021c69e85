// Package ratelimit bounds how often a key (typically a student id) may hit an endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether another request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// RedisLimiter is a fixed-window counter shared by every API instance.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	script *redis.Script
}

// NewRedisLimiter returns nil when client is nil so callers can fall back.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, prefix string) *RedisLimiter {
	if client == nil {
		return nil
	}
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: prefix,
		script: redis.NewScript(fixedWindowScript),
	}
}

// Allow fails open when Redis is unreachable.
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil || l.limit <= 0 || l.window <= 0 || key == "" {
		return true
	}
	redisKey := key
	if l.prefix != "" {
		redisKey = l.prefix + ":" + key
	}
	ttl := l.window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	allowed, err := l.script.Run(ctx, l.client, []string{redisKey}, ttl, l.limit).Int64()
	if err != nil {
		return true
	}
	return allowed == 1
}

type cachedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key inside the process.
type MemoryLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu       sync.Mutex
	limiters map[string]*cachedLimiter
}

// NewMemoryLimiter allows limit requests per window per key.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 || window <= 0 {
		return &MemoryLimiter{limit: rate.Inf, limiters: map[string]*cachedLimiter{}}
	}
	return &MemoryLimiter{
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
		idle:     window * 5,
		limiters: map[string]*cachedLimiter{},
	}
}

// Allow consumes one token for key.
func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	if l == nil || l.limit == rate.Inf || key == "" {
		return true
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.limiters[key]
	if !ok || now.Sub(entry.lastSeen) > l.idle {
		entry = &cachedLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	if len(l.limiters) > 4096 {
		l.evict(now)
	}
	return entry.limiter.AllowN(now, 1)
}

func (l *MemoryLimiter) evict(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.idle {
			delete(l.limiters, key)
		}
	}
}

// New prefers the shared Redis limiter and falls back to an in-process one.
func New(client *redis.Client, limit int, window time.Duration, prefix string) Limiter {
	if redisLimiter := NewRedisLimiter(client, limit, window, prefix); redisLimiter != nil {
		return redisLimiter
	}
	return NewMemoryLimiter(limit, window)
}
