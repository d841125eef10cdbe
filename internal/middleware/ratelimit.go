package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request for key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitBy returns middleware that consults l with the client IP. A
// limiter error lets the request through: losing the rate-limit store must
// not take uploads down with it.
func RateLimitBy(l Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, err := l.Allow(c.Request().Context(), c.RealIP())
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request",
					slog.String("remote_ip", c.RealIP()),
					slog.Any("error", err),
				)
				return next(c)
			}
			if !ok {
				return echo.NewHTTPError(http.StatusTooManyRequests,
					"Rate limit exceeded. Please try again later.")
			}
			return next(c)
		}
	}
}

// RateLimit returns middleware that limits requests per IP to maxRequests
// within the given fixed window, counted in process memory. Use
// RateLimitBy with a RedisLimiter to share the budget between processes.
func RateLimit(maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return RateLimitBy(NewMemoryLimiter(maxRequests, window))
}

// --- In-memory limiter ---

// rateLimitEntry tracks request counts for a single IP within a time window.
type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// MemoryLimiter counts requests per key in a map guarded by a mutex.
type MemoryLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

// NewMemoryLimiter creates a limiter and starts a background sweep of
// expired entries every minute.
func NewMemoryLimiter(maxRequests int, window time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		entries:     make(map[string]*rateLimitEntry),
	}

	go func() {
		for {
			time.Sleep(time.Minute)
			l.sweep()
		}
	}()
	return l
}

// Allow implements Limiter. It never returns an error.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.entries[key]
	if !exists || now.Sub(entry.windowStart) > l.window {
		l.entries[key] = &rateLimitEntry{count: 1, windowStart: now}
		return true, nil
	}

	entry.count++
	return entry.count <= l.maxRequests, nil
}

// sweep drops entries whose window ended long ago.
func (l *MemoryLimiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.entries {
		if now.Sub(entry.windowStart) > l.window*2 {
			delete(l.entries, key)
		}
	}
}

// --- Redis limiter ---

// RedisLimiter counts requests per key with INCR and a TTL equal to the
// window, so counters are shared by every process using the same Redis.
type RedisLimiter struct {
	client      *redis.Client
	prefix      string
	maxRequests int
	window      time.Duration
}

// NewRedisLimiter creates a Redis-backed limiter. Keys are "<prefix>:<ip>".
func NewRedisLimiter(client *redis.Client, prefix string, maxRequests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:      client,
		prefix:      prefix,
		maxRequests: maxRequests,
		window:      window,
	}
}

// Allow implements Limiter. INCR and TTL run in one transaction; a counter
// without an expiry gets one, so a failed EXPIRE is retried by the next
// request instead of pinning the key forever.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		ttl = pipe.TTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("incrementing %s: %w", redisKey, err)
	}

	if ttl.Val() < 0 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("setting ttl on %s: %w", redisKey, err)
		}
	}
	return incr.Val() <= int64(l.maxRequests), nil
}
