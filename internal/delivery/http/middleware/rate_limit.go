package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go-filescan-backend/internal/delivery/http/response"
	"go-filescan-backend/pkg/logger"
	"go-filescan-backend/pkg/redis"
	"go-filescan-backend/pkg/security"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

// RateLimitConfig describes a fixed-window limit per client key
type RateLimitConfig struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
	// KeyFunc extracts the client key (default: client IP)
	KeyFunc func(*gin.Context) string
	// Client returns the Redis client; nil or a nil result counts in memory
	Client func() *goredis.Client
}

// DefaultRateLimitConfig returns the per-IP limit applied to the scan routes
func DefaultRateLimitConfig(limitPerMinute int) RateLimitConfig {
	if limitPerMinute <= 0 {
		limitPerMinute = 100
	}
	return RateLimitConfig{
		Limit:     limitPerMinute,
		Window:    time.Minute,
		KeyPrefix: "rl:scan:ip:",
		KeyFunc:   func(c *gin.Context) string { return c.ClientIP() },
		Client:    redis.Client,
	}
}

// fixedWindowScript increments the window counter and returns it with the
// remaining window in milliseconds.
var fixedWindowScript = goredis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

func countRedis(ctx context.Context, client *goredis.Client, key string, window time.Duration) (int, time.Time, error) {
	res, err := fixedWindowScript.Run(ctx, client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl <= 0 {
		ttl = window
	}
	return int(res[0]), time.Now().Add(ttl), nil
}

type window struct {
	count   int
	resetAt time.Time
}

// memoryWindows counts requests when Redis is not available. Expired
// windows are swept once the map grows past sweepAt.
type memoryWindows struct {
	mu      sync.Mutex
	windows map[string]*window
	sweepAt int
	now     func() time.Time
}

func newMemoryWindows() *memoryWindows {
	return &memoryWindows{windows: make(map[string]*window), sweepAt: 1024, now: time.Now}
}

func (m *memoryWindows) count(key string, length time.Duration) (int, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if len(m.windows) >= m.sweepAt {
		for k, w := range m.windows {
			if !now.Before(w.resetAt) {
				delete(m.windows, k)
			}
		}
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(length)}
		m.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt
}

// RateLimitMiddleware enforces config per client key. Counting fails open:
// a Redis error falls back to the in-process counter.
func RateLimitMiddleware(config RateLimitConfig, secLog *security.SecurityLogger) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	local := newMemoryWindows()

	return func(c *gin.Context) {
		key := config.KeyPrefix + config.KeyFunc(c)

		var client *goredis.Client
		if config.Client != nil {
			client = config.Client()
		}

		var (
			count   int
			resetAt time.Time
			err     error
		)
		if client != nil {
			count, resetAt, err = countRedis(c.Request.Context(), client, key, config.Window)
			if err != nil {
				logger.Log.Warn("Rate limit counting fell back to memory", "error", err)
			}
		}
		if client == nil || err != nil {
			count, resetAt = local.count(key, config.Window)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		c.Header("X-RateLimit-Reset", resetAt.Format(time.RFC3339))

		if count > config.Limit {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			if secLog != nil {
				secLog.LogRateLimitTriggered(c.Request.Context(), "", c.ClientIP(), c.GetString("RequestID"), c.FullPath())
			}
			response.Error(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", nil)
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(config.Limit-count))
		c.Next()
	}
}
