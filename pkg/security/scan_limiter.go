package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrLimiterUnavailable is returned (alongside allowed=true) when Redis is not connected
var ErrLimiterUnavailable = errors.New("scan rate limiter unavailable - Redis not connected")

// Lua script for sliding window rate limiting
// KEYS[1] = rate limit key
// ARGV[1] = max count allowed
// ARGV[2] = window size in seconds
// ARGV[3] = current timestamp (milliseconds)
// Returns: 1 if allowed, 0 if rate limited
const scanRateLimitScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2]) * 1000
local now = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    return 0
end

redis.call('ZADD', key, now, now .. '-' .. math.random(1000000))
redis.call('PEXPIRE', key, window)
return 1
`

// ScanLimiter enforces a per-uploader sliding window on scan requests.
// Every scan can burn cloud-scanner quota, so the window is per minute.
type ScanLimiter struct {
	client    *goredis.Client
	maxPerMin int
	window    time.Duration
}

// NewScanLimiter creates a limiter. A nil client disables limiting (fail open).
func NewScanLimiter(client *goredis.Client, perMin int) *ScanLimiter {
	if perMin <= 0 {
		perMin = 20
	}
	return &ScanLimiter{
		client:    client,
		maxPerMin: perMin,
		window:    time.Minute,
	}
}

// Allow checks if another scan is allowed for the uploader.
// Returns (allowed, retryAfterSeconds, error).
func (l *ScanLimiter) Allow(ctx context.Context, uploaderID string) (bool, int, error) {
	if l == nil || l.client == nil {
		// FAIL OPEN: scanning must not stop because the limiter is down
		return true, 0, ErrLimiterUnavailable
	}

	key := fmt.Sprintf("ratelimit:scan:user:%s", uploaderID)
	now := time.Now().UnixMilli()
	windowSecs := int(l.window / time.Second)

	result, err := l.client.Eval(ctx, scanRateLimitScript, []string{key}, l.maxPerMin, windowSecs, now).Result()
	if err != nil {
		return true, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowed, ok := result.(int64)
	if !ok {
		return true, 0, fmt.Errorf("unexpected result type from rate limit script")
	}
	if allowed != 1 {
		return false, windowSecs, nil
	}
	return true, 0, nil
}
