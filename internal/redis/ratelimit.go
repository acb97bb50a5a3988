package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the oldest request in the window expires.
	ResetAt time.Time
}

// slidingWindow trims the window, then admits the request if it fits.
// Returns {allowed, count, oldest_ms}. Scores are unix milliseconds.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then first = tonumber(oldest[2]) end

if count >= limit then
  return {0, count, first}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window + 1000)
return {1, count + 1, first}
`)

// RateLimiter is a sliding-window limiter on a Redis sorted set. The check
// and the insert run in one script, so concurrent requests cannot both take
// the last slot.
type RateLimiter struct {
	client *Client
	logger *zap.Logger
	config RateLimitConfig
	now    func() time.Time
}

func NewRateLimiter(client *Client, logger *zap.Logger, config RateLimitConfig) *RateLimiter {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &RateLimiter{
		client: client,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// Limit is the configured request budget per window.
func (r *RateLimiter) Limit() int {
	return r.config.Limit
}

// Allow records one request for key if it fits in the window.
func (r *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	now := r.now().UnixMilli()
	window := r.config.Window.Milliseconds()

	res, err := slidingWindow.Run(ctx, r.client.rdb,
		[]string{r.client.key("ratelimit", key)},
		now, window, r.config.Limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	result := &RateLimitResult{
		Allowed: res[0] == 1,
		ResetAt: time.UnixMilli(res[2] + window),
	}
	if result.Allowed {
		result.Remaining = r.config.Limit - int(res[1])
	} else {
		r.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("current", res[1]),
			zap.Int("limit", r.config.Limit),
		)
	}
	return result, nil
}
