package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const ratelimitKeyPrefix = "orderpulse:ratelimit:"

// RateLimitConfig tunes the sliding window.
type RateLimitConfig struct {
	Limit  int           // requests allowed per window
	Window time.Duration // window length
}

// RateLimitResult is the outcome of one rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter enforces a per-key sliding window limit backed by a Redis
// sorted set. One member per request, scored by arrival time; members older
// than the window are trimmed on every check.
type RateLimiter struct {
	client *Client
	logger *zap.Logger
	config RateLimitConfig
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(client *Client, logger *zap.Logger, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		config: config,
	}
}

// Allow checks whether one request fits under the key's limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	return r.AllowN(ctx, key, 1)
}

// AllowN checks whether n requests fit under the key's limit. Either all n
// are admitted or none are.
func (r *RateLimiter) AllowN(ctx context.Context, key string, n int) (*RateLimitResult, error) {
	now := time.Now()
	redisKey := ratelimitKeyPrefix + key

	trim := strconv.FormatInt(now.Add(-r.config.Window).UnixNano(), 10)

	pipe := r.client.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", trim)
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rate limit window trim: %w", err)
	}

	current := int(countCmd.Val())
	result := &RateLimitResult{
		Remaining: max(0, r.config.Limit-current),
		ResetAt:   now.Add(r.config.Window),
	}

	if current+n > r.config.Limit {
		r.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int("current", current),
			zap.Int("limit", r.config.Limit),
		)
		return result, nil
	}

	admit := r.client.rdb.Pipeline()
	for i := 0; i < n; i++ {
		admit.ZAdd(ctx, redisKey, redis.Z{
			Score:  float64(now.UnixNano()) + float64(i),
			Member: fmt.Sprintf("%d-%d", now.UnixNano(), i),
		})
	}
	admit.Expire(ctx, redisKey, r.config.Window+time.Second)
	if _, err := admit.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rate limit admit: %w", err)
	}

	result.Allowed = true
	result.Remaining = max(0, r.config.Limit-current-n)
	return result, nil
}
