package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultWindow is the sliding window requests are counted over
const DefaultWindow = time.Minute

// RateLimiter implements a distributed per-key sliding window using Redis sorted sets.
// It guards the request rate of a key; character quotas are enforced by the tracker.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit requests per key in every window. A limit of 0 disables
// limiting.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RateLimiter{client: client, limit: limit, window: window, now: time.Now}
}

// Limit returns the number of requests allowed per window
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

func (rl *RateLimiter) key(apiKey string) string {
	return "ratelimit:" + apiKey
}

// AllowWithDetails records a request for the key and reports whether it fits the window,
// how many requests remain and when the window frees up. Rejected requests are recorded
// too, so a client that keeps hammering stays blocked.
func (rl *RateLimiter) AllowWithDetails(ctx context.Context, apiKey string) (bool, int, time.Time, error) {
	now := rl.now()
	resetAt := now.Add(rl.window)
	if rl.limit <= 0 {
		return true, 0, resetAt, nil
	}

	key := rl.key(apiKey)
	windowStart := now.Add(-rl.window)

	pipe := rl.client.TxPipeline()

	// Remove old entries outside the window
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixMilli(), 10))

	// Count requests already in the window
	countCmd := pipe.ZCard(ctx, key)

	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})

	// Set expiry on the key (cleanup idle keys)
	pipe.Expire(ctx, key, 2*rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, resetAt, fmt.Errorf("rate limit check failed: %w", err)
	}

	current := int(countCmd.Val())
	remaining := rl.limit - current - 1
	if remaining < 0 {
		remaining = 0
	}
	return current < rl.limit, remaining, resetAt, nil
}

// Allow reports whether one more request fits the window
func (rl *RateLimiter) Allow(ctx context.Context, apiKey string) (bool, error) {
	allowed, _, _, err := rl.AllowWithDetails(ctx, apiKey)
	return allowed, err
}

// GetCurrentUsage returns the request count in the current window
func (rl *RateLimiter) GetCurrentUsage(ctx context.Context, apiKey string) (int64, error) {
	key := rl.key(apiKey)
	windowStart := rl.now().Add(-rl.window)

	// Remove old entries
	if err := rl.client.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixMilli(), 10)).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := rl.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}
	return count, nil
}

// Reset clears the window of a key
func (rl *RateLimiter) Reset(ctx context.Context, apiKey string) error {
	return rl.client.Del(ctx, rl.key(apiKey)).Err()
}
