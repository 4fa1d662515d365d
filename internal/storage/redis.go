package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings of the Redis instance that carries the
// usage ledger, the rate limiter windows and optionally the usage queue.
type RedisConfig struct {
	Address  string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:      "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func (c RedisConfig) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Address,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,

		// Ledger increments are not idempotent; a retried HINCRBY can double count.
		MaxRetries: -1,
	}
}

// RedisClient owns the shared go-redis client
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to Redis and makes sure the ledger scripts can run there
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*RedisClient, error) {
	rc := &RedisClient{client: redis.NewClient(cfg.options())}

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout+time.Second)
	defer cancel()

	if err := rc.Health(ctx); err != nil {
		rc.client.Close()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return rc, nil
}

// NewRedisClientFrom wraps an existing go-redis client
func NewRedisClientFrom(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Health pings Redis and loads the get-and-clear script the reconciler drains buckets
// with, so a server with scripting disabled is caught at startup rather than at the
// first billing run.
func (r *RedisClient) Health(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if err := getAndClearScript.Load(ctx, r.client).Err(); err != nil {
		return fmt.Errorf("redis script load failed: %w", err)
	}
	return nil
}

// PoolStats returns the connection pool counters
func (r *RedisClient) PoolStats() *redis.PoolStats {
	return r.client.PoolStats()
}

// Client returns the underlying client for the ledger, the rate limiter and the queue
func (r *RedisClient) Client() *redis.Client {
	return r.client
}
