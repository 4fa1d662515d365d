// Package queue carries usage audit records from the metering path to the
// Postgres writer. Two backends are provided:
//
//  1. MemoryQueue: a bounded channel. Nothing survives a restart; used for
//     single-node deployments and tests.
//  2. RedisQueue: a Redis list on the same client as the usage ledger.
//     Survives restarts and can be drained by several gateway instances.
//
// Records that still fail after the worker's retries land in a dead-letter
// queue of the same backend, where an operator can inspect and re-enqueue them.
//
//	track usage ──▶ usage queue ──▶ usage worker (batches) ──▶ usage_records
//	                                      │
//	                                      └─(retries exhausted)─▶ DLQ
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue is a FIFO of items of type T
type Queue[T any] interface {
	// Enqueue adds an item to the queue. It never waits for space.
	Enqueue(ctx context.Context, item T) error

	// Dequeue blocks until at least one item is available and returns up to maxItems
	Dequeue(ctx context.Context, maxItems int) ([]T, error)

	// DequeueWithTimeout is Dequeue that gives up after timeout with an empty slice
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error)

	Length(ctx context.Context) (int, error)
	Close() error
}

// DeadLetterQueue parks items that could not be processed, with the reason
type DeadLetterQueue[T any] interface {
	Add(ctx context.Context, item T, err error) error

	// Get returns one parked item or ErrItemNotFound
	Get(ctx context.Context, id string) (DeadLetterItem[T], error)

	// List returns parked items oldest first; maxItems <= 0 returns all of them
	List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error)

	Remove(ctx context.Context, id string) error
	Close() error
}

// DeadLetterItem is a parked item and why it was parked
type DeadLetterItem[T any] struct {
	ID        string    `json:"id"`
	Item      T         `json:"item"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds queue configuration
type Config struct {
	// BatchSize is the maximum number of items to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration

	// Capacity bounds the in-memory queue; 0 means ten batches
	Capacity int

	// QueueName names the Redis keys of the queue
	QueueName string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		QueueName:    queueName,
	}
}

// New returns the Redis-backed queue pair when client is non-nil and the
// in-memory pair otherwise.
func New[T any](config *Config, client *redis.Client) (Queue[T], DeadLetterQueue[T]) {
	if config == nil {
		config = DefaultConfig("usage")
	}
	if client != nil {
		return NewRedisQueue[T](client, config), NewRedisDeadLetterQueue[T](client, config)
	}
	return NewMemoryQueue[T](config), NewMemoryDeadLetterQueue[T]()
}

func newDeadLetterItem[T any](item T, err error, now time.Time) DeadLetterItem[T] {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return DeadLetterItem[T]{
		ID:        uuid.NewString(),
		Item:      item,
		Error:     msg,
		Timestamp: now,
	}
}
