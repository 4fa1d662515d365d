package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps JSON-encoded items in the Redis list "queue:{name}". The client is
// shared and is not closed by the queue.
type RedisQueue[T any] struct {
	client *redis.Client
	key    string
}

func NewRedisQueue[T any](client *redis.Client, config *Config) *RedisQueue[T] {
	if config == nil {
		config = DefaultConfig("usage")
	}
	return &RedisQueue[T]{client: client, key: "queue:" + config.QueueName}
}

func (q *RedisQueue[T]) Enqueue(ctx context.Context, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}
	return nil
}

func (q *RedisQueue[T]) Dequeue(ctx context.Context, maxItems int) ([]T, error) {
	return q.pop(ctx, maxItems, 0)
}

func (q *RedisQueue[T]) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error) {
	return q.pop(ctx, maxItems, timeout)
}

// pop blocks for the first item (forever when timeout is 0) and then takes whatever
// else is queued, up to maxItems. Entries that do not decode are dropped; they could
// never be written anyway.
func (q *RedisQueue[T]) pop(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error) {
	first, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	// first[0] is the key, first[1] the value
	raw := []string{first[1]}
	if maxItems > 1 {
		rest, err := q.client.LPopCount(ctx, q.key, maxItems-1).Result()
		if err == nil {
			raw = append(raw, rest...)
		}
	}

	items := make([]T, 0, len(raw))
	for _, data := range raw {
		var item T
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (q *RedisQueue[T]) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(length), nil
}

// Close is a no-op; the client belongs to the caller
func (q *RedisQueue[T]) Close() error {
	return nil
}

// RedisDeadLetterQueue keeps parked items in the Redis hash "dlq:{name}", keyed by id
type RedisDeadLetterQueue[T any] struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

func NewRedisDeadLetterQueue[T any](client *redis.Client, config *Config) *RedisDeadLetterQueue[T] {
	if config == nil {
		config = DefaultConfig("usage")
	}
	return &RedisDeadLetterQueue[T]{client: client, key: "dlq:" + config.QueueName, now: time.Now}
}

func (q *RedisDeadLetterQueue[T]) Add(ctx context.Context, item T, err error) error {
	dlItem := newDeadLetterItem(item, err, q.now())

	data, marshalErr := json.Marshal(dlItem)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", marshalErr)
	}
	if err := q.client.HSet(ctx, q.key, dlItem.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}
	return nil
}

func (q *RedisDeadLetterQueue[T]) Get(ctx context.Context, id string) (DeadLetterItem[T], error) {
	var dlItem DeadLetterItem[T]

	data, err := q.client.HGet(ctx, q.key, id).Result()
	if errors.Is(err, redis.Nil) {
		return dlItem, ErrItemNotFound
	}
	if err != nil {
		return dlItem, fmt.Errorf("failed to read dead letter item: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &dlItem); err != nil {
		return dlItem, fmt.Errorf("failed to decode dead letter item %s: %w", id, err)
	}
	return dlItem, nil
}

func (q *RedisDeadLetterQueue[T]) List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error) {
	results, err := q.client.HGetAll(ctx, q.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}

	items := make([]DeadLetterItem[T], 0, len(results))
	for _, data := range results {
		var dlItem DeadLetterItem[T]
		if err := json.Unmarshal([]byte(data), &dlItem); err != nil {
			continue // Skip malformed items
		}
		items = append(items, dlItem)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp.Before(items[j].Timestamp) })
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, nil
}

func (q *RedisDeadLetterQueue[T]) Remove(ctx context.Context, id string) error {
	removed, err := q.client.HDel(ctx, q.key, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove from dead letter queue: %w", err)
	}
	if removed == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Close is a no-op; the client belongs to the caller
func (q *RedisDeadLetterQueue[T]) Close() error {
	return nil
}

var (
	_ Queue[int]           = (*RedisQueue[int])(nil)
	_ DeadLetterQueue[int] = (*RedisDeadLetterQueue[int])(nil)
)
