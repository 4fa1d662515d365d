package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is a Queue on a buffered channel. Enqueue fails with ErrQueueFull rather
// than blocking the metering path.
type MemoryQueue[T any] struct {
	items  chan T
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates a queue holding config.Capacity items, or ten batches when
// no capacity is set
func NewMemoryQueue[T any](config *Config) *MemoryQueue[T] {
	if config == nil {
		config = DefaultConfig("memory")
	}

	capacity := config.Capacity
	if capacity <= 0 {
		capacity = config.BatchSize * 10
	}
	if capacity <= 0 {
		capacity = 1
	}

	return &MemoryQueue[T]{items: make(chan T, capacity)}
}

func (q *MemoryQueue[T]) Enqueue(ctx context.Context, item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue[T]) Dequeue(ctx context.Context, maxItems int) ([]T, error) {
	return q.take(ctx, maxItems, nil)
}

func (q *MemoryQueue[T]) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return q.take(ctx, maxItems, timer.C)
}

// take waits for a first item, then drains what is already buffered up to maxItems.
// A nil expired channel waits forever.
func (q *MemoryQueue[T]) take(ctx context.Context, maxItems int, expired <-chan time.Time) ([]T, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	var items []T
	select {
	case item := <-q.items:
		items = append(items, item)
	case <-expired:
		return []T{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for len(items) < maxItems {
		select {
		case item := <-q.items:
			items = append(items, item)
		default:
			return items, nil
		}
	}
	return items, nil
}

func (q *MemoryQueue[T]) Length(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return 0, ErrQueueClosed
	}
	return len(q.items), nil
}

// Close discards buffered items. Closing twice is a no-op.
func (q *MemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.items)
	}
	return nil
}

// MemoryDeadLetterQueue keeps parked items in insertion order
type MemoryDeadLetterQueue[T any] struct {
	items  []DeadLetterItem[T]
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

func NewMemoryDeadLetterQueue[T any]() *MemoryDeadLetterQueue[T] {
	return &MemoryDeadLetterQueue[T]{now: time.Now}
}

func (q *MemoryDeadLetterQueue[T]) Add(ctx context.Context, item T, err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, newDeadLetterItem(item, err, q.now()))
	return nil
}

func (q *MemoryDeadLetterQueue[T]) Get(ctx context.Context, id string) (DeadLetterItem[T], error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return DeadLetterItem[T]{}, ErrQueueClosed
	}
	if i := q.indexOf(id); i >= 0 {
		return q.items[i], nil
	}
	return DeadLetterItem[T]{}, ErrItemNotFound
}

func (q *MemoryDeadLetterQueue[T]) List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	n := len(q.items)
	if maxItems > 0 && maxItems < n {
		n = maxItems
	}
	result := make([]DeadLetterItem[T], n)
	copy(result, q.items[:n])
	return result, nil
}

func (q *MemoryDeadLetterQueue[T]) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	i := q.indexOf(id)
	if i < 0 {
		return ErrItemNotFound
	}
	q.items = append(q.items[:i], q.items[i+1:]...)
	return nil
}

func (q *MemoryDeadLetterQueue[T]) indexOf(id string) int {
	for i, item := range q.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (q *MemoryDeadLetterQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
	return nil
}

var (
	_ Queue[int]           = (*MemoryQueue[int])(nil)
	_ DeadLetterQueue[int] = (*MemoryDeadLetterQueue[int])(nil)
)
