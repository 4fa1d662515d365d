package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditRecord struct {
	APIKey     string `json:"api_key"`
	Characters int    `json:"characters"`
}

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue[auditRecord](DefaultConfig("test"))
	defer q.Close()
	ctx := context.Background()

	item := auditRecord{APIKey: "ABC", Characters: 20}
	require.NoError(t, q.Enqueue(ctx, item))

	items, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []auditRecord{item}, items)
}

func TestMemoryQueue_Batches(t *testing.T) {
	config := DefaultConfig("test")
	config.BatchSize = 5
	q := NewMemoryQueue[int](config)
	defer q.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}

	items, err := q.Dequeue(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, items, "FIFO order")

	items, err = q.Dequeue(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, items, 5)
}

func TestMemoryQueue_DequeueWithTimeout(t *testing.T) {
	q := NewMemoryQueue[string](DefaultConfig("test"))
	defer q.Close()
	ctx := context.Background()

	start := time.Now()
	items, err := q.DequeueWithTimeout(ctx, 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "waits for the timeout")

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Enqueue(ctx, "late")
	}()

	items, err = q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, items)
}

func TestMemoryQueue_FullQueueDoesNotBlock(t *testing.T) {
	config := DefaultConfig("test")
	config.Capacity = 2
	q := NewMemoryQueue[int](config)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, 1))
	require.NoError(t, q.Enqueue(ctx, 2))
	assert.ErrorIs(t, q.Enqueue(ctx, 3), ErrQueueFull)

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, length)
}

func TestMemoryQueue_CancelledContext(t *testing.T) {
	q := NewMemoryQueue[int](DefaultConfig("test"))
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, q.Enqueue(ctx, 1), context.Canceled)
	_, err := q.Dequeue(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueue_Concurrent(t *testing.T) {
	config := DefaultConfig("test")
	config.Capacity = 1000
	q := NewMemoryQueue[auditRecord](config)
	defer q.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, q.Enqueue(ctx, auditRecord{APIKey: "k", Characters: p*100 + i}))
			}
		}(p)
	}
	wg.Wait()

	total := 0
	for total < 500 {
		items, err := q.DequeueWithTimeout(ctx, 100, 100*time.Millisecond)
		require.NoError(t, err)
		if len(items) == 0 {
			break
		}
		total += len(items)
	}
	assert.Equal(t, 500, total)
}

func TestMemoryQueue_ClosedQueue(t *testing.T) {
	q := NewMemoryQueue[int](DefaultConfig("test"))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close(), "second close is a no-op")

	ctx := context.Background()
	assert.ErrorIs(t, q.Enqueue(ctx, 1), ErrQueueClosed)
	_, err := q.Dequeue(ctx, 1)
	assert.ErrorIs(t, err, ErrQueueClosed)
	_, err = q.Length(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryDeadLetterQueue(t *testing.T) {
	dlq := NewMemoryDeadLetterQueue[auditRecord]()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, dlq.Add(ctx, auditRecord{APIKey: "k", Characters: i}, errors.New("insert failed")))
	}

	items, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "insert failed", items[0].Error)
	assert.NotEqual(t, items[0].ID, items[1].ID, "ids are unique")

	got, err := dlq.Get(ctx, items[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Item.Characters)

	limited, err := dlq.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, dlq.Remove(ctx, items[1].ID))
	assert.ErrorIs(t, dlq.Remove(ctx, items[1].ID), ErrItemNotFound)
	_, err = dlq.Get(ctx, items[1].ID)
	assert.ErrorIs(t, err, ErrItemNotFound)

	remaining, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)

	require.NoError(t, dlq.Close())
	assert.ErrorIs(t, dlq.Add(ctx, auditRecord{}, errors.New("x")), ErrQueueClosed)
}

func TestNew_MemoryBackend(t *testing.T) {
	q, dlq := New[auditRecord](nil, nil)
	assert.IsType(t, &MemoryQueue[auditRecord]{}, q)
	assert.IsType(t, &MemoryDeadLetterQueue[auditRecord]{}, dlq)
}
