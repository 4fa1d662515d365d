package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lang_gateway/internal/models"
	"lang_gateway/internal/queue"
)

// mockUsageWriter simulates database operations for testing
type mockUsageWriter struct {
	mu          sync.Mutex
	records     []*models.UsageRecord
	batchCalls  int
	failBatches bool
	failCount   int
	maxFails    int
}

func (m *mockUsageWriter) Create(ctx context.Context, record *models.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCount < m.maxFails {
		m.failCount++
		return fmt.Errorf("simulated database error")
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockUsageWriter) CreateBatch(ctx context.Context, records []*models.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batchCalls++
	if m.failBatches {
		return fmt.Errorf("simulated batch error")
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *mockUsageWriter) getRecords() []*models.UsageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.UsageRecord, len(m.records))
	copy(out, m.records)
	return out
}

func testQueueConfig() *queue.Config {
	cfg := queue.DefaultConfig("usage-test")
	cfg.BatchSize = 10
	cfg.BatchTimeout = 20 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func newTestRecord(key string, chars int64) *models.UsageRecord {
	return &models.UsageRecord{
		ID:                 uuid.New(),
		APIKey:             key,
		KeyType:            models.KeyTypeTrial,
		Service:            "Azure",
		RequestType:        "audio",
		Language:           "zh_cn",
		RawCharacters:      chars,
		BillableCharacters: chars * 2,
		Accepted:           true,
		CreatedAt:          time.Now().UTC(),
	}
}

func TestUsageQueueWorker_WritesPublishedRecords(t *testing.T) {
	cfg := testQueueConfig()
	q := queue.NewMemoryQueue[*models.UsageRecord](cfg)
	writer := &mockUsageWriter{}
	worker := NewUsageQueueWorker(q, queue.NewMemoryDeadLetterQueue[*models.UsageRecord](), writer, cfg)

	ctx := context.Background()
	worker.Start(ctx)
	defer worker.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, worker.Publish(ctx, newTestRecord("k", int64(i+1))))
	}

	require.Eventually(t, func() bool { return len(writer.getRecords()) == 5 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), writer.getRecords()[0].BillableCharacters)
}

func TestUsageQueueWorker_FallsBackToSingleInserts(t *testing.T) {
	cfg := testQueueConfig()
	q := queue.NewMemoryQueue[*models.UsageRecord](cfg)
	writer := &mockUsageWriter{failBatches: true, maxFails: 1}
	worker := NewUsageQueueWorker(q, queue.NewMemoryDeadLetterQueue[*models.UsageRecord](), writer, cfg)
	worker.sleep = func(time.Duration) {}

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, newTestRecord("a", 1)))
	require.NoError(t, q.Enqueue(ctx, newTestRecord("b", 1)))

	worker.processBatch(ctx)

	records := writer.getRecords()
	require.Len(t, records, 2, "first insert fails once and is retried")
	assert.Equal(t, 1, writer.batchCalls)
}

func TestUsageQueueWorker_DeadLetterAfterRetries(t *testing.T) {
	cfg := testQueueConfig()
	q := queue.NewMemoryQueue[*models.UsageRecord](cfg)
	dlq := queue.NewMemoryDeadLetterQueue[*models.UsageRecord]()
	writer := &mockUsageWriter{failBatches: true, maxFails: 100}
	worker := NewUsageQueueWorker(q, dlq, writer, cfg)

	var backoffs []time.Duration
	worker.sleep = func(d time.Duration) { backoffs = append(backoffs, d) }

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, newTestRecord("doomed", 7)))

	worker.processBatch(ctx)

	assert.Empty(t, writer.getRecords())
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, backoffs, "exponential backoff")

	items, err := worker.GetDeadLetterItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Error, "simulated database error")

	// once the database recovers the item can be replayed
	writer.mu.Lock()
	writer.failBatches = false
	writer.mu.Unlock()

	require.NoError(t, worker.RetryDeadLetterItem(ctx, items[0].ID))
	worker.processBatch(ctx)

	records := writer.getRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "doomed", records[0].APIKey)

	items, err = worker.GetDeadLetterItems(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, worker.RetryDeadLetterItem(ctx, "missing"), queue.ErrItemNotFound)
}

func TestUsageQueueWorker_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := testQueueConfig()
	cfg.QueueName = "usage"
	q, dlq := queue.New[*models.UsageRecord](cfg, client)
	writer := &mockUsageWriter{}
	worker := NewUsageQueueWorker(q, dlq, writer, cfg)

	ctx := context.Background()
	rec := newTestRecord("json", 3)
	require.NoError(t, worker.Publish(ctx, rec))
	assert.True(t, mr.Exists("queue:usage"))

	worker.processBatch(ctx)

	records := writer.getRecords()
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)
	assert.Equal(t, rec.BillableCharacters, records[0].BillableCharacters)
	assert.Equal(t, models.KeyTypeTrial, records[0].KeyType)
}

func TestUsageQueueWorker_StopIsIdempotent(t *testing.T) {
	cfg := testQueueConfig()
	worker := NewUsageQueueWorker(queue.NewMemoryQueue[*models.UsageRecord](cfg), nil, &mockUsageWriter{}, cfg)
	worker.Start(context.Background())

	require.NoError(t, worker.Stop())
	require.NoError(t, worker.Stop())

	_, err := worker.GetDeadLetterItems(context.Background(), 0)
	assert.Error(t, err, "no DLQ configured")
}

func TestUsageQueueWorker_QueueLength(t *testing.T) {
	cfg := testQueueConfig()
	q := queue.NewMemoryQueue[*models.UsageRecord](cfg)
	worker := NewUsageQueueWorker(q, nil, &mockUsageWriter{}, cfg)

	ctx := context.Background()
	require.NoError(t, worker.Publish(ctx, newTestRecord("k", 1)))
	require.NoError(t, worker.Publish(ctx, newTestRecord("k", 1)))

	n, err := worker.GetQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

type captureArchiver struct {
	mu      sync.Mutex
	batches [][]*models.UsageRecord
	err     error
}

func (a *captureArchiver) Archive(ctx context.Context, records []*models.UsageRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = append(a.batches, records)
	return "usage/batch.jsonl", a.err
}

func TestUsageQueueWorker_ArchivesPersistedBatches(t *testing.T) {
	cfg := testQueueConfig()
	q := queue.NewMemoryQueue[*models.UsageRecord](cfg)
	writer := &mockUsageWriter{}
	archiver := &captureArchiver{}
	worker := NewUsageQueueWorker(q, nil, writer, cfg)
	worker.SetArchiver(archiver)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, newTestRecord("a", 1)))
	require.NoError(t, q.Enqueue(ctx, newTestRecord("b", 2)))

	worker.processBatch(ctx)

	require.Len(t, archiver.batches, 1)
	assert.Len(t, archiver.batches[0], 2)
}

func TestUsageQueueWorker_ArchivesOnlyRecordsThatPersisted(t *testing.T) {
	cfg := testQueueConfig()
	cfg.MaxRetries = 0
	q := queue.NewMemoryQueue[*models.UsageRecord](cfg)
	writer := &mockUsageWriter{failBatches: true, maxFails: 1}
	archiver := &captureArchiver{err: fmt.Errorf("bucket gone")}
	worker := NewUsageQueueWorker(q, queue.NewMemoryDeadLetterQueue[*models.UsageRecord](), writer, cfg)
	worker.SetArchiver(archiver)
	worker.sleep = func(time.Duration) {}

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, newTestRecord("lost", 1)))
	require.NoError(t, q.Enqueue(ctx, newTestRecord("kept", 1)))

	worker.processBatch(ctx)

	require.Len(t, archiver.batches, 1, "archive failures do not affect persistence")
	require.Len(t, archiver.batches[0], 1)
	assert.Equal(t, "kept", archiver.batches[0][0].APIKey)
	assert.Len(t, writer.getRecords(), 1)
}
