package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lang_gateway/internal/archive"
	"lang_gateway/internal/models"
	"lang_gateway/internal/queue"
	"lang_gateway/internal/utils"
)

// UsageWriter persists usage audit records
type UsageWriter interface {
	Create(ctx context.Context, record *models.UsageRecord) error
	CreateBatch(ctx context.Context, records []*models.UsageRecord) error
}

// UsageQueueWorker drains the usage queue into Postgres in batches
type UsageQueueWorker struct {
	queue       queue.Queue[*models.UsageRecord]
	dlq         queue.DeadLetterQueue[*models.UsageRecord]
	writer      UsageWriter
	archiver    archive.Archiver
	config      *queue.Config
	logger      *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
	started     atomic.Bool

	// sleep is replaced in tests
	sleep func(time.Duration)
}

// NewUsageQueueWorker creates a new usage queue worker
func NewUsageQueueWorker(q queue.Queue[*models.UsageRecord], dlq queue.DeadLetterQueue[*models.UsageRecord], writer UsageWriter, config *queue.Config) *UsageQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("usage")
	}

	return &UsageQueueWorker{
		queue:       q,
		dlq:         dlq,
		writer:      writer,
		config:      config,
		logger:      utils.NewLogger("usage-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
		sleep:       time.Sleep,
	}
}

// SetArchiver makes the worker keep a copy of every persisted batch. Archive failures
// are logged; the records are already in Postgres.
func (w *UsageQueueWorker) SetArchiver(a archive.Archiver) {
	w.archiver = a
}

// Start starts the worker goroutine
func (w *UsageQueueWorker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.run(ctx)
	})
}

// Stop gracefully stops the worker, waiting for the batch in flight. Stopping a
// worker that was never started is a no-op.
func (w *UsageQueueWorker) Stop() error {
	w.stopOnce.Do(func() { close(w.stopChan) })
	if w.started.Load() {
		<-w.stoppedChan
	}
	return nil
}

// Publish adds a usage record to the queue
func (w *UsageQueueWorker) Publish(ctx context.Context, record *models.UsageRecord) error {
	return w.queue.Enqueue(ctx, record)
}

// run is the main worker loop
func (w *UsageQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Usage worker stopping")
			return
		case <-ctx.Done():
			w.logger.Info("Usage worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

// processBatch processes a batch of usage records
func (w *UsageQueueWorker) processBatch(ctx context.Context) {
	// Dequeue items with timeout
	records, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("Failed to dequeue usage records", "error", err)
		w.sleep(1 * time.Second) // Back off on error
		return
	}

	if len(records) == 0 {
		return
	}

	w.logger.Debug("Processing usage batch", "count", len(records))

	// Try to insert batch
	if err := w.writer.CreateBatch(ctx, records); err != nil {
		w.logger.Error("Failed to insert batch, falling back to individual inserts", "error", err)
		// Fall back to individual inserts with retries
		persisted := records[:0:0]
		for _, record := range records {
			if err := w.processItem(ctx, record); err != nil {
				w.logger.Error("Failed to process usage record", "error", err)
				continue
			}
			persisted = append(persisted, record)
		}
		w.archive(ctx, persisted)
		return
	}

	w.logger.Debug("Inserted batch successfully", "count", len(records))
	w.archive(ctx, records)
}

func (w *UsageQueueWorker) archive(ctx context.Context, records []*models.UsageRecord) {
	if w.archiver == nil || len(records) == 0 {
		return
	}
	if _, err := w.archiver.Archive(ctx, records); err != nil {
		w.logger.Warn("Failed to archive usage batch", "count", len(records), "error", err)
	}
}

// processItem processes a single usage record with retries
func (w *UsageQueueWorker) processItem(ctx context.Context, record *models.UsageRecord) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying usage record", "attempt", attempt, "backoff", backoff)
			w.sleep(backoff)
		}

		if err := w.writer.Create(ctx, record); err != nil {
			lastErr = err
			w.logger.Warn("Failed to insert usage record", "attempt", attempt, "error", err)
			continue
		}

		return nil
	}

	// Max retries exceeded - add to dead letter queue
	if w.dlq != nil {
		if err := w.dlq.Add(ctx, record, lastErr); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Usage record moved to DLQ", "record_id", record.ID, "error", lastErr)
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// GetQueueLength returns the current queue length
func (w *UsageQueueWorker) GetQueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// GetDeadLetterItems returns items from the dead letter queue
func (w *UsageQueueWorker) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem[*models.UsageRecord], error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a failed item and removes it from the dead letter queue
func (w *UsageQueueWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	dlItem, err := w.dlq.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
		return fmt.Errorf("failed to re-enqueue item: %w", err)
	}
	if err := w.dlq.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove from DLQ: %w", err)
	}
	return nil
}
