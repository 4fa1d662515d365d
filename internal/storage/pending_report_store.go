package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lang_gateway/internal/models"
)

// DefaultPendingReportPrefix namespaces the reports awaiting provider acknowledgement
const DefaultPendingReportPrefix = "usage:pending-report"

// PendingReportStore keeps one in-flight billing report per key in Redis. Entries have
// no TTL; they are removed once the provider acknowledges the report.
// It implements billing.PendingStore.
type PendingReportStore struct {
	client *redis.Client
	prefix string
}

// NewPendingReportStore creates a store under prefix, or DefaultPendingReportPrefix
func NewPendingReportStore(client *redis.Client, prefix string) *PendingReportStore {
	if prefix == "" {
		prefix = DefaultPendingReportPrefix
	}
	return &PendingReportStore{client: client, prefix: prefix}
}

func (s *PendingReportStore) key(apiKey string) string {
	return s.prefix + ":" + apiKey
}

// Load returns the pending report of apiKey, or nil
func (s *PendingReportStore) Load(ctx context.Context, apiKey string) (*models.PendingReport, error) {
	raw, err := s.client.Get(ctx, s.key(apiKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load pending report: %w", ErrStoreUnavailable, err)
	}

	var report models.PendingReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("corrupt pending report for %s: %w", apiKey, err)
	}
	return &report, nil
}

// Save stores report as the pending report of apiKey
func (s *PendingReportStore) Save(ctx context.Context, apiKey string, report *models.PendingReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal pending report: %w", err)
	}
	if err := s.client.Set(ctx, s.key(apiKey), raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: failed to save pending report: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes the pending report of apiKey
func (s *PendingReportStore) Delete(ctx context.Context, apiKey string) error {
	if err := s.client.Del(ctx, s.key(apiKey)).Err(); err != nil {
		return fmt.Errorf("%w: failed to delete pending report: %w", ErrStoreUnavailable, err)
	}
	return nil
}
