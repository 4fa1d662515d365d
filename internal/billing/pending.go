package billing

import (
	"context"
	"sync"

	"lang_gateway/internal/models"
)

// PendingStore keeps the report in flight for each key between draining the ledger and
// the provider acknowledging it. Load returns nil when nothing is pending.
type PendingStore interface {
	Load(ctx context.Context, apiKey string) (*models.PendingReport, error)
	Save(ctx context.Context, apiKey string, report *models.PendingReport) error
	Delete(ctx context.Context, apiKey string) error
}

// MemoryPendingStore is a process-local PendingStore
type MemoryPendingStore struct {
	mu      sync.Mutex
	reports map[string]models.PendingReport
}

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{reports: make(map[string]models.PendingReport)}
}

func (s *MemoryPendingStore) Load(ctx context.Context, apiKey string) (*models.PendingReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.reports[apiKey]
	if !ok {
		return nil, nil
	}
	return &report, nil
}

func (s *MemoryPendingStore) Save(ctx context.Context, apiKey string, report *models.PendingReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[apiKey] = *report
	return nil
}

func (s *MemoryPendingStore) Delete(ctx context.Context, apiKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, apiKey)
	return nil
}
