package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It is used by tests and by single-node
// deployments without Redis; TTLs are not enforced.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]Value
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]Value),
	}
}

func (s *MemoryStore) Increment(ctx context.Context, key string, characters, requests uint64, ttl time.Duration) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.buckets[key]
	if characters > MaxCounter-v.Characters || requests > MaxCounter-v.Requests {
		return v, ErrCounterOverflow
	}
	v.Characters += characters
	v.Requests += requests
	s.buckets[key] = v
	return v, nil
}

func (s *MemoryStore) Read(ctx context.Context, key string) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buckets[key], nil
}

func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buckets, key)
	return nil
}

func (s *MemoryStore) GetAndClear(ctx context.Context, key string) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.buckets[key]
	delete(s.buckets, key)
	return v, nil
}

// Keys returns the names of all non-empty buckets, sorted (for testing).
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.buckets))
	for k := range s.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Store = (*MemoryStore)(nil)
