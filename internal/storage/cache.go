package storage

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"lang_gateway/internal/models"
)

// KeyCache is a bounded TTL cache of API key records in front of Postgres.
// Writes are applied asynchronously by ristretto; Wait blocks until they are visible.
//
// Every invalidation bumps a generation counter. A record loaded from the database is
// only stored if no invalidation happened since the load started, so a revoke or an
// update racing a cache miss cannot be overwritten by the row read before it.
type KeyCache struct {
	cache    *ristretto.Cache
	capacity int
	ttl      time.Duration

	mu         sync.Mutex
	generation uint64
}

// NewKeyCache creates a cache holding up to capacity records for ttl each
func NewKeyCache(capacity int, ttl time.Duration) (*KeyCache, error) {
	if capacity <= 0 {
		capacity = 1
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity),
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &KeyCache{cache: cache, capacity: capacity, ttl: ttl}, nil
}

// Get returns a copy of the cached record
func (c *KeyCache) Get(key string) (*models.APIKey, bool) {
	v, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	return v.(*models.APIKey).Clone(), true
}

// Generation returns the invalidation counter; read it before loading a record
func (c *KeyCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetIfCurrent stores a copy of a record loaded at generation gen. It reports false,
// and stores nothing, when an invalidation happened since.
func (c *KeyCache) SetIfCurrent(rec *models.APIKey, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.cache.SetWithTTL(rec.Key, rec.Clone(), 1, c.ttl)
	return true
}

// Invalidate drops a key and fails every load still in flight
func (c *KeyCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache.Del(key)
}

// Wait blocks until buffered writes are applied
func (c *KeyCache) Wait() {
	c.cache.Wait()
}

// Clear removes all items from the cache
func (c *KeyCache) Clear() {
	c.cache.Clear()
}

// Close stops the cache's background goroutines
func (c *KeyCache) Close() {
	c.cache.Close()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Capacity int
	TTL      time.Duration
	Hits     uint64
	Misses   uint64
	Evicted  uint64
}

// GetStats returns current cache statistics
func (c *KeyCache) GetStats() CacheStats {
	m := c.cache.Metrics
	return CacheStats{
		Capacity: c.capacity,
		TTL:      c.ttl,
		Hits:     m.Hits(),
		Misses:   m.Misses(),
		Evicted:  m.KeysEvicted(),
	}
}
