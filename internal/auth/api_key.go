package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"lang_gateway/internal/models"
)

// KeyStore persists API key records.
//
// Implementations return ErrKeyNotFound for absent keys and ErrKeyExists when Create
// collides on (key type, owner ref). Returned records are owned by the caller.
type KeyStore interface {
	Get(ctx context.Context, key string) (*models.APIKey, error)
	FindByOwner(ctx context.Context, keyType models.KeyType, ownerRef string) (*models.APIKey, error)
	Create(ctx context.Context, key *models.APIKey) error
	Update(ctx context.Context, key *models.APIKey) error
	Delete(ctx context.Context, key string) error
	ListByType(ctx context.Context, keyType models.KeyType) ([]*models.APIKey, error)
}

type ownerIndex struct {
	keyType  models.KeyType
	ownerRef string
}

// InMemoryKeyStore keeps records in process memory. Used for tests and local runs.
type InMemoryKeyStore struct {
	mu     sync.RWMutex
	keys   map[string]*models.APIKey
	owners map[ownerIndex]string
}

func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		keys:   make(map[string]*models.APIKey),
		owners: make(map[ownerIndex]string),
	}
}

func (s *InMemoryKeyStore) Get(ctx context.Context, key string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.keys[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemoryKeyStore) FindByOwner(ctx context.Context, keyType models.KeyType, ownerRef string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.owners[ownerIndex{keyType, ownerRef}]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return s.keys[key].Clone(), nil
}

func (s *InMemoryKeyStore) Create(ctx context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := ownerIndex{key.KeyType, key.OwnerRef}
	if _, taken := s.owners[idx]; taken {
		return ErrKeyExists
	}
	if _, taken := s.keys[key.Key]; taken {
		return ErrKeyExists
	}

	now := time.Now()
	key.CreatedAt = now
	key.UpdatedAt = now
	s.keys[key.Key] = key.Clone()
	s.owners[idx] = key.Key
	return nil
}

func (s *InMemoryKeyStore) Update(ctx context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.keys[key.Key]
	if !ok {
		return ErrKeyNotFound
	}

	key.CreatedAt = existing.CreatedAt
	key.UpdatedAt = time.Now()
	delete(s.owners, ownerIndex{existing.KeyType, existing.OwnerRef})
	s.owners[ownerIndex{key.KeyType, key.OwnerRef}] = key.Key
	s.keys[key.Key] = key.Clone()
	return nil
}

func (s *InMemoryKeyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.keys[key]
	if !ok {
		return ErrKeyNotFound
	}
	delete(s.owners, ownerIndex{existing.KeyType, existing.OwnerRef})
	delete(s.keys, key)
	return nil
}

func (s *InMemoryKeyStore) ListByType(ctx context.Context, keyType models.KeyType) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.APIKey
	for _, rec := range s.keys {
		if rec.KeyType == keyType {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

var _ KeyStore = (*InMemoryKeyStore)(nil)

// generateAPIKey returns a new opaque bearer token
func generateAPIKey() (string, error) {
	bytes := make([]byte, 16) // 16 bytes = 32 hex chars
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
