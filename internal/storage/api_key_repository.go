package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/lib/pq"
	"golang.org/x/sync/singleflight"

	"lang_gateway/internal/auth"
	"lang_gateway/internal/models"
	"lang_gateway/internal/utils"
)

const apiKeyColumns = `api_key, key_type, owner_email, owner_ref, expires_at, character_limit,
	patreon_user_id, customer_code, plan_code, subscription_status,
	thousand_char_quota, thousand_char_used, thousand_char_overage_allowed,
	created_at, updated_at`

// pgUniqueViolation is the SQLSTATE of a unique constraint violation
const pgUniqueViolation = "23505"

// KeyInvalidationPublisher tells other processes that a key's row changed
type KeyInvalidationPublisher interface {
	Publish(ctx context.Context, key string) error
}

// APIKeyRepository handles API key database operations with caching.
// It implements auth.KeyStore.
type APIKeyRepository struct {
	db        *DB
	cache     *KeyCache
	group     singleflight.Group
	publisher KeyInvalidationPublisher
	logger    *utils.Logger
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{
		db:     db,
		cache:  db.apiKeyCache,
		logger: utils.NewLogger("api-keys"),
	}
}

// SetInvalidationPublisher makes every write announce the changed key
func (r *APIKeyRepository) SetInvalidationPublisher(p KeyInvalidationPublisher) {
	r.publisher = p
}

// Evict drops a key from the local cache. It is the handler for invalidations
// published by other processes.
func (r *APIKeyRepository) Evict(key string) {
	r.cache.Invalidate(key)
}

// Get retrieves an API key record (with caching). Concurrent misses for the same key
// share one query, unless an invalidation separates them.
func (r *APIKeyRepository) Get(ctx context.Context, key string) (*models.APIKey, error) {
	// Check cache first
	if cached, found := r.cache.Get(key); found {
		return cached, nil
	}

	gen := r.cache.Generation()
	v, err, _ := r.group.Do(key+"@"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		var rec models.APIKey
		query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE api_key = $1`

		if err := r.db.conn.GetContext(ctx, &rec, query, key); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrAPIKeyNotFound
			}
			return nil, fmt.Errorf("%w: failed to get API key: %w", ErrStoreUnavailable, err)
		}

		r.cache.SetIfCurrent(&rec, gen)
		return &rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.APIKey).Clone(), nil
}

// FindByOwner retrieves the key an owner holds for a key type
func (r *APIKeyRepository) FindByOwner(ctx context.Context, keyType models.KeyType, ownerRef string) (*models.APIKey, error) {
	var rec models.APIKey
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_type = $1 AND owner_ref = $2`

	if err := r.db.conn.GetContext(ctx, &rec, query, keyType, ownerRef); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("%w: failed to find API key: %w", ErrStoreUnavailable, err)
	}
	return &rec, nil
}

// Create creates a new API key
func (r *APIKeyRepository) Create(ctx context.Context, rec *models.APIKey) error {
	query := `
		INSERT INTO api_keys (api_key, key_type, owner_email, owner_ref, expires_at, character_limit,
		                      patreon_user_id, customer_code, plan_code, subscription_status,
		                      thousand_char_quota, thousand_char_used, thousand_char_overage_allowed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		rec.Key, rec.KeyType, rec.OwnerEmail, rec.OwnerRef, rec.ExpiresAt, rec.CharacterLimit,
		rec.PatreonUserID, rec.CustomerCode, rec.PlanCode, rec.SubscriptionStatus,
		rec.ThousandCharQuota, rec.ThousandCharUsed, rec.ThousandCharOverageAllowed,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return ErrAPIKeyExists
		}
		return fmt.Errorf("%w: failed to create API key: %w", ErrStoreUnavailable, err)
	}

	r.invalidate(ctx, rec.Key)
	return nil
}

// Update updates an existing API key
func (r *APIKeyRepository) Update(ctx context.Context, rec *models.APIKey) error {
	query := `
		UPDATE api_keys
		SET key_type = $2, owner_email = $3, owner_ref = $4, expires_at = $5, character_limit = $6,
		    patreon_user_id = $7, customer_code = $8, plan_code = $9, subscription_status = $10,
		    thousand_char_quota = $11, thousand_char_used = $12, thousand_char_overage_allowed = $13,
		    updated_at = NOW()
		WHERE api_key = $1
		RETURNING updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		rec.Key, rec.KeyType, rec.OwnerEmail, rec.OwnerRef, rec.ExpiresAt, rec.CharacterLimit,
		rec.PatreonUserID, rec.CustomerCode, rec.PlanCode, rec.SubscriptionStatus,
		rec.ThousandCharQuota, rec.ThousandCharUsed, rec.ThousandCharOverageAllowed,
	).Scan(&rec.UpdatedAt)

	// Invalidate even on failure; the row may have changed
	r.invalidate(ctx, rec.Key)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAPIKeyNotFound
		}
		return fmt.Errorf("%w: failed to update API key: %w", ErrStoreUnavailable, err)
	}

	return nil
}

// Delete deletes an API key
func (r *APIKeyRepository) Delete(ctx context.Context, key string) error {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM api_keys WHERE api_key = $1", key)
	r.invalidate(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: failed to delete API key: %w", ErrStoreUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

// ListByType returns every key of a type, ordered by key
func (r *APIKeyRepository) ListByType(ctx context.Context, keyType models.KeyType) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_type = $1 ORDER BY api_key`

	var keys []*models.APIKey
	if err := r.db.conn.SelectContext(ctx, &keys, query, keyType); err != nil {
		return nil, fmt.Errorf("%w: failed to list API keys: %w", ErrStoreUnavailable, err)
	}

	return keys, nil
}

func (r *APIKeyRepository) invalidate(ctx context.Context, key string) {
	r.cache.Invalidate(key)
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, key); err != nil {
		r.logger.Warn("Failed to publish key invalidation", "error", err)
	}
}

var _ auth.KeyStore = (*APIKeyRepository)(nil)
