package auth

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lang_gateway/internal/models"
)

func TestInMemoryKeyStore_CreateAndGet(t *testing.T) {
	store := NewInMemoryKeyStore()
	ctx := context.Background()

	rec := &models.APIKey{
		Key:            "k1",
		KeyType:        models.KeyTypeTrial,
		OwnerEmail:     "a@example.com",
		OwnerRef:       "a@example.com",
		CharacterLimit: models.Int64Ptr(10_000),
	}
	require.NoError(t, store.Create(ctx, rec))

	got, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, models.KeyTypeTrial, got.KeyType)
	assert.Equal(t, int64(10_000), *got.CharacterLimit)
	assert.False(t, got.CreatedAt.IsZero())

	// mutating the returned copy does not touch the store
	*got.CharacterLimit = 1
	again, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), *again.CharacterLimit)
}

func TestInMemoryKeyStore_OwnerUniqueness(t *testing.T) {
	store := NewInMemoryKeyStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &models.APIKey{Key: "k1", KeyType: models.KeyTypeTrial, OwnerRef: "a@example.com"}))
	err := store.Create(ctx, &models.APIKey{Key: "k2", KeyType: models.KeyTypeTrial, OwnerRef: "a@example.com"})
	assert.ErrorIs(t, err, ErrKeyExists)

	// same owner under another type is a different account
	require.NoError(t, store.Create(ctx, &models.APIKey{Key: "k3", KeyType: models.KeyTypePatreon, OwnerRef: "a@example.com"}))

	found, err := store.FindByOwner(ctx, models.KeyTypeTrial, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "k1", found.Key)
}

func TestInMemoryKeyStore_UpdateDeleteList(t *testing.T) {
	store := NewInMemoryKeyStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.Update(ctx, &models.APIKey{Key: "missing"}), ErrKeyNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrKeyNotFound)

	require.NoError(t, store.Create(ctx, &models.APIKey{Key: "b", KeyType: models.KeyTypeGetCheddar, OwnerRef: "CUST-B"}))
	require.NoError(t, store.Create(ctx, &models.APIKey{Key: "a", KeyType: models.KeyTypeGetCheddar, OwnerRef: "CUST-A"}))
	require.NoError(t, store.Create(ctx, &models.APIKey{Key: "t", KeyType: models.KeyTypeTrial, OwnerRef: "t@example.com"}))

	rec, err := store.Get(ctx, "a")
	require.NoError(t, err)
	rec.ThousandCharUsed = models.Float64Ptr(12.5)
	require.NoError(t, store.Update(ctx, rec))

	list, err := store.ListByType(ctx, models.KeyTypeGetCheddar)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Key)
	assert.Equal(t, 12.5, *list[0].ThousandCharUsed)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.FindByOwner(ctx, models.KeyTypeGetCheddar, "CUST-A")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestGenerateAPIKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := generateAPIKey()
		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), key)
		assert.False(t, seen[key], "duplicate key generated")
		seen[key] = true
	}
}
