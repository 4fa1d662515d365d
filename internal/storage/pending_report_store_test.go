package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lang_gateway/internal/billing"
	"lang_gateway/internal/models"
)

var _ billing.PendingStore = (*PendingReportStore)(nil)

func TestPendingReportStore_SaveLoadDelete(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	store := NewPendingReportStore(client, "")
	ctx := context.Background()

	missing, err := store.Load(ctx, "KEY1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	report := &models.PendingReport{
		ID:            "c0ffee",
		CustomerCode:  "cust-1",
		ThousandChars: 2.5,
		UsedBefore:    10,
		Characters:    2_500,
		Requests:      3,
		CreatedAt:     time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		Attempts:      1,
	}
	require.NoError(t, store.Save(ctx, "KEY1", report))
	assert.True(t, mr.Exists(DefaultPendingReportPrefix+":KEY1"))
	assert.Zero(t, mr.TTL(DefaultPendingReportPrefix+":KEY1"), "pending reports never expire")

	loaded, err := store.Load(ctx, "KEY1")
	require.NoError(t, err)
	assert.Equal(t, report, loaded)

	require.NoError(t, store.Delete(ctx, "KEY1"))
	loaded, err = store.Load(ctx, "KEY1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestPendingReportStore_Unavailable(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	mr.Close()

	store := NewPendingReportStore(client, "")
	_, err := store.Load(context.Background(), "KEY1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, store.Save(context.Background(), "KEY1", &models.PendingReport{}), ErrStoreUnavailable)
}

func TestPendingReportStore_Corrupt(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	require.NoError(t, mr.Set(DefaultPendingReportPrefix+":KEY1", "{not json"))
	_, err := NewPendingReportStore(client, "").Load(context.Background(), "KEY1")
	assert.ErrorContains(t, err, "corrupt pending report")
}
