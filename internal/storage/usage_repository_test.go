package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lang_gateway/internal/models"
)

func TestUsageRepository_CreateBatch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := db.NewUsageRepository()

	records := []*models.UsageRecord{
		{APIKey: "A", KeyType: models.KeyTypeTrial, Service: "Azure", RequestType: "audio", RawCharacters: 10, BillableCharacters: 20, Accepted: true},
		{APIKey: "B", KeyType: models.KeyTypePatreon, Service: "Naver", RequestType: "audio", RawCharacters: 10, BillableCharacters: 60, Accepted: false},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO usage_records`)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateBatch(context.Background(), records))
	require.NoError(t, mock.ExpectationsWereMet())

	for _, r := range records {
		assert.NotEqual(t, uuid.Nil, r.ID, "ids are assigned")
		assert.False(t, r.CreatedAt.IsZero())
	}
}

func TestUsageRepository_CreateBatchRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := db.NewUsageRepository()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO usage_records`)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.CreateBatch(context.Background(), []*models.UsageRecord{{APIKey: "A"}, {APIKey: "B"}})
	assert.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := db.NewUsageRepository()

	id := uuid.New()
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO usage_records`).
		WithArgs(id, "A", models.KeyTypeTrial, "Google", "translation", "fr", int64(5), int64(5), 0.0001, true, created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.UsageRecord{
		ID: id, APIKey: "A", KeyType: models.KeyTypeTrial, Service: "Google", RequestType: "translation",
		Language: "fr", RawCharacters: 5, BillableCharacters: 5, CostUSD: 0.0001, Accepted: true, CreatedAt: created,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_SummarizeByAPIKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := db.NewUsageRepository()
	since := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery(`SELECT service, request_type`).
		WithArgs("A", since).
		WillReturnRows(sqlmock.NewRows([]string{"service", "request_type", "requests", "denied", "billable_characters", "cost_usd"}).
			AddRow("Azure", "audio", 4, 1, 80, 0.00128).
			AddRow("Google", "translation", 2, 0, 30, 0.0006))

	summary, err := repo.SummarizeByAPIKey(context.Background(), "A", since)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, int64(1), summary[0].Denied)
	assert.Equal(t, int64(80), summary[0].BillableCharacters)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_GetByAPIKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := db.NewUsageRepository()
	end := time.Now().UTC()
	start := end.Add(-time.Hour)
	id := uuid.New()

	mock.ExpectQuery(`SELECT id, api_key, key_type`).
		WithArgs("A", start, end, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "api_key", "key_type", "service", "request_type", "language",
			"raw_characters", "billable_characters", "cost_usd", "accepted", "created_at"}).
			AddRow(id.String(), "A", "trial", "Azure", "audio", "ja", 300, 600, 0.0096, true, end))

	records, err := repo.GetByAPIKey(context.Background(), "A", start, end, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, models.KeyTypeTrial, records[0].KeyType)
	assert.Equal(t, int64(600), records[0].BillableCharacters)
	require.NoError(t, mock.ExpectationsWereMet())
}
