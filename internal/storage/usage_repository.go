package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lang_gateway/internal/models"
)

const insertUsageRecord = `
	INSERT INTO usage_records (
		id, api_key, key_type, service, request_type, language,
		raw_characters, billable_characters, cost_usd, accepted, created_at
	) VALUES (
		:id, :api_key, :key_type, :service, :request_type, :language,
		:raw_characters, :billable_characters, :cost_usd, :accepted, :created_at
	)
`

// UsageRepository handles usage record database operations
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Create creates a new usage record
func (r *UsageRepository) Create(ctx context.Context, record *models.UsageRecord) error {
	prepareRecord(record)

	if _, err := r.db.conn.NamedExecContext(ctx, insertUsageRecord, record); err != nil {
		return fmt.Errorf("failed to create usage record: %w", err)
	}
	return nil
}

// CreateBatch inserts records in a single transaction; either all or none are stored
func (r *UsageRepository) CreateBatch(ctx context.Context, records []*models.UsageRecord) error {
	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, insertUsageRecord)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		prepareRecord(record)
		if _, err := stmt.ExecContext(ctx, record); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByAPIKey retrieves usage records for an API key, newest first
func (r *UsageRepository) GetByAPIKey(ctx context.Context, apiKey string, startTime, endTime time.Time, limit int) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, api_key, key_type, service, request_type, language,
		       raw_characters, billable_characters, cost_usd, accepted, created_at
		FROM usage_records
		WHERE api_key = $1
		  AND created_at >= $2
		  AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`

	var records []*models.UsageRecord
	if err := r.db.conn.SelectContext(ctx, &records, query, apiKey, startTime, endTime, limit); err != nil {
		return nil, fmt.Errorf("failed to get usage records: %w", err)
	}
	return records, nil
}

// UsageSummary aggregates the audit trail of one key per service and request type
type UsageSummary struct {
	Service            string  `db:"service"`
	RequestType        string  `db:"request_type"`
	Requests           int64   `db:"requests"`
	Denied             int64   `db:"denied"`
	BillableCharacters int64   `db:"billable_characters"`
	CostUSD            float64 `db:"cost_usd"`
}

// SummarizeByAPIKey aggregates usage records of a key created since a point in time
func (r *UsageRepository) SummarizeByAPIKey(ctx context.Context, apiKey string, since time.Time) ([]UsageSummary, error) {
	query := `
		SELECT service, request_type,
		       COUNT(*) AS requests,
		       COUNT(*) FILTER (WHERE NOT accepted) AS denied,
		       COALESCE(SUM(billable_characters), 0) AS billable_characters,
		       COALESCE(SUM(cost_usd), 0) AS cost_usd
		FROM usage_records
		WHERE api_key = $1 AND created_at >= $2
		GROUP BY service, request_type
		ORDER BY service, request_type
	`

	var out []UsageSummary
	if err := sqlx.SelectContext(ctx, r.db.conn, &out, query, apiKey, since); err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return out, nil
}

func prepareRecord(record *models.UsageRecord) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
}
