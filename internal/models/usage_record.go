package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is the audit entry written for every metered call, accepted or denied.
type UsageRecord struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	APIKey             string    `db:"api_key" json:"api_key"`
	KeyType            KeyType   `db:"key_type" json:"key_type"`
	Service            string    `db:"service" json:"service"`
	RequestType        string    `db:"request_type" json:"request_type"`
	Language           string    `db:"language" json:"language,omitempty"`
	RawCharacters      int64     `db:"raw_characters" json:"raw_characters"`
	BillableCharacters int64     `db:"billable_characters" json:"billable_characters"`
	CostUSD            float64   `db:"cost_usd" json:"cost_usd"`
	Accepted           bool      `db:"accepted" json:"accepted"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}
