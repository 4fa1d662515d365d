package storage

// schema is applied by DB.Migrate. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		api_key                       TEXT PRIMARY KEY,
		key_type                      TEXT NOT NULL CHECK (key_type IN ('test', 'trial', 'patreon', 'getcheddar')),
		owner_email                   TEXT NOT NULL DEFAULT '',
		owner_ref                     TEXT NOT NULL,
		expires_at                    TIMESTAMPTZ,
		character_limit               BIGINT,
		patreon_user_id               TEXT,
		customer_code                 TEXT,
		plan_code                     TEXT,
		subscription_status           TEXT,
		thousand_char_quota           DOUBLE PRECISION,
		thousand_char_used            DOUBLE PRECISION,
		thousand_char_overage_allowed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at                    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at                    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (key_type, owner_ref)
	)`,
	`CREATE TABLE IF NOT EXISTS usage_records (
		id                  UUID PRIMARY KEY,
		api_key             TEXT NOT NULL,
		key_type            TEXT NOT NULL,
		service             TEXT NOT NULL,
		request_type        TEXT NOT NULL,
		language            TEXT NOT NULL DEFAULT '',
		raw_characters      BIGINT NOT NULL,
		billable_characters BIGINT NOT NULL,
		cost_usd            DOUBLE PRECISION NOT NULL DEFAULT 0,
		accepted            BOOLEAN NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_records_api_key_created ON usage_records (api_key, created_at DESC)`,
}
