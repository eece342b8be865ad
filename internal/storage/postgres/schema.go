package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sites (
	id                    BIGSERIAL PRIMARY KEY,
	name                  TEXT NOT NULL,
	url                   TEXT NOT NULL UNIQUE,
	category              TEXT NOT NULL DEFAULT '',
	auth_type             TEXT NOT NULL DEFAULT 'none',
	encrypted_credentials BYTEA,
	scraping_config       JSONB NOT NULL DEFAULT '{}',
	active                BOOLEAN NOT NULL DEFAULT true,
	legal_blocked         BOOLEAN NOT NULL DEFAULT false,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id            BIGSERIAL PRIMARY KEY,
	site_id       BIGINT NOT NULL REFERENCES sites(id),
	kind          TEXT NOT NULL DEFAULT 'full',
	status        TEXT NOT NULL DEFAULT 'pending',
	priority      INT NOT NULL DEFAULT 1,
	scheduled_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ,
	error         TEXT NOT NULL DEFAULT '',
	stats         JSONB,
	retry_count   INT NOT NULL DEFAULT 0,
	max_retries   INT NOT NULL DEFAULT 3,
	worker_id     TEXT NOT NULL DEFAULT '',
	cancel_flag   BOOLEAN NOT NULL DEFAULT false,
	heartbeat     TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs (status, scheduled_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS job_progress (
	job_id     BIGINT PRIMARY KEY REFERENCES jobs(id) ON DELETE CASCADE,
	pages      INT NOT NULL DEFAULT 0,
	items      INT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS opportunities (
	id                BIGSERIAL PRIMARY KEY,
	site_id           BIGINT NOT NULL REFERENCES sites(id),
	title             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	deadline          TIMESTAMPTZ,
	value             DOUBLE PRECISION,
	currency          TEXT NOT NULL DEFAULT 'USD',
	reference_number  TEXT NOT NULL DEFAULT '',
	source_url        TEXT NOT NULL UNIQUE,
	categories        JSONB,
	location          TEXT NOT NULL DEFAULT '',
	extracted_payload JSONB,
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id                BIGSERIAL PRIMARY KEY,
	opportunity_id    BIGINT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
	filename          TEXT NOT NULL DEFAULT '',
	object_key        TEXT NOT NULL DEFAULT '',
	size_bytes        BIGINT NOT NULL DEFAULT 0,
	mime_type         TEXT NOT NULL DEFAULT '',
	extracted_text    TEXT NOT NULL DEFAULT '',
	extracted_payload JSONB,
	status            TEXT NOT NULL DEFAULT 'pending',
	failure_reason    TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (d *DB) initSchema(ctx context.Context) error {
	_, err := d.sqlDB.ExecContext(ctx, schemaSQL)
	return err
}
