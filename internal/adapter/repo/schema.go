package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY,
	provider_job_id TEXT NOT NULL DEFAULT '',
	kind            TEXT NOT NULL,
	state           TEXT NOT NULL,
	request         JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	last_polled_at  TIMESTAMPTZ,
	next_poll_at    TIMESTAMPTZ NOT NULL,
	attempts        INT NOT NULL DEFAULT 0,
	store_attempts  INT NOT NULL DEFAULT 0,
	failure_reason  TEXT NOT NULL DEFAULT '',
	artifact_ids    JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS jobs_due_idx ON jobs (next_poll_at)
	WHERE state IN ('queued', 'polling');

CREATE TABLE IF NOT EXISTS artifacts (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	container_key TEXT NOT NULL,
	storage_path  TEXT NOT NULL,
	byte_size     BIGINT NOT NULL,
	content_type  TEXT NOT NULL,
	transparency  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL,
	source_job_id TEXT
);

CREATE INDEX IF NOT EXISTS artifacts_page_idx ON artifacts (kind, created_at DESC, id DESC);
`

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
