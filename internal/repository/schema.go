package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// catalogSchema is idempotent and safe to run on every start.
const catalogSchema = `CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS iqps (
	id BIGSERIAL PRIMARY KEY,
	course_code TEXT NOT NULL DEFAULT '',
	course_name TEXT NOT NULL DEFAULT '',
	year INTEGER NOT NULL,
	semester TEXT NOT NULL DEFAULT '' CHECK (semester IN ('autumn', 'spring', '')),
	exam TEXT NOT NULL DEFAULT '' CHECK (exam ~ '^(midsem|endsem|ct[0-9]*)?$'),
	note TEXT NOT NULL DEFAULT '',
	filelink TEXT NOT NULL,
	from_library BOOLEAN NOT NULL DEFAULT FALSE,
	upload_timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	approve_status BOOLEAN NOT NULL DEFAULT FALSE,
	approved_by TEXT,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	fts_course_details TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', course_code || ' ' || course_name)) STORED,
	fts_course_details_simple TSVECTOR GENERATED ALWAYS AS (to_tsvector('simple', course_code || ' ' || course_name)) STORED
);

CREATE INDEX IF NOT EXISTS iqps_fts_idx ON iqps USING GIN (fts_course_details);
CREATE INDEX IF NOT EXISTS iqps_fts_simple_idx ON iqps USING GIN (fts_course_details_simple);
CREATE INDEX IF NOT EXISTS iqps_course_trgm_idx ON iqps USING GIN ((course_code || ' ' || course_name) gin_trgm_ops);
CREATE UNIQUE INDEX IF NOT EXISTS iqps_live_filelink_idx ON iqps (filelink) WHERE is_deleted = false;
CREATE INDEX IF NOT EXISTS iqps_review_queue_idx ON iqps (upload_timestamp) WHERE approve_status = false AND is_deleted = false;
CREATE INDEX IF NOT EXISTS iqps_course_code_idx ON iqps (course_code) WHERE is_deleted = false;`

// EnsureSchema creates the catalog table, search indexes and the filelink uniqueness
// guard when they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, catalogSchema); err != nil {
		return fmt.Errorf("ensure catalog schema: %w", err)
	}
	return nil
}
