// Package database owns the pgx connection pool and the bootstrap schema for
// the Metadata Store: files, content_chunks, embeddings and processing_jobs,
// plus the pgvector extension the embeddings table depends on.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 16
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the tables and extension ingestkit needs, and pins the
// deployment's vector dimension. A mismatch against a prior dimension is a
// fatal config error, per the Open Question about dimension churn across
// deployments: the caller must not silently reinterpret existing vector
// columns as a new width.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, vectorDimension int) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS schema_meta (
	id SMALLINT PRIMARY KEY DEFAULT 1,
	vector_dimension INT NOT NULL,
	CONSTRAINT schema_meta_singleton CHECK (id = 1)
);

CREATE TABLE IF NOT EXISTS files (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	content_hash TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_content_hash ON files(content_hash);

CREATE TABLE IF NOT EXISTS content_chunks (
	id UUID PRIMARY KEY,
	file_id UUID NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	chunk_text TEXT NOT NULL,
	chunk_index INT NOT NULL,
	token_count INT NOT NULL,
	page_number INT,
	section_path TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE(file_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON content_chunks(file_id);

CREATE TABLE IF NOT EXISTS embeddings (
	id UUID PRIMARY KEY,
	content_chunk_id UUID NOT NULL REFERENCES content_chunks(id) ON DELETE CASCADE,
	embedding VECTOR(%d) NOT NULL,
	model_name TEXT NOT NULL,
	model_version TEXT NOT NULL DEFAULT '',
	generated_at TIMESTAMPTZ NOT NULL,
	generation_params JSONB NOT NULL DEFAULT '{}'::jsonb,
	UNIQUE(content_chunk_id, model_name, model_version)
);
CREATE INDEX IF NOT EXISTS idx_embeddings_chunk ON embeddings(content_chunk_id);

CREATE TABLE IF NOT EXISTS processing_jobs (
	id UUID PRIMARY KEY,
	file_id UUID NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	status TEXT NOT NULL CHECK (status IN ('queued','processing','completed','cancelled','failed')),
	status_reason TEXT NOT NULL DEFAULT '',
	progress REAL NOT NULL DEFAULT 0 CHECK (progress >= 0 AND progress <= 1),
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	result_summary JSONB,
	version INT NOT NULL DEFAULT 0,
	CHECK (started_at IS NULL OR started_at >= created_at),
	CHECK (completed_at IS NULL OR started_at IS NULL OR completed_at >= started_at)
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON processing_jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_file ON processing_jobs(file_id);
`
	if _, err := pool.Exec(ctx, fmt.Sprintf(ddl, vectorDimension)); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	var existing int
	err := pool.QueryRow(ctx, `SELECT vector_dimension FROM schema_meta WHERE id = 1`).Scan(&existing)
	if err != nil {
		if _, insErr := pool.Exec(ctx,
			`INSERT INTO schema_meta (id, vector_dimension) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`,
			vectorDimension); insErr != nil {
			return fmt.Errorf("record vector dimension: %w", insErr)
		}
		return nil
	}
	if existing != vectorDimension {
		return fmt.Errorf("configured vector dimension %d does not match existing deployment dimension %d", vectorDimension, existing)
	}
	return nil
}

// EnsureVectorIndex builds the IVF-Flat similarity index. Split from
// EnsureSchema because IVF-Flat needs existing rows to choose sensible list
// counts; callers may invoke this once the store has been seeded, or rely on
// pgvector's behavior against a small or empty table.
func EnsureVectorIndex(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE INDEX IF NOT EXISTS idx_embeddings_ivfflat
ON embeddings USING ivfflat (embedding vector_l2_ops) WITH (lists = 100);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure vector index: %w", err)
	}
	return nil
}
