// Package postgres provides the PostgreSQL/pgvector implementation of the
// reqrag store: the requests table, the request_embeddings chunk table with
// an HNSW cosine index, and the hybrid chunk-level search the retriever
// composes its queries from.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it via CREATE EXTENSION IF NOT EXISTS.
//
// status_date is stored as TEXT holding an ISO date. Source systems deliver
// dates as text; every date comparison casts with ::date, and a non-castable
// value surfaces as a query error rather than being silently skipped.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlRequests = `
CREATE TABLE IF NOT EXISTS requests (
    request_id            TEXT         PRIMARY KEY,
    project_name          TEXT,
    project_description   TEXT,
    area_description      TEXT,
    remarks               TEXT,
    updated_by            TEXT,
    created_by            TEXT,
    responsible_employee  TEXT,
    contact_first_name    TEXT,
    contact_last_name     TEXT,
    type_id               INTEGER,
    status_id             INTEGER,
    source_id             INTEGER,
    status_date           TEXT,
    created_date          TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_requests_type_id   ON requests (type_id);
CREATE INDEX IF NOT EXISTS idx_requests_status_id ON requests (status_id);
`

// ddlEmbeddings returns the chunk-table DDL with the embedding dimension
// baked into the column type.
func ddlEmbeddings(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS request_embeddings (
    id           BIGSERIAL    PRIMARY KEY,
    request_id   TEXT         NOT NULL,
    chunk_index  INTEGER      NOT NULL,
    text_chunk   TEXT         NOT NULL,
    embedding    vector(%d),
    metadata     JSONB        NOT NULL DEFAULT '{}',
    UNIQUE (request_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_request_embeddings_request_id
    ON request_embeddings (request_id);

CREATE INDEX IF NOT EXISTS idx_request_embeddings_embedding
    ON request_embeddings USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// Migrate creates or ensures all required tables, indexes and the pgvector
// extension. It is idempotent and safe to call on every start.
//
// dimensions must match the embedding model configured for the deployment
// (e.g. 384 for multilingual MiniLM). Changing it after the first migration
// requires a manual schema change.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	statements := []string{
		ddlRequests,
		ddlEmbeddings(dimensions),
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
