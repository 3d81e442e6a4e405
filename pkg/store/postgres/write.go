package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/reqrag/pkg/store"
)

// RequestByID implements [store.Store].
func (s *Store) RequestByID(ctx context.Context, requestID string) (*store.RequestView, error) {
	q := fmt.Sprintf(`
SELECT %s, 0, ''::text, 0::float8
FROM requests r
WHERE r.request_id = $1`, requestColumns)

	rows, err := s.pool.Query(ctx, q, requestID)
	if err != nil {
		return nil, &store.BackendError{Kind: store.QueryKindSearch, Err: err}
	}
	hit, err := pgx.CollectOneRow(rows, scanChunkHit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.BackendError{Kind: store.QueryKindSearch, Err: err}
	}
	view := hit.Request
	return &view, nil
}

// ChunkEmbedding implements [store.Store]. It reads the lowest-indexed
// embedded chunk of the request, which similar-by-id uses as its query
// vector.
func (s *Store) ChunkEmbedding(ctx context.Context, requestID string) ([]float32, error) {
	const q = `
SELECT embedding
FROM request_embeddings
WHERE request_id = $1 AND embedding IS NOT NULL
ORDER BY chunk_index ASC
LIMIT 1`

	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx, q, requestID).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.BackendError{Kind: store.QueryKindSearch, Err: err}
	}
	return vec.Slice(), nil
}

// IndexChunks implements [store.Store]. Chunks are written in one batch;
// an existing (request_id, chunk_index) row is replaced.
func (s *Store) IndexChunks(ctx context.Context, chunks []store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	const q = `
INSERT INTO request_embeddings (request_id, chunk_index, text_chunk, embedding, metadata)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (request_id, chunk_index) DO UPDATE SET
    text_chunk = EXCLUDED.text_chunk,
    embedding  = EXCLUDED.embedding,
    metadata   = EXCLUDED.metadata`

	batch := &pgx.Batch{}
	for _, c := range chunks {
		meta := c.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		var vec any
		if c.Embedding != nil {
			vec = pgvector.NewVector(c.Embedding)
		}
		batch.Queue(q, c.RequestID, c.ChunkIndex, c.Text, vec, meta)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: index chunks: %w", err)
	}
	return nil
}

// UpsertRequest implements [store.Store].
func (s *Store) UpsertRequest(ctx context.Context, r store.RequestView) error {
	const q = `
INSERT INTO requests
    (request_id, project_name, project_description, area_description, remarks,
     updated_by, created_by, responsible_employee, contact_first_name,
     contact_last_name, type_id, status_id, source_id, status_date, created_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (request_id) DO UPDATE SET
    project_name         = EXCLUDED.project_name,
    project_description  = EXCLUDED.project_description,
    area_description     = EXCLUDED.area_description,
    remarks              = EXCLUDED.remarks,
    updated_by           = EXCLUDED.updated_by,
    created_by           = EXCLUDED.created_by,
    responsible_employee = EXCLUDED.responsible_employee,
    contact_first_name   = EXCLUDED.contact_first_name,
    contact_last_name    = EXCLUDED.contact_last_name,
    type_id              = EXCLUDED.type_id,
    status_id            = EXCLUDED.status_id,
    source_id            = EXCLUDED.source_id,
    status_date          = EXCLUDED.status_date,
    created_date         = EXCLUDED.created_date`

	_, err := s.pool.Exec(ctx, q,
		r.RequestID,
		nilEmpty(r.ProjectName), nilEmpty(r.ProjectDescription),
		nilEmpty(r.AreaDescription), nilEmpty(r.Remarks),
		nilEmpty(r.UpdatedBy), nilEmpty(r.CreatedBy),
		nilEmpty(r.ResponsibleEmployee),
		nilEmpty(r.ContactFirstName), nilEmpty(r.ContactLastName),
		r.TypeID, r.StatusID, r.SourceID,
		formatStatusDate(r.StatusDate), r.CreatedDate,
	)
	if err != nil {
		return fmt.Errorf("postgres store: upsert request %s: %w", r.RequestID, err)
	}
	return nil
}

// nilEmpty maps "" to NULL; missing attribute values are absent, not empty
// strings.
func nilEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatStatusDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(statusDateLayout)
	return &s
}
