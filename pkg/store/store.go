// Package store defines the data model and storage contract for the reqrag
// request corpus: work requests, their embedded text chunks, and the hybrid
// chunk-level search the retriever is built on.
//
// The corpus is read-mostly. The service itself only reads; the write path
// ([Store.UpsertRequest], [Store.IndexChunks]) exists for the offline
// embedding pipeline and for tests.
//
// Implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup by request id matches nothing.
var ErrNotFound = errors.New("request not found")

// QueryKind distinguishes the two SQL shapes the retriever issues, for error
// reporting and metrics.
type QueryKind string

const (
	QueryKindCount  QueryKind = "count"
	QueryKindSearch QueryKind = "search"
)

// BackendError wraps a database failure with the kind of query that caused
// it. Callers treat any BackendError as a server-side fault and do not retry
// within the request.
type BackendError struct {
	Kind QueryKind
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("store: %s query failed: %v", e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Store is the vector store gateway: chunk-level hybrid search over the
// requests and request_embeddings tables.
type Store interface {
	// SearchChunks returns chunk rows matching q ordered by similarity
	// descending (ties broken by request_id, chunk_index ascending).
	// Chunks with a NULL embedding never match.
	SearchChunks(ctx context.Context, q ChunkQuery) ([]ChunkHit, error)

	// CountRequests returns COUNT(DISTINCT request_id) over exactly the
	// predicates of q. Limit and ordering are ignored.
	CountRequests(ctx context.Context, q ChunkQuery) (int, error)

	// RequestByID returns the trimmed projection of one request.
	// Returns ErrNotFound when the id is unknown.
	RequestByID(ctx context.Context, requestID string) (*RequestView, error)

	// ChunkEmbedding returns the embedding of the lowest-indexed chunk that
	// belongs to requestID and has a non-null embedding.
	// Returns ErrNotFound when no such chunk exists.
	ChunkEmbedding(ctx context.Context, requestID string) ([]float32, error)

	// IndexChunks upserts pre-embedded chunks, replacing any existing chunk
	// with the same (request_id, chunk_index).
	IndexChunks(ctx context.Context, chunks []Chunk) error

	// UpsertRequest inserts or replaces one request row.
	UpsertRequest(ctx context.Context, r RequestView) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close()
}
