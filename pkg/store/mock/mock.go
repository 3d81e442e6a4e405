// Package mock provides a scriptable in-memory store.Store for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/reqrag/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store is a mock store that records calls and delegates to scriptable
// functions. Unset functions return zero values.
type Store struct {
	mu sync.Mutex

	SearchChunksFunc   func(ctx context.Context, q store.ChunkQuery) ([]store.ChunkHit, error)
	CountRequestsFunc  func(ctx context.Context, q store.ChunkQuery) (int, error)
	RequestByIDFunc    func(ctx context.Context, requestID string) (*store.RequestView, error)
	ChunkEmbeddingFunc func(ctx context.Context, requestID string) ([]float32, error)
	IndexChunksFunc    func(ctx context.Context, chunks []store.Chunk) error
	UpsertRequestFunc  func(ctx context.Context, r store.RequestView) error
	PingFunc           func(ctx context.Context) error

	// SearchCalls and CountCalls record the queries passed in, in order.
	SearchCalls []store.ChunkQuery
	CountCalls  []store.ChunkQuery
}

// SearchChunks implements store.Store.
func (s *Store) SearchChunks(ctx context.Context, q store.ChunkQuery) ([]store.ChunkHit, error) {
	s.mu.Lock()
	s.SearchCalls = append(s.SearchCalls, q)
	fn := s.SearchChunksFunc
	s.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, q)
}

// CountRequests implements store.Store.
func (s *Store) CountRequests(ctx context.Context, q store.ChunkQuery) (int, error) {
	s.mu.Lock()
	s.CountCalls = append(s.CountCalls, q)
	fn := s.CountRequestsFunc
	s.mu.Unlock()
	if fn == nil {
		return 0, nil
	}
	return fn(ctx, q)
}

// RequestByID implements store.Store.
func (s *Store) RequestByID(ctx context.Context, requestID string) (*store.RequestView, error) {
	if s.RequestByIDFunc == nil {
		return nil, store.ErrNotFound
	}
	return s.RequestByIDFunc(ctx, requestID)
}

// ChunkEmbedding implements store.Store.
func (s *Store) ChunkEmbedding(ctx context.Context, requestID string) ([]float32, error) {
	if s.ChunkEmbeddingFunc == nil {
		return nil, store.ErrNotFound
	}
	return s.ChunkEmbeddingFunc(ctx, requestID)
}

// IndexChunks implements store.Store.
func (s *Store) IndexChunks(ctx context.Context, chunks []store.Chunk) error {
	if s.IndexChunksFunc == nil {
		return nil
	}
	return s.IndexChunksFunc(ctx, chunks)
}

// UpsertRequest implements store.Store.
func (s *Store) UpsertRequest(ctx context.Context, r store.RequestView) error {
	if s.UpsertRequestFunc == nil {
		return nil
	}
	return s.UpsertRequestFunc(ctx, r)
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	if s.PingFunc == nil {
		return nil
	}
	return s.PingFunc(ctx)
}

// Close implements store.Store.
func (s *Store) Close() {}
