// Package retrieve implements hybrid retrieval over the request corpus:
// structured SQL predicates, substring predicates, and approximate
// nearest-neighbour ranking composed under AND semantics.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/reqrag/internal/config"
	"github.com/MrWong99/reqrag/internal/observe"
	"github.com/MrWong99/reqrag/pkg/provider/embeddings"
	"github.com/MrWong99/reqrag/pkg/store"
)

// ErrSourceNotFound is returned by similar-by-id retrieval when the named
// request does not exist.
var ErrSourceNotFound = errors.New("retrieve: source request not found")

// DefaultTopK is the page size when the caller does not specify one.
const DefaultTopK = 20

// Result is the outcome of one retrieval. Source is set only by the
// similar-by-id path and carries the request the neighbours relate to.
type Result struct {
	store.RetrievalResult
	Source *store.RequestView
}

// Retriever runs hybrid queries against a Store using an embeddings
// provider for the semantic layer. It is stateless and safe for concurrent
// use.
type Retriever struct {
	store    store.Store
	embedder embeddings.Provider
	cfg      config.QueryConfig
	log      *slog.Logger
	metrics  *observe.Metrics
}

// New builds a Retriever.
func New(st store.Store, embedder embeddings.Provider, cfg config.QueryConfig, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{store: st, embedder: embedder, cfg: cfg, log: log, metrics: observe.DefaultMetrics()}
}

// Retrieve runs the parsed query and returns the ranked page plus the
// accurate total count of distinct matching requests.
func (r *Retriever) Retrieve(ctx context.Context, rawQuery string, pq store.ParsedQuery, topK int) (*Result, error) {
	if topK < 0 {
		topK = DefaultTopK
	}
	if strings.TrimSpace(rawQuery) == "" {
		return &Result{RetrievalResult: store.RetrievalResult{Requests: []store.RequestView{}}}, nil
	}

	if pq.QueryType == store.QuerySimilar && pq.Entities.RequestID != "" {
		return r.retrieveSimilar(ctx, pq, topK)
	}

	q := store.ChunkQuery{
		Filters:    r.filtersFor(pq.Entities),
		Substrings: textEntities(pq.Entities),
		Threshold:  r.threshold(pq),
		Limit:      topK * r.cfg.ChunkFetchMultiplier,
	}

	embedStart := time.Now()
	vec, err := r.embedder.Embed(ctx, rawQuery)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}
	r.metrics.EmbedDuration.Record(ctx, time.Since(embedStart).Seconds())
	q.Vector = vec

	hits, total, err := r.run(ctx, q)
	if err != nil {
		return nil, err
	}

	requests := r.rank(hits, pq, topK)
	r.log.Debug("hybrid retrieval done",
		"intent", pq.Intent,
		"query_type", pq.QueryType,
		"threshold", q.Threshold,
		"chunk_hits", len(hits),
		"requests", len(requests),
		"total_count", total,
	)
	return &Result{RetrievalResult: store.RetrievalResult{
		Requests:   requests,
		TotalCount: total,
		Scores:     scoresOf(requests),
	}}, nil
}

// retrieveSimilar ranks neighbours of an existing request by reusing one of
// its stored chunk embeddings as the query vector.
func (r *Retriever) retrieveSimilar(ctx context.Context, pq store.ParsedQuery, topK int) (*Result, error) {
	source, err := r.store.RequestByID(ctx, pq.Entities.RequestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, pq.Entities.RequestID)
	}
	if err != nil {
		return nil, err
	}

	vec, err := r.store.ChunkEmbedding(ctx, pq.Entities.RequestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s has no embedded chunks", ErrSourceNotFound, pq.Entities.RequestID)
	}
	if err != nil {
		return nil, err
	}

	q := store.ChunkQuery{
		Vector:           vec,
		Threshold:        r.cfg.Thresholds.Similar,
		Limit:            topK * r.cfg.ChunkFetchMultiplier,
		ExcludeRequestID: pq.Entities.RequestID,
	}

	hits, total, err := r.run(ctx, q)
	if err != nil {
		return nil, err
	}

	requests := r.rank(hits, pq, topK)
	return &Result{
		RetrievalResult: store.RetrievalResult{
			Requests:   requests,
			TotalCount: total,
			Scores:     scoresOf(requests),
		},
		Source: source,
	}, nil
}

// run issues the count and search statements concurrently. Both are built
// from the same predicate set. A zero limit means the caller wants only the
// count; the page query is skipped entirely.
func (r *Retriever) run(ctx context.Context, q store.ChunkQuery) ([]store.ChunkHit, int, error) {
	var (
		hits  []store.ChunkHit
		total int
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = r.store.CountRequests(gctx, q)
		return err
	})
	if q.Limit > 0 {
		g.Go(func() error {
			var err error
			hits, err = r.store.SearchChunks(gctx, q)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	r.metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds())
	return hits, total, nil
}

// filtersFor maps structured entities onto SQL predicates.
func (r *Retriever) filtersFor(e store.Entities) store.RequestFilters {
	f := store.RequestFilters{
		TypeID:    e.TypeID,
		StatusID:  e.StatusID,
		DateRange: e.DateRange,
	}
	if e.Urgency {
		f.UrgentWithinDays = r.cfg.UrgencyHorizonDays
	}
	return f
}

// threshold picks the similarity gate for the query shape. Structured-only
// queries get none: their predicates are exact and a floor would break
// count accuracy.
func (r *Retriever) threshold(pq store.ParsedQuery) float64 {
	hasText := pq.Entities.HasText()
	hasStructured := pq.Entities.HasStructured()

	switch {
	case hasText && hasStructured:
		return r.cfg.Thresholds.Mixed
	case hasText:
		return r.cfg.Thresholds.PersonProject
	case hasStructured:
		return 0
	default:
		return r.cfg.Thresholds.General
	}
}

// textEntities lists the substring predicates of a query.
func textEntities(e store.Entities) []string {
	var subs []string
	if e.PersonName != "" {
		subs = append(subs, e.PersonName)
	}
	if e.ProjectName != "" {
		subs = append(subs, e.ProjectName)
	}
	return subs
}

// rank boosts, deduplicates, and orders chunk hits into the final page.
//
// Each chunk gets a multiplier: ExactInTargetField when it carries
// "<label>: <entity>" for a target field, EntityInChunk when the entity
// appears anywhere, Base otherwise. Overlapping matches take the maximum.
// Requests keep their best-scoring chunk. Order is score descending with
// request_id ascending as the tie-break.
func (r *Retriever) rank(hits []store.ChunkHit, pq store.ParsedQuery, topK int) []store.RequestView {
	entities := textEntities(pq.Entities)

	type best struct {
		view  store.RequestView
		score float64
	}
	byID := make(map[string]best, len(hits))

	for _, h := range hits {
		boost := r.boostFor(h.ChunkText, entities, pq.TargetFields)
		score := h.Similarity * boost

		cur, seen := byID[h.Request.RequestID]
		if seen && cur.score >= score {
			continue
		}
		view := h.Request
		view.Similarity = h.Similarity
		view.Boost = boost
		byID[h.Request.RequestID] = best{view: view, score: score}
	}

	ranked := make([]store.RequestView, 0, len(byID))
	for _, b := range byID {
		ranked = append(ranked, b.view)
	}
	sort.Slice(ranked, func(i, j int) bool {
		si := ranked[i].Similarity * ranked[i].Boost
		sj := ranked[j].Similarity * ranked[j].Boost
		if si != sj {
			return si > sj
		}
		return ranked[i].RequestID < ranked[j].RequestID
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// boostFor computes the ordering multiplier for one chunk.
func (r *Retriever) boostFor(chunkText string, entities, targetFields []string) float64 {
	boost := r.cfg.Boosts.Base
	for _, entity := range entities {
		for _, label := range targetFields {
			if store.ContainsLabelled(chunkText, label, entity) {
				if r.cfg.Boosts.ExactInTargetField > boost {
					boost = r.cfg.Boosts.ExactInTargetField
				}
			}
		}
		if strings.Contains(chunkText, entity) && r.cfg.Boosts.EntityInChunk > boost {
			boost = r.cfg.Boosts.EntityInChunk
		}
	}
	return boost
}

func scoresOf(requests []store.RequestView) map[string]float64 {
	scores := make(map[string]float64, len(requests))
	for _, req := range requests {
		scores[req.RequestID] = req.Similarity * req.Boost
	}
	return scores
}
