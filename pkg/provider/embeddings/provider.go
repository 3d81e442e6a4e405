// Package embeddings defines the Provider interface for text-embedding
// backends used by the reqrag retriever.
//
// A provider maps text to a dense float32 vector. All vectors produced by
// one Provider instance share the same dimensionality and are unit-length,
// so cosine distance against the stored corpus equals 1 − dot product and
// similarity thresholds are comparable across backends.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"errors"
	"math"
)

// ErrModelUnavailable is returned by [Verify] when the embedding backend
// cannot be reached or the model cannot serve. It is a startup-only
// condition: at steady state every encode call must succeed or the process
// is unhealthy.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Provider is the abstraction over any text-embedding backend.
type Provider interface {
	// Embed computes the unit-normalised embedding of a single text.
	// The returned slice has length Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embeddings for several texts in one backend call.
	// result[i] corresponds to texts[i]; partial results are never returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length produced by this provider.
	Dimensions() int

	// ModelID returns the backend model identifier, for logging and for
	// verifying that a corpus and its query embeddings share one model.
	ModelID() string
}

// Normalize scales vec to unit length in place and returns it. A zero
// vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return vec
}

// Verify issues one probe embedding to confirm the backend can serve.
// Call it at startup; a failure wraps [ErrModelUnavailable].
func Verify(ctx context.Context, p Provider) error {
	if _, err := p.Embed(ctx, "probe"); err != nil {
		return errors.Join(ErrModelUnavailable, err)
	}
	return nil
}
