// Package mock provides a deterministic embeddings.Provider for tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/MrWong99/reqrag/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock embeddings provider that records calls and returns
// deterministic unit vectors derived from the input text. Equal texts always
// produce equal vectors, so similarity-dependent tests are reproducible.
type Provider struct {
	mu         sync.Mutex
	dimensions int

	// EmbedFunc, if set, overrides the deterministic vector generation.
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedCalls records every text passed to Embed and EmbedBatch, in order.
	EmbedCalls []string
}

// New creates a mock provider producing vectors of the given dimensionality.
func New(dimensions int) *Provider {
	if dimensions <= 0 {
		dimensions = 8
	}
	return &Provider{dimensions: dimensions}
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	fn := p.EmbedFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return p.vectorFor(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return "mock-embeddings"
}

// Calls returns a copy of the recorded Embed inputs.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.EmbedCalls))
	copy(out, p.EmbedCalls)
	return out
}

// vectorFor derives a stable pseudo-random unit vector from text.
func (p *Provider) vectorFor(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, p.dimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(math.Sin(float64(seed%10007) + float64(i)))
	}
	return embeddings.Normalize(vec)
}
