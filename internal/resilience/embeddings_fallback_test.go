package resilience

import (
	"context"
	"errors"
	"testing"

	embedmock "github.com/MrWong99/reqrag/pkg/provider/embeddings/mock"
)

func TestEmbeddingsFallback_PrimarySuccess(t *testing.T) {
	primary := embedmock.New(8)
	secondary := embedmock.New(8)

	fb := NewEmbeddingsFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	vec, err := fb.Embed(context.Background(), "בקשות של דוד")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 8 {
		t.Fatalf("vector length = %d, want 8", len(vec))
	}
	if len(primary.Calls()) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.Calls()))
	}
	if len(secondary.Calls()) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls()))
	}
}

func TestEmbeddingsFallback_Failover(t *testing.T) {
	primary := embedmock.New(8)
	primary.EmbedFunc = func(context.Context, string) ([]float32, error) {
		return nil, errors.New("primary down")
	}
	secondary := embedmock.New(8)

	fb := NewEmbeddingsFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	vec, err := fb.Embed(context.Background(), "בקשות דחופות")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 8 {
		t.Fatalf("vector length = %d, want 8", len(vec))
	}
	if len(secondary.Calls()) != 1 {
		t.Fatalf("secondary called %d times, want 1", len(secondary.Calls()))
	}
}

func TestEmbeddingsFallback_AllFail(t *testing.T) {
	down := func(context.Context, string) ([]float32, error) {
		return nil, errors.New("down")
	}
	primary := embedmock.New(8)
	primary.EmbedFunc = down
	secondary := embedmock.New(8)
	secondary.EmbedFunc = down

	fb := NewEmbeddingsFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	if _, err := fb.Embed(context.Background(), "בקשות"); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestEmbeddingsFallback_Metadata(t *testing.T) {
	primary := embedmock.New(16)

	fb := NewEmbeddingsFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	if got := fb.Dimensions(); got != 16 {
		t.Errorf("Dimensions = %d, want 16", got)
	}
	if got := fb.ModelID(); got != "mock-embeddings" {
		t.Errorf("ModelID = %q, want mock-embeddings", got)
	}
}
