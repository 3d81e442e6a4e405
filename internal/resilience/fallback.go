package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no backend in a [FallbackGroup] could serve
// the call, whether because it errored or because its breaker was open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the breaker created for each backend in a
// [FallbackGroup]. The Name field is overwritten with the backend's own name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// backend pairs one provider implementation with its dedicated breaker.
type backend[T any] struct {
	name    string
	impl    T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary backend and its fallbacks in preference
// order. A call is offered to each backend in turn; backends with an open
// breaker are skipped without being called.
//
// Registration is not synchronised: add all fallbacks during wiring, before
// the group starts serving calls. Serving itself is safe for concurrent use.
type FallbackGroup[T any] struct {
	chain []backend[T]
	cfg   FallbackConfig
}

// NewFallbackGroup creates a group with primary as the preferred backend.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends a backend to the end of the preference chain.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.chain = append(fg.chain, backend[T]{
		name:    name,
		impl:    fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// primary returns the first registered backend. The bool is false only for a
// zero-value group that was never initialised through [NewFallbackGroup].
func (fg *FallbackGroup[T]) primary() (T, bool) {
	if len(fg.chain) == 0 {
		var zero T
		return zero, false
	}
	return fg.chain[0].impl, true
}

// ExecuteWithResult offers fn to each backend in preference order and returns
// the first successful result. Backends with an open breaker are skipped.
// When every backend fails the last error is wrapped in [ErrAllFailed].
//
// This is a package function rather than a method because methods cannot
// introduce the result type parameter.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.chain {
		b := &fg.chain[i]
		var result R
		err := b.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(b.impl)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("backend breaker open, skipping", "backend", b.name)
		} else {
			slog.Warn("backend call failed, trying next", "backend", b.name, "error", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
