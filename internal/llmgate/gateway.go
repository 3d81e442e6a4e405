// Package llmgate wraps the answer-generating model behind a process-wide
// gateway: the model loads lazily on first use, generation calls are
// serialised, and admission is bounded by a queue so overload fails fast
// instead of piling up goroutines.
package llmgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/reqrag/internal/config"
	"github.com/MrWong99/reqrag/internal/observe"
	"github.com/MrWong99/reqrag/pkg/provider/llm"
)

var (
	// ErrUnavailable is returned when the model failed to load. The state
	// is terminal; the gateway never retries a failed load.
	ErrUnavailable = errors.New("llmgate: model unavailable")

	// ErrOverloaded is returned when the generation queue is full.
	ErrOverloaded = errors.New("llmgate: generation queue full")
)

// Device names where the model runs. It decides the decoding strategy when
// the configuration says auto.
type Device string

const (
	DeviceCPU Device = "cpu"
	DeviceGPU Device = "gpu"
)

// State is the gateway lifecycle state reported by /health.
type State string

const (
	StateUnloaded    State = "unloaded"
	StateLoaded      State = "loaded"
	StateUnavailable State = "unavailable"
)

// Loader produces the provider on first use. Loading may be slow (local
// models read weights); it runs inside the first Generate call.
type Loader func(ctx context.Context) (llm.Provider, Device, error)

// Result is one finished generation.
type Result struct {
	Text     string
	Device   Device
	Duration time.Duration
}

// Gateway is the process-wide LLM front. Exactly one instance exists per
// process; construct it once in main.
type Gateway struct {
	loader  Loader
	cfg     config.GenerationConfig
	log     *slog.Logger
	metrics *observe.Metrics

	// queue bounds how many calls may be admitted at once, including the
	// one currently generating.
	queue chan struct{}

	// gen serialises generation. Separate from queue so that waiting calls
	// are counted against the queue depth.
	gen chan struct{}

	loadOnce sync.Once
	mu       sync.RWMutex
	provider llm.Provider
	device   Device
	loadErr  error
	loaded   bool
}

// New builds a Gateway. The model is not loaded until the first Generate.
func New(loader Loader, cfg config.GenerationConfig, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	depth := cfg.QueueDepth
	if depth < 1 {
		depth = 4
	}
	return &Gateway{
		loader:  loader,
		cfg:     cfg,
		log:     log,
		metrics: observe.DefaultMetrics(),
		queue:   make(chan struct{}, depth),
		gen:     make(chan struct{}, 1),
	}
}

// State reports the gateway lifecycle state without blocking on generation.
func (g *Gateway) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	switch {
	case g.loadErr != nil:
		return StateUnavailable
	case g.loaded:
		return StateLoaded
	default:
		return StateUnloaded
	}
}

// ModelID returns the loaded model identifier, or "" before the first load.
func (g *Gateway) ModelID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.provider == nil {
		return ""
	}
	return g.provider.ModelID()
}

// Generate runs one serialised generation call. It returns ErrOverloaded
// when the queue is full and ErrUnavailable once a load has failed.
func (g *Gateway) Generate(ctx context.Context, system, user string) (*Result, error) {
	select {
	case g.queue <- struct{}{}:
		g.metrics.GenerationQueue.Add(ctx, 1)
		defer func() {
			<-g.queue
			g.metrics.GenerationQueue.Add(ctx, -1)
		}()
	default:
		g.metrics.RecordRejection(ctx, "overloaded")
		return nil, ErrOverloaded
	}

	g.loadOnce.Do(func() { g.load(ctx) })

	g.mu.RLock()
	provider, device, loadErr := g.provider, g.device, g.loadErr
	g.mu.RUnlock()
	if loadErr != nil {
		g.metrics.RecordRejection(ctx, "unavailable")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, loadErr)
	}

	select {
	case g.gen <- struct{}{}:
		defer func() { <-g.gen }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	creq := g.decoder(device).apply(llm.CompletionRequest{
		SystemPrompt: system,
		UserPrompt:   user,
	})

	start := time.Now()
	resp, err := provider.Complete(ctx, creq)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("llmgate: generate: %w", err)
	}

	g.metrics.RecordGeneration(ctx, string(device), elapsed.Seconds())
	g.log.Debug("generation done",
		"device", device,
		"duration_ms", elapsed.Milliseconds(),
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return &Result{Text: resp.Content, Device: device, Duration: elapsed}, nil
}

// load runs the Loader exactly once. A failure is terminal.
func (g *Gateway) load(ctx context.Context) {
	start := time.Now()
	provider, device, err := g.loader(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.loadErr = err
		g.log.Error("model load failed; gateway is now unavailable", "error", err)
		return
	}
	if device == "" {
		device = DeviceCPU
	}
	g.provider = provider
	g.device = device
	g.loaded = true
	g.log.Info("model loaded",
		"model", provider.ModelID(),
		"device", device,
		"load_duration_ms", time.Since(start).Milliseconds(),
	)
}
