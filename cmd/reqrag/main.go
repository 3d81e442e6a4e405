// Command reqrag is the main entry point for the reqrag query server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/reqrag/internal/config"
	"github.com/MrWong99/reqrag/internal/health"
	"github.com/MrWong99/reqrag/internal/httpapi"
	"github.com/MrWong99/reqrag/internal/llmgate"
	"github.com/MrWong99/reqrag/internal/observe"
	"github.com/MrWong99/reqrag/internal/queryparse"
	"github.com/MrWong99/reqrag/internal/rag"
	"github.com/MrWong99/reqrag/internal/ragctx"
	"github.com/MrWong99/reqrag/internal/resilience"
	"github.com/MrWong99/reqrag/internal/retrieve"
	"github.com/MrWong99/reqrag/pkg/provider/embeddings"
	embedmock "github.com/MrWong99/reqrag/pkg/provider/embeddings/mock"
	ollamaembed "github.com/MrWong99/reqrag/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/reqrag/pkg/provider/embeddings/openai"
	"github.com/MrWong99/reqrag/pkg/provider/llm"
	"github.com/MrWong99/reqrag/pkg/provider/llm/anyllm"
	llmmock "github.com/MrWong99/reqrag/pkg/provider/llm/mock"
	oaillm "github.com/MrWong99/reqrag/pkg/provider/llm/openai"
	"github.com/MrWong99/reqrag/pkg/store/postgres"
)

// Exit codes: 0 clean shutdown, 1 configuration or runtime error,
// 2 database unreachable at startup.
const (
	exitOK        = 0
	exitConfig    = 1
	exitDBStartup = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to a JSON or YAML configuration file (built-in defaults when empty)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reqrag: %v\n", err)
			return exitConfig
		}
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "reqrag: invalid configuration: %v\n", err)
		return exitConfig
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("reqrag starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "reqrag",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return exitConfig
	}
	defer func() {
		sdCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sdCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Database ──────────────────────────────────────────────────────────────
	st, err := connectStore(ctx, cfg)
	if err != nil {
		slog.Error("database unreachable", "err", err)
		return exitDBStartup
	}
	defer st.Close()
	slog.Info("database connected", "dimensions", cfg.Database.EmbeddingDimensions)

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	embedder, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("failed to create embeddings provider",
			"name", cfg.Providers.Embeddings.Name, "err", err)
		return exitConfig
	}
	if fb := cfg.Providers.EmbeddingsFallback; fb.Name != "" {
		secondary, err := reg.CreateEmbeddings(fb)
		if err != nil {
			slog.Error("failed to create fallback embeddings provider",
				"name", fb.Name, "err", err)
			return exitConfig
		}
		if secondary.Dimensions() != embedder.Dimensions() {
			slog.Error("fallback embeddings dimensions differ from primary",
				"primary", embedder.Dimensions(), "fallback", secondary.Dimensions())
			return exitConfig
		}
		group := resilience.NewEmbeddingsFallback(embedder, cfg.Providers.Embeddings.Name, fallbackConfig())
		group.AddFallback(fb.Name, secondary)
		embedder = group
		slog.Info("embeddings fallback configured", "name", fb.Name, "model", fb.Model)
	}
	if dims := embedder.Dimensions(); dims != cfg.Database.EmbeddingDimensions {
		slog.Warn("embedding dimensions differ from database configuration",
			"model", dims, "database", cfg.Database.EmbeddingDimensions)
	}
	if err := embeddings.Verify(ctx, embedder); err != nil {
		slog.Warn("embeddings provider probe failed, /health will report it down", "err", err)
	} else {
		slog.Info("embeddings provider ready",
			"name", cfg.Providers.Embeddings.Name, "model", embedder.ModelID())
	}

	// The model behind the gateway loads lazily on the first /rag call, so
	// startup never blocks on weights.
	var gateway *llmgate.Gateway
	if name := cfg.Providers.LLM.Name; name != "" && name != "none" {
		entry := cfg.Providers.LLM
		fbEntry := cfg.Providers.LLMFallback
		gateway = llmgate.New(func(context.Context) (llm.Provider, llmgate.Device, error) {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, "", err
			}
			if fbEntry.Name != "" {
				secondary, err := reg.CreateLLM(fbEntry)
				if err != nil {
					slog.Warn("failed to create fallback llm provider, continuing without it",
						"name", fbEntry.Name, "err", err)
				} else {
					group := resilience.NewLLMFallback(p, entry.Name, fallbackConfig())
					group.AddFallback(fbEntry.Name, secondary)
					p = group
				}
			}
			return p, deviceFor(entry), nil
		}, cfg.Generation, logger)
	} else {
		slog.Warn("no llm provider configured, /rag serves retrieval-only answers")
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	svc := rag.New(
		queryparse.New(cfg.Query),
		retrieve.New(st, embedder, cfg.Query, logger),
		ragctx.New(cfg.Query.Labels, cfg.Query.UrgencyHorizonDays, nil),
		gateway,
		cfg.Query.Labels,
		cfg.Timeouts,
		logger,
	)

	status := &health.StatusHandler{
		DB: st.Ping,
		Embedder: func(ctx context.Context) error {
			return embeddings.Verify(ctx, embedder)
		},
	}
	if gateway != nil {
		status.LLMState = func() string { return string(gateway.State()) }
	}
	probes := health.New(
		health.Checker{Name: "database", Check: st.Ping},
	)

	api := httpapi.New(svc, status, probes, logger)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready", "addr", cfg.Server.ListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return exitConfig
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return exitConfig
	}
	slog.Info("goodbye")
	return exitOK
}

// connectStore opens the postgres pool, retrying per the startup policy so a
// container orchestrator can bring the database up in parallel.
func connectStore(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	dsn := postgres.DSNFromEnv()
	interval := time.Duration(cfg.Database.StartupRetryIntervalMS) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= cfg.Database.StartupRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("database connection failed, retrying",
				"attempt", attempt,
				"retries", cfg.Database.StartupRetries,
				"err", lastErr,
			)
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		st, err := postgres.NewStore(ctx, dsn, cfg.Database.EmbeddingDimensions)
		if err == nil {
			return st, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders are the hosted and local backends reachable through the
// any-llm client with the shared APIKey + BaseURL pattern.
var anyllmProviders = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, ollamaembed.WithBaseURL(entry.BaseURL))
		}
		return ollamaembed.New(entry.Model, opts...), nil
	})

	reg.RegisterEmbeddings("mock", func(config.ProviderEntry) (embeddings.Provider, error) {
		return embedmock.New(0), nil
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyllmProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return llmmock.New("mock answer"), nil
	})
}

// fallbackConfig is the circuit-breaker policy for provider failover. Three
// consecutive failures open the breaker; after thirty seconds one probe call
// may test whether the backend recovered.
func fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  1,
		},
	}
}

// deviceFor reads the optional "device" provider option. Anything other than
// "gpu" runs with the CPU decoding profile.
func deviceFor(entry config.ProviderEntry) llmgate.Device {
	if v, ok := entry.Options["device"].(string); ok && v == "gpu" {
		return llmgate.DeviceGPU
	}
	return llmgate.DeviceCPU
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          reqrag — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Printf("║  Vector dims     : %-19d ║\n", cfg.Database.EmbeddingDimensions)
	fmt.Printf("║  LLM queue depth : %-19d ║\n", cfg.Generation.QueueDepth)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
