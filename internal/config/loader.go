package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the config file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"embeddings": {"openai", "ollama", "mock"},
	"llm": {
		"openai", "anthropic", "gemini", "deepseek", "mistral", "groq",
		"llamacpp", "llamafile", "ollama", "mock", "none",
	},
}

// Load reads the configuration file at path and returns a validated [Config].
// The encoding follows the file extension: .json for JSON, .yaml/.yml for
// YAML. Values absent from the file keep their built-in defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}

	cfg, err := LoadFromReader(f, format)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a config from r on top of the built-in defaults and
// validates the result. Unknown keys are an error. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader, format Format) (*Config, error) {
	cfg := Default()

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode json: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unknown format %q", format)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Database.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("database.embedding_dimensions must be positive, got %d", cfg.Database.EmbeddingDimensions))
	}
	if cfg.Database.StartupRetries < 0 {
		errs = append(errs, fmt.Errorf("database.startup_retries must not be negative, got %d", cfg.Database.StartupRetries))
	}

	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.EmbeddingsFallback.Name)
	validateProviderName("llm", cfg.Providers.LLMFallback.Name)

	if cfg.Providers.EmbeddingsFallback.Name != "" && cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, fmt.Errorf("providers.embeddings_fallback requires providers.embeddings"))
	}
	if cfg.Providers.LLMFallback.Name != "" && cfg.Providers.LLM.Name == "" {
		errs = append(errs, fmt.Errorf("providers.llm_fallback requires providers.llm"))
	}

	if cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, fmt.Errorf("providers.embeddings.name is required; semantic retrieval cannot run without an embedder"))
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; /rag will serve retrieval-only answers")
	}

	q := &cfg.Query
	for name, v := range map[string]float64{
		"query.thresholds.person_project": q.Thresholds.PersonProject,
		"query.thresholds.general":        q.Thresholds.General,
		"query.thresholds.mixed":          q.Thresholds.Mixed,
		"query.thresholds.similar":        q.Thresholds.Similar,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", name, v))
		}
	}
	if q.UrgencyHorizonDays < 0 {
		errs = append(errs, fmt.Errorf("query.urgency_horizon_days must not be negative, got %d", q.UrgencyHorizonDays))
	}
	if q.ChunkFetchMultiplier < 1 {
		errs = append(errs, fmt.Errorf("query.chunk_fetch_multiplier must be at least 1, got %d", q.ChunkFetchMultiplier))
	}
	if q.Boosts.Base <= 0 || q.Boosts.EntityInChunk <= 0 || q.Boosts.ExactInTargetField <= 0 {
		errs = append(errs, fmt.Errorf("query.boosts values must be positive"))
	}
	if q.Boosts.ExactInTargetField < q.Boosts.EntityInChunk || q.Boosts.EntityInChunk < q.Boosts.Base {
		slog.Warn("boost ordering is unusual; expected exact_in_target_field >= entity_in_chunk >= base",
			"exact_in_target_field", q.Boosts.ExactInTargetField,
			"entity_in_chunk", q.Boosts.EntityInChunk,
			"base", q.Boosts.Base,
		)
	}

	g := &cfg.Generation
	if g.Decoding != "" && !g.Decoding.IsValid() {
		errs = append(errs, fmt.Errorf("generation.decoding %q is invalid; valid values: greedy, sampling, auto", g.Decoding))
	}
	if g.MaxNewTokensCPU <= 0 || g.MaxNewTokensAccel <= 0 {
		errs = append(errs, fmt.Errorf("generation token limits must be positive"))
	}
	if g.Temperature < 0 {
		errs = append(errs, fmt.Errorf("generation.temperature must not be negative, got %.2f", g.Temperature))
	}
	if g.QueueDepth < 1 {
		errs = append(errs, fmt.Errorf("generation.queue_depth must be at least 1, got %d", g.QueueDepth))
	}

	if cfg.Timeouts.TotalMS <= 0 || cfg.Timeouts.GenerateMS <= 0 {
		errs = append(errs, fmt.Errorf("timeouts must be positive"))
	}
	if cfg.Timeouts.GenerateMS > cfg.Timeouts.TotalMS {
		slog.Warn("generate timeout exceeds total timeout; generation will be cut by the total deadline",
			"generate_ms", cfg.Timeouts.GenerateMS,
			"total_ms", cfg.Timeouts.TotalMS,
		)
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
