// Package config provides the configuration schema, loader, and provider
// registry for the reqrag query service.
package config

import "github.com/MrWong99/reqrag/pkg/store"

// LogLevel controls log verbosity for the reqrag server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Decoding selects the generation decoding strategy.
type Decoding string

const (
	// DecodingGreedy picks the most likely token at every step. Used on CPU
	// where short deterministic answers keep latency bounded.
	DecodingGreedy Decoding = "greedy"

	// DecodingSampling draws from the temperature-scaled distribution. Used
	// when an accelerator makes longer answers affordable.
	DecodingSampling Decoding = "sampling"

	// DecodingAuto picks greedy on CPU and sampling on an accelerator.
	DecodingAuto Decoding = "auto"
)

// IsValid reports whether d is a recognised decoding strategy.
func (d Decoding) IsValid() bool {
	switch d {
	case DecodingGreedy, DecodingSampling, DecodingAuto:
		return true
	}
	return false
}

// Config is the root configuration structure for reqrag.
// It is typically loaded from a JSON or YAML file using [Load] or
// [LoadFromReader] and is immutable after startup.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Providers  ProvidersConfig  `json:"providers" yaml:"providers"`
	Query      QueryConfig      `json:"query" yaml:"query"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Timeouts   TimeoutsConfig   `json:"timeouts" yaml:"timeouts"`
}

// ServerConfig holds network and logging settings for the reqrag server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `json:"log_level" yaml:"log_level"`
}

// DatabaseConfig holds settings for the request corpus store. Connection
// credentials come from environment variables, not from the file.
type DatabaseConfig struct {
	// EmbeddingDimensions is the vector dimension of the embeddings column.
	// Must match the model configured in Providers.Embeddings.
	EmbeddingDimensions int `json:"embedding_dimensions" yaml:"embedding_dimensions"`

	// StartupRetries is how often to retry the initial connection before
	// giving up. Zero disables the retry loop.
	StartupRetries int `json:"startup_retries" yaml:"startup_retries"`

	// StartupRetryIntervalMS is the pause between startup retries.
	StartupRetryIntervalMS int `json:"startup_retry_interval_ms" yaml:"startup_retry_interval_ms"`
}

// ProvidersConfig declares which provider implementation to use for each
// model-backed concern. Each field selects a named provider registered in
// the [Registry].
type ProvidersConfig struct {
	Embeddings ProviderEntry `json:"embeddings" yaml:"embeddings"`
	LLM        ProviderEntry `json:"llm" yaml:"llm"`

	// EmbeddingsFallback and LLMFallback name optional secondary providers
	// tried when the primary fails or its circuit breaker is open. A fallback
	// embedder must produce vectors of the same dimensionality as the primary.
	EmbeddingsFallback ProviderEntry `json:"embeddings_fallback" yaml:"embeddings_fallback"`
	LLMFallback        ProviderEntry `json:"llm_fallback" yaml:"llm_fallback"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "ollama", "anthropic").
	Name string `json:"name" yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `json:"api_key" yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `json:"model" yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `json:"options" yaml:"options"`
}

// QueryConfig is the language-aware pattern set driving the rule-based
// parser, the retrieval thresholds, and the answer formatting labels. The
// defaults target Hebrew; every list is replaceable from the file.
type QueryConfig struct {
	// IntentTriggers maps an intent to the tokens that select it.
	IntentTriggers map[store.Intent][]string `json:"intent_triggers" yaml:"intent_triggers"`

	// UrgencyTriggers are tokens that set entities.urgency.
	UrgencyTriggers []string `json:"urgency_triggers" yaml:"urgency_triggers"`

	// ProjectsEntityTriggers are tokens meaning the user asks about
	// projects, not requests.
	ProjectsEntityTriggers []string `json:"projects_entity_triggers" yaml:"projects_entity_triggers"`

	// AnswerRetrievalTriggers are tokens that ask for the answer recorded on
	// a specific request.
	AnswerRetrievalTriggers []string `json:"answer_retrieval_triggers" yaml:"answer_retrieval_triggers"`

	// QueryTypeTriggers maps a query type to its synonym list.
	QueryTypeTriggers map[store.QueryType][]string `json:"query_type_triggers" yaml:"query_type_triggers"`

	// FieldLabelMap maps a Hebrew field keyword to the English chunk label.
	FieldLabelMap map[string]string `json:"field_label_map" yaml:"field_label_map"`

	// StopWordsForNameExtraction terminate a person/project name
	// mid-extraction.
	StopWordsForNameExtraction []string `json:"stop_words_for_name_extraction" yaml:"stop_words_for_name_extraction"`

	// PersonContextTokens gate intent=person: without one of these in the
	// raw query, Hebrew words alone never select the person intent.
	PersonContextTokens []string `json:"person_context_tokens" yaml:"person_context_tokens"`

	// FillerWords are tokens that must never appear inside an extracted
	// name (e.g. the Hebrew "לי" after "bring me").
	FillerWords []string `json:"filler_words" yaml:"filler_words"`

	// TargetFieldsByIntent maps an intent to the ordered chunk labels its
	// text entities are matched against.
	TargetFieldsByIntent map[store.Intent][]string `json:"target_fields_by_intent" yaml:"target_fields_by_intent"`

	// Thresholds are the similarity gates per query shape.
	Thresholds ThresholdsConfig `json:"thresholds" yaml:"thresholds"`

	// UrgencyHorizonDays is the deadline window for urgency=true, inclusive.
	UrgencyHorizonDays int `json:"urgency_horizon_days" yaml:"urgency_horizon_days"`

	// ChunkFetchMultiplier scales top_k when fetching chunk rows, so that
	// dedup by request still fills the page.
	ChunkFetchMultiplier int `json:"chunk_fetch_multiplier" yaml:"chunk_fetch_multiplier"`

	// Boosts are the rank multipliers for entity matches inside chunks.
	Boosts BoostsConfig `json:"boosts" yaml:"boosts"`

	// Labels are the answer-context strings emitted by the formatter.
	Labels LabelsConfig `json:"labels" yaml:"labels"`
}

// ThresholdsConfig holds the similarity gates per query shape.
type ThresholdsConfig struct {
	// PersonProject gates queries with a single text entity and no
	// structured predicates.
	PersonProject float64 `json:"person_project" yaml:"person_project"`

	// General gates free-text queries with no recognised entities.
	General float64 `json:"general" yaml:"general"`

	// Mixed gates queries combining structured and text predicates.
	Mixed float64 `json:"mixed" yaml:"mixed"`

	// Similar gates similar-by-id neighbour search.
	Similar float64 `json:"similar" yaml:"similar"`
}

// BoostsConfig holds the rank multipliers applied per returned request.
// Boosts do not stack; the highest applicable one wins.
type BoostsConfig struct {
	// ExactInTargetField applies when a chunk contains "<label>: <entity>"
	// for one of the query's target fields.
	ExactInTargetField float64 `json:"exact_in_target_field" yaml:"exact_in_target_field"`

	// EntityInChunk applies when a chunk contains the entity anywhere.
	EntityInChunk float64 `json:"entity_in_chunk" yaml:"entity_in_chunk"`

	// Base applies otherwise.
	Base float64 `json:"base" yaml:"base"`
}

// LabelsConfig holds the runtime answer-language strings used when
// formatting retrieval context and canned answers. Structure is fixed;
// the words are configurable.
type LabelsConfig struct {
	// Request prefixes each context line (e.g. "בקשה").
	Request string `json:"request" yaml:"request"`

	// TotalFound precedes the total count (e.g. "סהכ נמצאו").
	TotalFound string `json:"total_found" yaml:"total_found"`

	// Deadline precedes the days-remaining figure on urgent lines.
	Deadline string `json:"deadline" yaml:"deadline"`

	// Days follows the days-remaining figure.
	Days string `json:"days" yaml:"days"`

	// SourceRequest precedes the source block of a similar-by-id answer.
	SourceRequest string `json:"source_request" yaml:"source_request"`

	// SimilarTo precedes the list of neighbours of a similar-by-id answer.
	SimilarTo string `json:"similar_to" yaml:"similar_to"`

	// NotFoundAnswer is the canned answer when similar-by-id names an
	// unknown request.
	NotFoundAnswer string `json:"not_found_answer" yaml:"not_found_answer"`

	// NoResultsAnswer is the canned answer when retrieval returns nothing.
	NoResultsAnswer string `json:"no_results_answer" yaml:"no_results_answer"`

	// TimeoutAnswer is the graceful message returned when generation runs
	// out of time and only the retrieved set is delivered.
	TimeoutAnswer string `json:"timeout_answer" yaml:"timeout_answer"`

	// ProjectsCountHeader precedes the per-project tallies of a
	// projects-count answer.
	ProjectsCountHeader string `json:"projects_count_header" yaml:"projects_count_header"`

	// TotalProjects precedes the distinct-project total that opens a
	// projects-count answer.
	TotalProjects string `json:"total_projects" yaml:"total_projects"`
}

// GenerationConfig tunes the LLM gateway.
type GenerationConfig struct {
	// MaxNewTokensCPU caps answer length when the model runs on CPU.
	MaxNewTokensCPU int `json:"max_new_tokens_cpu" yaml:"max_new_tokens_cpu"`

	// MaxNewTokensAccel caps answer length when an accelerator is present.
	MaxNewTokensAccel int `json:"max_new_tokens_accel" yaml:"max_new_tokens_accel"`

	// Temperature is the sampling temperature. Ignored under greedy decoding.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// TopP is the nucleus-sampling cutoff. Ignored under greedy decoding.
	TopP float64 `json:"top_p" yaml:"top_p"`

	// Decoding selects the decoding strategy.
	Decoding Decoding `json:"decoding" yaml:"decoding"`

	// QueueDepth bounds how many generation calls may wait on the gateway.
	QueueDepth int `json:"queue_depth" yaml:"queue_depth"`
}

// TimeoutsConfig bounds request processing.
type TimeoutsConfig struct {
	// TotalMS is the whole-request deadline.
	TotalMS int `json:"total_ms" yaml:"total_ms"`

	// GenerateMS is the generation-only deadline inside /rag.
	GenerateMS int `json:"generate_ms" yaml:"generate_ms"`
}
