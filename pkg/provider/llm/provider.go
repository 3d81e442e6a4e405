// Package llm defines the Provider interface for answer-generating language
// model backends.
//
// reqrag sends a single system prompt plus a single user prompt per call and
// expects one Hebrew answer back. Multi-turn chat, streaming, and tool
// calling are outside the gateway's contract.
package llm

import "context"

// CompletionRequest is one generation call.
type CompletionRequest struct {
	// SystemPrompt sets the model role and answer rules.
	SystemPrompt string

	// UserPrompt carries the formatted retrieval context, the instruction
	// block, and the user question.
	UserPrompt string

	// MaxTokens caps the generated answer length. Zero means backend default.
	MaxTokens int

	// Temperature controls sampling. Zero selects greedy decoding.
	Temperature float64

	// TopP is the nucleus-sampling cutoff. Ignored when Temperature is zero.
	TopP float64
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the result of one generation call.
type CompletionResponse struct {
	// Content is the generated answer text.
	Content string

	// Usage is zero-valued when the backend does not report it.
	Usage Usage
}

// Provider is the abstraction over any completion backend.
//
// Implementations must be safe for concurrent use; serialising calls is the
// caller's concern, not the provider's.
type Provider interface {
	// Complete runs one generation call and returns the full answer.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// ModelID returns the backend model identifier for logging and the
	// health report.
	ModelID() string
}
