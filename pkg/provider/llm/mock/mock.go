// Package mock provides a scriptable llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/reqrag/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider is a mock LLM provider that records calls and returns scripted
// responses.
type Provider struct {
	mu sync.Mutex

	// CompleteFunc, if set, handles Complete calls. Otherwise Response and
	// Err are returned.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Response is returned by Complete when CompleteFunc is nil.
	Response *llm.CompletionResponse

	// Err is returned by Complete when CompleteFunc is nil and Err is set.
	Err error

	// CompleteCalls records every request passed to Complete, in order.
	CompleteCalls []llm.CompletionRequest
}

// New creates a mock provider answering every call with the given content.
func New(content string) *Provider {
	return &Provider{Response: &llm.CompletionResponse{Content: content}}
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, req)
	fn := p.CompleteFunc
	resp, err := p.Response, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &llm.CompletionResponse{}, nil
	}
	out := *resp
	return &out, nil
}

// ModelID implements llm.Provider.
func (p *Provider) ModelID() string {
	return "mock-llm"
}

// Calls returns a copy of the recorded Complete requests.
func (p *Provider) Calls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}
