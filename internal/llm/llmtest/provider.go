// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/ppiankov/caseextract/internal/llm"
)

// Provider replies per filename. Unknown filenames get Reply.
type Provider struct {
	Replies     map[string]string
	Errors      map[string]error
	Reply       string
	Unavailable bool

	mu    sync.Mutex
	calls []llm.GenerateRequest
}

// Name returns "fake"
func (p *Provider) Name() string { return "fake" }

// IsAvailable reports the scripted availability
func (p *Provider) IsAvailable(ctx context.Context) bool { return !p.Unavailable }

// Generate records req and returns the scripted reply or error
func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := p.Errors[req.Filename]; ok {
		return nil, err
	}
	text, ok := p.Replies[req.Filename]
	if !ok {
		text = p.Reply
	}
	return &llm.GenerateResponse{Text: text, Model: "fake-model", TokensUsed: len(text) / 4}, nil
}

// Calls returns the requests received so far
func (p *Provider) Calls() []llm.GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.GenerateRequest(nil), p.calls...)
}
