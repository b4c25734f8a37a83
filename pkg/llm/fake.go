package llm

import (
	"context"
	"sync"
)

// FakeClient replays scripted responses in call order; used by orchestrator
// and pipeline tests. Safe for concurrent use.
type FakeClient struct {
	mu sync.Mutex

	// Responses are consumed in order; after exhaustion the last one
	// repeats. Errors at the same index take precedence.
	Responses []Response
	Errors    []error

	// Prompts records every prompt received.
	Prompts []string

	calls int
}

// Complete returns the next scripted response or error.
func (f *FakeClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	f.Prompts = append(f.Prompts, req.Prompt)

	if idx < len(f.Errors) && f.Errors[idx] != nil {
		return Response{}, f.Errors[idx]
	}
	if len(f.Responses) == 0 {
		return Response{}, nil
	}
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	}
	return f.Responses[idx], nil
}

// Calls returns how many completions were requested.
func (f *FakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var _ Client = (*FakeClient)(nil)
