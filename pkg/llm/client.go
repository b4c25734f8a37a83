// Package llm is the language-model service boundary: a minimal completion
// contract, the OpenAI-compatible implementation, per-run budget tracking,
// and a metering wrapper. Responses are raw text; parsing is the caller's
// job.
package llm

import (
	"context"
	"errors"
	"time"
)

// Failure kinds. Timeouts and transport errors trigger per-call degrade in
// hierarchical mode and whole-run degrade in flat mode.
var (
	ErrTimeout         = errors.New("llm call timed out")
	ErrTransport       = errors.New("llm transport failure")
	ErrBudgetExhausted = errors.New("llm run budget exhausted")
)

// Request is one completion call.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64

	// Timeout bounds this call only; zero means no per-call deadline.
	Timeout time.Duration
}

// Response is the raw completion result with usage accounting.
type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Client is the completion contract.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
