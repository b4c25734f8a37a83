package llm

import (
	"context"
	"time"

	"github.com/inboxly/maildigest/pkg/metrics"
)

// Metered wraps a Client with budget enforcement and usage metrics. The
// budget is checked before each call; a completed call is charged after.
type Metered struct {
	inner  Client
	budget *Budget
	reg    *metrics.Registry
}

// NewMetered wraps inner. budget and reg may be nil.
func NewMetered(inner Client, budget *Budget, reg *metrics.Registry) *Metered {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Metered{inner: inner, budget: budget, reg: reg}
}

// Complete enforces the budget, delegates, and records latency and token
// counters.
func (m *Metered) Complete(ctx context.Context, req Request) (Response, error) {
	if m.budget != nil {
		if err := m.budget.Check(); err != nil {
			return Response{}, err
		}
	}

	start := time.Now()
	resp, err := m.inner.Complete(ctx, req)
	m.reg.Observe(metrics.LLMLatencyMS, nil, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return Response{}, err
	}

	m.reg.Add(metrics.LLMTokensInTotal, nil, float64(resp.TokensIn))
	m.reg.Add(metrics.LLMTokensOutTotal, nil, float64(resp.TokensOut))
	if m.budget != nil {
		m.budget.Charge(resp.TokensIn, resp.TokensOut)
	}
	return resp, nil
}

var _ Client = (*Metered)(nil)
