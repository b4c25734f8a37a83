package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxly/maildigest/pkg/metrics"
)

func TestBudget_TokenLimit(t *testing.T) {
	b := NewBudget(1000, 0, 0.002)

	require.NoError(t, b.Check())
	b.Charge(600, 300)
	require.NoError(t, b.Check())
	b.Charge(80, 40)
	assert.ErrorIs(t, b.Check(), ErrBudgetExhausted)
	assert.Equal(t, 1020, b.UsedTokens())
}

func TestBudget_CostLimit(t *testing.T) {
	b := NewBudget(0, 0.01, 0.002)
	b.Charge(4000, 1500)
	assert.ErrorIs(t, b.Check(), ErrBudgetExhausted)
}

func TestBudget_Unlimited(t *testing.T) {
	b := NewBudget(0, 0, 0.002)
	b.Charge(1_000_000, 0)
	assert.NoError(t, b.Check())
}

func TestMetered_ChargesAndCounts(t *testing.T) {
	fake := &FakeClient{Responses: []Response{{Text: "ok", TokensIn: 100, TokensOut: 50}}}
	budget := NewBudget(120, 0, 0)
	reg := metrics.NewRegistry()
	m := NewMetered(fake, budget, reg)

	resp, err := m.Complete(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, float64(100), reg.CounterValue(metrics.LLMTokensInTotal, nil))
	assert.Equal(t, float64(50), reg.CounterValue(metrics.LLMTokensOutTotal, nil))

	// Second call finds the budget exhausted before calling through.
	_, err = m.Complete(context.Background(), Request{Prompt: "p2"})
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, 1, fake.Calls())
}
