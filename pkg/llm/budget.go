package llm

import (
	"fmt"
	"sync"
)

// Budget tracks per-run token and cost spend. Checked before every call;
// safe for concurrent use from the worker pool.
type Budget struct {
	mu sync.Mutex

	maxTokens  int
	maxCostUSD float64
	costPer1K  float64

	usedTokens int
}

// NewBudget creates a Budget. A zero maxTokens or maxCostUSD disables the
// corresponding limit.
func NewBudget(maxTokens int, maxCostUSD, costPer1K float64) *Budget {
	return &Budget{maxTokens: maxTokens, maxCostUSD: maxCostUSD, costPer1K: costPer1K}
}

// Charge records usage from a completed call.
func (b *Budget) Charge(tokensIn, tokensOut int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usedTokens += tokensIn + tokensOut
}

// Check returns ErrBudgetExhausted when either limit is already exceeded.
func (b *Budget) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxTokens > 0 && b.usedTokens >= b.maxTokens {
		return fmt.Errorf("%w: %d tokens used of %d", ErrBudgetExhausted, b.usedTokens, b.maxTokens)
	}
	if b.maxCostUSD > 0 && b.costUSD() >= b.maxCostUSD {
		return fmt.Errorf("%w: $%.4f spent of $%.4f", ErrBudgetExhausted, b.costUSD(), b.maxCostUSD)
	}
	return nil
}

// UsedTokens returns the total tokens charged so far.
func (b *Budget) UsedTokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usedTokens
}

func (b *Budget) costUSD() float64 {
	return float64(b.usedTokens) / 1000 * b.costPer1K
}
