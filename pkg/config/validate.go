package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation sentinels.
var (
	ErrNoUser      = errors.New("user.email is required")
	ErrBadTimezone = errors.New("mailbox.timezone is not a valid IANA name")
)

// validate checks cross-field invariants and resolves the mailbox timezone.
func (c *Config) validate() error {
	if c.User.Email == "" {
		return ErrNoUser
	}

	loc, err := time.LoadLocation(c.Mailbox.Timezone)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrBadTimezone, c.Mailbox.Timezone, err)
	}
	c.loc = loc

	if c.Rank.TokenBudget <= 0 {
		return fmt.Errorf("rank.token_budget must be positive, got %d", c.Rank.TokenBudget)
	}
	if s := c.Rank.Weights.Sum(); s <= 0 {
		return fmt.Errorf("rank.weights must not all be zero")
	}

	if c.Summarize.PerThreadMaxChunksException < c.Summarize.PerThreadMaxChunks {
		return fmt.Errorf("summarize.per_thread_max_chunks_exception (%d) must be >= per_thread_max_chunks (%d)",
			c.Summarize.PerThreadMaxChunksException, c.Summarize.PerThreadMaxChunks)
	}
	if c.Summarize.ParallelPool <= 0 {
		return fmt.Errorf("summarize.parallel_pool must be positive, got %d", c.Summarize.ParallelPool)
	}

	if c.Extract.ConfidenceThreshold < 0 || c.Extract.ConfidenceThreshold > 1 {
		return fmt.Errorf("extract.confidence_threshold must be within [0,1], got %g", c.Extract.ConfidenceThreshold)
	}

	if c.Normalize.MaxQuoteRemovalLength <= 0 {
		return fmt.Errorf("normalize.max_quote_removal_length must be positive, got %d", c.Normalize.MaxQuoteRemovalLength)
	}

	if c.Output.RebuildWindow < 0 {
		return fmt.Errorf("output.rebuild_window must not be negative")
	}

	return nil
}
