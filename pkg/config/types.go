// Package config loads, merges, and validates maildigest configuration.
//
// Configuration comes from maildigest.yaml in the config directory, with
// environment variables expanded via Go template syntax ({{.VAR}}), merged
// over built-in defaults, and validated before use. Configuration is loaded
// once at startup and passed explicitly down the call graph.
package config

import (
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	User      UserConfig      `yaml:"user"`
	Mailbox   MailboxConfig   `yaml:"mailbox"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Extract   ExtractConfig   `yaml:"extract"`
	Rank      RankConfig      `yaml:"rank"`
	Summarize SummarizeConfig `yaml:"summarize"`
	LLM       LLMConfig       `yaml:"llm"`
	Output    OutputConfig    `yaml:"output"`
	Server    ServerConfig    `yaml:"server"`
	Retention RetentionConfig `yaml:"retention"`
	Storage   StorageConfig   `yaml:"storage"`

	// loc is the resolved mailbox timezone, set during validation.
	loc *time.Location
}

// Location returns the resolved mailbox timezone. Valid after Initialize.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// UserConfig identifies the digest user.
type UserConfig struct {
	// Email is the user's primary address.
	Email string `yaml:"email"`

	// Name is the user's display name, used for alias matching.
	Name string `yaml:"name"`

	// Aliases are additional addresses and short names that count as
	// mentions of the user.
	Aliases []string `yaml:"aliases"`
}

// AllAliases returns email, name, and aliases as one matching set.
func (u *UserConfig) AllAliases() []string {
	out := make([]string, 0, len(u.Aliases)+2)
	if u.Email != "" {
		out = append(out, u.Email)
	}
	if u.Name != "" {
		out = append(out, u.Name)
	}
	return append(out, u.Aliases...)
}

// MailboxConfig controls the fetch window and timezone policy.
type MailboxConfig struct {
	// Timezone is the IANA name of the mailbox timezone.
	Timezone string `yaml:"timezone"`

	// Folders to fetch; defaults to the inbox.
	Folders []string `yaml:"folders"`

	// LookbackHours bounds the fetch window when the watermark is missing
	// or corrupt.
	LookbackHours int `yaml:"lookback_hours"`

	// FailOnNaive makes a timezone-naive received-at fatal instead of
	// assuming the mailbox timezone.
	FailOnNaive bool `yaml:"fail_on_naive"`

	// Endpoint and CredentialsEnv configure the production driver. Empty
	// endpoint selects the fixture driver (tests, dry runs).
	Endpoint       string `yaml:"endpoint"`
	CredentialsEnv string `yaml:"credentials_env"`

	// PageSize for driver pagination.
	PageSize int `yaml:"page_size"`
}

// NormalizeConfig controls body cleanup.
type NormalizeConfig struct {
	// KeepTopQuoteHead retains the head of the most recent quote when the
	// reply itself is very short. Pointer so an explicit false in YAML
	// survives the merge with the true default.
	KeepTopQuoteHead *bool `yaml:"keep_top_quote_head"`

	// MaxQuoteRemovalLength is the safety cap on quote stripping, in bytes:
	// when the quote stage would remove more than this, the uncut body is
	// used instead.
	MaxQuoteRemovalLength int `yaml:"max_quote_removal_length"`

	// TableMaxColumnWidth and TableMaxRows cap flattened HTML tables.
	TableMaxColumnWidth int `yaml:"table_max_column_width"`
	TableMaxRows        int `yaml:"table_max_rows"`
}

// KeepQuoteHead resolves KeepTopQuoteHead; unset means true.
func (n NormalizeConfig) KeepQuoteHead() bool {
	return n.KeepTopQuoteHead == nil || *n.KeepTopQuoteHead
}

// ExtractConfig controls the rule-based extractor.
type ExtractConfig struct {
	// ConfidenceThreshold is the minimum logistic score for emitting a
	// candidate.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// RankConfig controls selection under the token budget.
type RankConfig struct {
	// TokenBudget is the total token budget handed to the summarizer.
	TokenBudget int `yaml:"token_budget"`

	// Weights for the ranking features. Normalized to sum to 1 at load.
	Weights RankWeights `yaml:"weights"`
}

// RankWeights are the ranking feature weights (see defaults).
type RankWeights struct {
	UserInTo         float64 `yaml:"user_in_to"`
	UserInCc         float64 `yaml:"user_in_cc"`
	HasActionMarker  float64 `yaml:"has_action_marker"`
	HasMention       float64 `yaml:"has_mention"`
	HasDueDate       float64 `yaml:"has_due_date"`
	SenderImportance float64 `yaml:"sender_importance"`
	ThreadLength     float64 `yaml:"thread_length"`
	Recency          float64 `yaml:"recency"`
	HasAttachments   float64 `yaml:"has_attachments"`
	HasProjectTag    float64 `yaml:"has_project_tag"`
}

// Sum returns the raw weight total (used for normalization).
func (w *RankWeights) Sum() float64 {
	return w.UserInTo + w.UserInCc + w.HasActionMarker + w.HasMention +
		w.HasDueDate + w.SenderImportance + w.ThreadLength + w.Recency +
		w.HasAttachments + w.HasProjectTag
}

// SummarizeConfig controls the orchestrator.
type SummarizeConfig struct {
	// Enable turns summarization on at all; AutoEnable allows the automatic
	// switch to hierarchical mode. Pointers so an explicit false in YAML
	// survives the merge with the true defaults.
	Enable     *bool `yaml:"enable"`
	AutoEnable *bool `yaml:"auto_enable"`

	// Hierarchical mode activates at either threshold.
	AutoThreadsThreshold  int `yaml:"auto_threads_threshold"`
	AutoMessagesThreshold int `yaml:"auto_messages_threshold"`

	// PerThreadMaxChunks is the regular per-thread selection cap;
	// PerThreadMaxChunksException is the hard cap when must-include chunks
	// exceed the regular one.
	PerThreadMaxChunks          int `yaml:"per_thread_max_chunks"`
	PerThreadMaxChunksException int `yaml:"per_thread_max_chunks_exception"`

	// ParallelPool is the per-thread summarization worker count.
	ParallelPool int `yaml:"parallel_pool"`

	// PerThreadTimeout applies to each per-thread call; FlatTimeout to the
	// flat and final-aggregation calls.
	PerThreadTimeout time.Duration `yaml:"per_thread_timeout"`
	FlatTimeout      time.Duration `yaml:"flat_timeout"`

	// FinalInputTokenCap bounds the final-aggregation input.
	FinalInputTokenCap int `yaml:"final_input_token_cap"`

	// SmallThreadChunks: threads with fewer chunks bypass per-thread
	// summarization and flow straight into the final input.
	SmallThreadChunks int `yaml:"small_thread_chunks"`
}

// Enabled resolves Enable; unset means true.
func (s SummarizeConfig) Enabled() bool {
	return s.Enable == nil || *s.Enable
}

// AutoEnabled resolves AutoEnable; unset means true.
func (s SummarizeConfig) AutoEnabled() bool {
	return s.AutoEnable == nil || *s.AutoEnable
}

// LLMConfig configures the language-model service client.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Per-run budgets. Zero disables the corresponding check.
	MaxRunTokens  int     `yaml:"max_run_tokens"`
	MaxRunCostUSD float64 `yaml:"max_run_cost_usd"`

	// CostPer1KTokensUSD prices budget accounting.
	CostPer1KTokensUSD float64 `yaml:"cost_per_1k_tokens_usd"`
}

// OutputConfig controls persistence.
type OutputConfig struct {
	Dir string `yaml:"dir"`

	// RebuildWindow is the period within which a rerun reuses the existing
	// output.
	RebuildWindow time.Duration `yaml:"rebuild_window"`

	PromptVersion string `yaml:"prompt_version"`
}

// ServerConfig controls the health/metrics HTTP listener.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// RetentionConfig controls output and watermark rotation.
type RetentionConfig struct {
	OutputDays    int `yaml:"output_days"`
	WatermarkDays int `yaml:"watermark_days"`

	// SweepInterval is how often the background sweeper runs when the
	// server is enabled.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// StorageConfig configures the optional run-history database.
type StorageConfig struct {
	// DatabaseURL enables Postgres run history when non-empty.
	DatabaseURL string `yaml:"database_url"`

	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}
