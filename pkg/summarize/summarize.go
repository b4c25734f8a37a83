// Package summarize is the orchestrator: it chooses between flat and
// hierarchical summarization, drives the language-model calls with schema
// validation and repair, and falls back to the extractive digest on
// terminal failure. Hierarchical per-thread calls run in a worker pool;
// everything else is sequential.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inboxly/maildigest/pkg/config"
	"github.com/inboxly/maildigest/pkg/digest"
	"github.com/inboxly/maildigest/pkg/llm"
	"github.com/inboxly/maildigest/pkg/metrics"
	"github.com/inboxly/maildigest/pkg/models"
	"github.com/inboxly/maildigest/pkg/prompt"
	"github.com/inboxly/maildigest/pkg/rank"
)

// Mode is the executed summarization strategy.
type Mode string

// Summarization modes.
const (
	ModeFlat         Mode = "flat"
	ModeHierarchical Mode = "hierarchical"
	ModeExtractive   Mode = "extractive"
)

// TriggerReason records why a mode was chosen.
type TriggerReason string

// Trigger reasons.
const (
	TriggerAutoThreads  TriggerReason = "auto_threads"
	TriggerAutoMessages TriggerReason = "auto_messages"
	TriggerManual       TriggerReason = "manual"
	TriggerDisabled     TriggerReason = "disabled"
)

// Degrade reasons set on the outcome.
const (
	ReasonLLMSchema       = "llm_schema"
	ReasonLLMTimeout      = "llm_timeout"
	ReasonLLMTransport    = "llm_transport"
	ReasonBudgetExhausted = "budget_exhausted"
	ReasonDisabled        = "summarization_disabled"
)

// Input is everything one summarization run consumes. All of it is
// immutable during the run.
type Input struct {
	DigestDate string
	Timezone   string

	Corpus  *models.Corpus
	Threads []models.Thread

	// Chunks is every evidence chunk of the run; Selected is the
	// budget-constrained subset for flat mode; Ranked is the full ranked
	// list for the extractive fallback.
	Chunks   []models.Chunk
	Selected []rank.Scored
	Ranked   []rank.Scored

	Actions []models.ExtractedAction

	// ForceHierarchical selects hierarchical mode regardless of thresholds.
	ForceHierarchical bool
}

// Outcome is the orchestrator result. Sections are validated but not yet
// cited; citation attachment happens in the pipeline.
type Outcome struct {
	Sections models.Sections
	Trailing string

	Mode          Mode
	TriggerReason TriggerReason

	// Partial is set when any degrade path fired; DegradeReason names the
	// strongest reason.
	Partial       bool
	DegradeReason string
}

// Orchestrator drives summarization. Construct with New; safe for one run
// at a time.
type Orchestrator struct {
	cfg     config.SummarizeConfig
	client  llm.Client
	builder *prompt.Builder
	aliases []string
	reg     *metrics.Registry

	userEmail string
	llmCfg    config.LLMConfig
}

// New creates an Orchestrator. Panics on nil client or builder: both are
// mandatory collaborators, not options.
func New(cfg config.SummarizeConfig, llmCfg config.LLMConfig, client llm.Client, builder *prompt.Builder, userEmail string, aliases []string, reg *metrics.Registry) *Orchestrator {
	if client == nil {
		panic("summarize: nil llm client")
	}
	if builder == nil {
		panic("summarize: nil prompt builder")
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Orchestrator{
		cfg:       cfg,
		client:    client,
		builder:   builder,
		aliases:   aliases,
		reg:       reg,
		userEmail: userEmail,
		llmCfg:    llmCfg,
	}
}

// Run executes the chosen mode and returns validated sections. Terminal
// failures never surface as errors: the extractive fallback always yields
// an outcome.
func (o *Orchestrator) Run(ctx context.Context, in Input) Outcome {
	mode, reason := o.selectMode(in)

	switch mode {
	case ModeExtractive:
		return o.extractive(in, reason, ReasonDisabled)
	case ModeHierarchical:
		o.reg.Inc(metrics.HierarchicalRunsTotal, metrics.Labels{"trigger_reason": string(reason)})
		return o.hierarchical(ctx, in, reason)
	default:
		return o.flat(ctx, in, reason)
	}
}

// selectMode applies the auto thresholds: hierarchical at 60 threads or
// 300 messages, flat below, extractive when summarization is off.
func (o *Orchestrator) selectMode(in Input) (Mode, TriggerReason) {
	if !o.cfg.Enabled() {
		return ModeExtractive, TriggerDisabled
	}
	if in.ForceHierarchical {
		return ModeHierarchical, TriggerManual
	}
	if o.cfg.AutoEnabled() {
		if len(in.Threads) >= o.cfg.AutoThreadsThreshold {
			return ModeHierarchical, TriggerAutoThreads
		}
		if in.Corpus.Len() >= o.cfg.AutoMessagesThreshold {
			return ModeHierarchical, TriggerAutoMessages
		}
	}
	return ModeFlat, TriggerManual
}

// flat performs the single-call mode over the selected evidence.
func (o *Orchestrator) flat(ctx context.Context, in Input, reason TriggerReason) Outcome {
	contexts := make([]prompt.ChunkContext, 0, len(in.Selected))
	for _, sc := range in.Selected {
		contexts = append(contexts, o.chunkContext(in, sc.Chunk))
	}
	p := o.builder.Flat(in.DigestDate, in.Timezone, contexts)

	sections, trailing, err := o.callValidated(ctx, p, o.cfg.FlatTimeout)
	if err != nil {
		return o.extractive(in, reason, degradeReason(err))
	}
	return Outcome{
		Sections:      sections,
		Trailing:      trailing,
		Mode:          ModeFlat,
		TriggerReason: reason,
	}
}

// callValidated runs one completion, parses and schema-validates it, and
// retries once with a repair instruction on schema failure. The error is
// terminal: the caller degrades.
func (o *Orchestrator) callValidated(ctx context.Context, promptText string, timeout time.Duration) (models.Sections, string, error) {
	resp, err := o.client.Complete(ctx, llmRequest(o.llmCfg, promptText, timeout))
	if err != nil {
		return models.Sections{}, "", err
	}

	sections, trailing, err := parseSections(resp.Text)
	if err == nil {
		return sections, trailing, nil
	}
	o.reg.Inc(metrics.LLMJSONErrorsTotal, nil)
	slog.Warn("digest response failed validation, retrying with repair", "error", err)

	repair := o.builder.Repair(promptText, resp.Text, err)
	resp, rerr := o.client.Complete(ctx, llmRequest(o.llmCfg, repair, timeout))
	if rerr != nil {
		return models.Sections{}, "", rerr
	}
	sections, trailing, err = parseSections(resp.Text)
	if err != nil {
		o.reg.Inc(metrics.LLMJSONErrorsTotal, nil)
		return models.Sections{}, "", fmt.Errorf("after repair retry: %w", err)
	}
	return sections, trailing, nil
}

func llmRequest(cfg config.LLMConfig, promptText string, timeout time.Duration) llm.Request {
	return llm.Request{
		Prompt:      promptText,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     timeout,
	}
}

func parseSections(text string) (models.Sections, string, error) {
	sections, trailing, err := digest.ExtractSections(text)
	if err != nil {
		return models.Sections{}, "", err
	}
	if err := digest.ValidateSections(&sections); err != nil {
		return models.Sections{}, "", err
	}
	return sections, trailing, nil
}

// extractive is the terminal fallback: rule items and top chunks only.
func (o *Orchestrator) extractive(in Input, reason TriggerReason, degrade string) Outcome {
	o.reg.Inc(metrics.DegradeActivatedTotal, metrics.Labels{"reason": degrade})
	return Outcome{
		Sections:      digest.BuildFallback(in.Actions, in.Ranked, o.userEmail),
		Mode:          ModeExtractive,
		TriggerReason: reason,
		Partial:       degrade != ReasonDisabled,
		DegradeReason: degrade,
	}
}

func (o *Orchestrator) chunkContext(in Input, ch models.Chunk) prompt.ChunkContext {
	msg := in.Corpus.Get(ch.MessageID)
	cc := prompt.ChunkContext{Chunk: ch, Msg: msg}
	if msg != nil {
		cc.AddressedToMe = msg.Addressed(o.aliases)
	}
	return cc
}

// degradeReason maps a terminal error onto the envelope reason.
func degradeReason(err error) string {
	switch {
	case errors.Is(err, llm.ErrBudgetExhausted):
		return ReasonBudgetExhausted
	case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonLLMTimeout
	case errors.Is(err, llm.ErrTransport):
		return ReasonLLMTransport
	default:
		return ReasonLLMSchema
	}
}
