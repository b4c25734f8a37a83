// Package pipeline sequences one digest run: fetch, normalize, thread,
// chunk, extract, rank, summarize, cite, assemble, persist. Stages hand
// plain values to each other; the pipeline owns counters, the trace id,
// and the idempotency check.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inboxly/maildigest/pkg/cleaner"
	"github.com/inboxly/maildigest/pkg/config"
	"github.com/inboxly/maildigest/pkg/digest"
	"github.com/inboxly/maildigest/pkg/evidence"
	"github.com/inboxly/maildigest/pkg/extract"
	"github.com/inboxly/maildigest/pkg/llm"
	"github.com/inboxly/maildigest/pkg/mailbox"
	"github.com/inboxly/maildigest/pkg/metrics"
	"github.com/inboxly/maildigest/pkg/models"
	"github.com/inboxly/maildigest/pkg/normalize"
	"github.com/inboxly/maildigest/pkg/prompt"
	"github.com/inboxly/maildigest/pkg/rank"
	"github.com/inboxly/maildigest/pkg/store"
	"github.com/inboxly/maildigest/pkg/summarize"
	"github.com/inboxly/maildigest/pkg/threading"
)

// WindowMode selects how the fetch window is derived from the digest date.
type WindowMode string

// Window modes.
const (
	WindowCalendarDay WindowMode = "calendar_day"
	WindowRolling24h  WindowMode = "rolling_24h"
)

// Options are the per-run knobs, typically set from CLI flags.
type Options struct {
	// FromDate is the digest day, interpreted in the mailbox timezone.
	FromDate time.Time
	Window   WindowMode

	// DryRun stops after ranking: no model calls, no writes.
	DryRun bool

	// Force rebuilds even when a digest for the date exists within the
	// rebuild window.
	Force bool

	// ValidateCitations promotes citation failures to run warnings.
	ValidateCitations bool

	ForceHierarchical bool
}

// Result is the outcome of one run.
type Result struct {
	Digest models.Digest

	// Reused is true when the stored digest was returned without a rebuild.
	Reused bool
	DryRun bool

	// Warnings is the count of non-fatal findings; a warning run exits 2.
	Warnings         int
	CitationFailures int

	Stats RunStats
}

// RunStats are per-stage observations surfaced to logs and dry-run output.
type RunStats struct {
	Fetched       int
	Skipped       int
	Messages      int
	Threads       int
	Redundancy    float64
	Chunks        int
	Actions       int
	SelectedTotal int
	SelectedShare float64
}

// Pipeline wires the stages. Construct with New; one Run at a time.
type Pipeline struct {
	cfg     *config.Config
	fetcher mailbox.Fetcher
	client  llm.Client
	store   *store.Store
	history *store.RunHistory
	reg     *metrics.Registry
}

// New creates a Pipeline. history may be nil; fetcher, client, store, and
// reg are mandatory.
func New(cfg *config.Config, fetcher mailbox.Fetcher, client llm.Client, st *store.Store, history *store.RunHistory, reg *metrics.Registry) *Pipeline {
	if cfg == nil {
		panic("pipeline: nil config")
	}
	if fetcher == nil {
		panic("pipeline: nil fetcher")
	}
	if client == nil {
		panic("pipeline: nil llm client")
	}
	if st == nil {
		panic("pipeline: nil store")
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Pipeline{cfg: cfg, fetcher: fetcher, client: client, store: st, history: history, reg: reg}
}

// Run executes one digest run. Only mailbox auth failures and the naive
// timestamp policy produce errors; everything else degrades.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Result, error) {
	started := time.Now()
	loc := p.cfg.Location()
	digestDate := opts.FromDate.In(loc).Format("2006-01-02")
	traceID := uuid.NewString()
	log := slog.With("trace_id", traceID, "digest_date", digestDate)

	if data, ok := p.store.Existing(digestDate, started, opts.Force); ok && !opts.DryRun {
		log.Info("digest exists within rebuild window, reusing")
		var d models.Digest
		if err := unmarshalDigest(data, &d); err == nil {
			p.reg.Inc(metrics.RunsTotal, metrics.Labels{"status": "reused"})
			return Result{Digest: d, Reused: true}, nil
		}
		log.Warn("stored digest unreadable, rebuilding")
	}

	window := fetchWindow(opts, loc, started)
	log.Info("run started", "window_start", window.Start, "window_end", window.End, "dry_run", opts.DryRun)

	res, err := p.build(ctx, opts, window, digestDate, traceID, log)
	p.reg.Observe(metrics.DigestBuildSeconds, nil, time.Since(started).Seconds())
	if err != nil {
		p.reg.Inc(metrics.RunsTotal, metrics.Labels{"status": "error"})
		p.record(ctx, traceID, digestDate, "error", res, started)
		return res, err
	}

	status := "success"
	if res.Digest.Partial {
		status = "partial"
	}
	p.reg.Inc(metrics.RunsTotal, metrics.Labels{"status": status})
	if !opts.DryRun {
		p.record(ctx, traceID, digestDate, status, res, started)
	}
	log.Info("run finished", "status", status, "items", res.Digest.Sections.ItemCount(),
		"warnings", res.Warnings, "duration", time.Since(started))
	return res, nil
}

func (p *Pipeline) build(ctx context.Context, opts Options, window mailbox.Window, digestDate, traceID string, log *slog.Logger) (Result, error) {
	res := Result{DryRun: opts.DryRun}
	loc := p.cfg.Location()

	// Fetch.
	records, err := p.fetcher.Fetch(ctx, window, p.cfg.Mailbox.Folders)
	if err != nil {
		p.reg.Inc(metrics.MessagesFetchedTotal, metrics.Labels{"status": "error"})
		if errors.Is(err, mailbox.ErrAuth) {
			return res, fmt.Errorf("mailbox auth: %w", err)
		}
		return res, fmt.Errorf("fetch: %w", err)
	}
	p.reg.Add(metrics.MessagesFetchedTotal, metrics.Labels{"status": "ok"}, float64(len(records)))
	res.Stats.Fetched = len(records)

	// Normalize.
	normalizer := normalize.New(normalize.Config{
		Location:    loc,
		FailOnNaive: p.cfg.Mailbox.FailOnNaive,
		HTML: normalize.HTMLOptions{
			TableMaxColumnWidth: p.cfg.Normalize.TableMaxColumnWidth,
			TableMaxRows:        p.cfg.Normalize.TableMaxRows,
		},
		Cleaner: cleanerConfig(p.cfg),
	}, p.reg)

	var messages []models.Message
	for _, rec := range records {
		msg, skip, err := normalizer.Normalize(rec)
		if err != nil {
			return res, fmt.Errorf("normalize %s: %w", rec.ItemID, err)
		}
		if skip != "" {
			p.reg.Inc(metrics.IngestSkippedTotal, metrics.Labels{"reason": string(skip)})
			res.Stats.Skipped++
			continue
		}
		messages = append(messages, msg)
	}
	res.Stats.Messages = len(messages)

	// Threads.
	threads, tstats := threading.Build(messages)
	for method, n := range tstats.MergesByMethod {
		p.reg.Add(metrics.ThreadsMergedTotal, metrics.Labels{"method": string(method)}, float64(n))
	}
	p.reg.SetGauge(metrics.RedundancyIndex, nil, tstats.RedundancyIndex())
	res.Stats.Threads = len(threads)
	res.Stats.Redundancy = tstats.RedundancyIndex()

	corpus := models.NewCorpus(messages)
	threadByID := make(map[string]*models.Thread, len(threads))
	for i := range threads {
		threadByID[threads[i].ThreadID] = &threads[i]
	}

	// Chunks.
	aliases := p.cfg.User.AllAliases()
	chunker := evidence.NewChunker(aliases)
	byMessage := make(map[string][]models.Chunk)
	for i := range threads {
		for _, msgID := range threads[i].MessageIDs {
			msg := corpus.Get(msgID)
			if msg == nil {
				continue
			}
			byMessage[msgID] = chunker.Split(msg, threads[i].ThreadID)
		}
	}
	evidence.MarkLastUpdates(threads, byMessage)
	var chunks []models.Chunk
	for i := range threads {
		for _, msgID := range threads[i].MessageIDs {
			chunks = append(chunks, byMessage[msgID]...)
		}
	}
	p.reg.Add(metrics.ChunksProducedTotal, nil, float64(len(chunks)))
	res.Stats.Chunks = len(chunks)

	// Rule extraction.
	extractor := extract.New(p.cfg.User.Email, aliases, p.cfg.Extract.ConfidenceThreshold, loc)
	now := time.Now().In(loc)
	var actions []models.ExtractedAction
	withActions := make(map[string]bool)
	for _, ch := range chunks {
		for _, a := range extractor.Extract(ch, corpus.Get(ch.MessageID), now) {
			p.reg.Inc(metrics.ActionsFoundTotal, metrics.Labels{"kind": string(a.Kind)})
			if a.Kind == models.KindMention {
				p.reg.Inc(metrics.MentionsFoundTotal, nil)
			}
			p.reg.Observe(metrics.ActionsConfidenceHistogram, nil, a.Confidence)
			withActions[a.MessageID] = true
			actions = append(actions, a)
		}
	}
	res.Stats.Actions = len(actions)

	// Rank and select.
	ranker := rank.New(p.cfg.Rank.Weights, aliases)
	selected, rstats := ranker.Select(chunks, corpus, threadByID, now, p.cfg.Rank.TokenBudget)
	for _, sc := range selected {
		p.reg.Observe(metrics.RankScoreHistogram, nil, sc.Score)
	}
	p.reg.SetGauge(metrics.Top10ActionsShare, nil, rstats.Top10ActionableShare)
	res.Stats.SelectedTotal = len(selected)
	res.Stats.SelectedShare = rstats.Top10ActionableShare

	if opts.DryRun {
		// A dry run surfaces skipped records as warnings so the exit code
		// reflects what a real run would quietly absorb.
		res.Warnings += res.Stats.Skipped
		log.Info("dry run complete",
			"fetched", res.Stats.Fetched, "messages", res.Stats.Messages,
			"threads", res.Stats.Threads, "chunks", res.Stats.Chunks,
			"actions", res.Stats.Actions, "selected", res.Stats.SelectedTotal,
			"warnings", res.Warnings)
		return res, nil
	}

	// An empty day produces the fixed empty envelope without a model call.
	var outcome summarize.Outcome
	if len(selected) > 0 || len(actions) > 0 {
		outcome = p.summarizeRun(ctx, opts, digestDate, corpus, threads, chunks, selected, actions)
	}

	// Cite and label.
	citer := digest.NewCiter(corpus, chunks, p.reg)
	res.CitationFailures = citer.Attach(&outcome.Sections)
	if res.CitationFailures > 0 {
		log.Warn("citation validation failures", "count", res.CitationFailures)
		if opts.ValidateCitations {
			res.Warnings += res.CitationFailures
		}
	}
	day, _ := time.ParseInLocation("2006-01-02", digestDate, loc)
	digest.ApplyDueLabels(&outcome.Sections, day, loc)

	// Assemble and persist.
	res.Digest = digest.Assemble(digest.AssembleInput{
		DigestDate:          digestDate,
		Timezone:            p.cfg.Mailbox.Timezone,
		TraceID:             traceID,
		PromptVersion:       p.cfg.Output.PromptVersion,
		TotalMessages:       len(messages),
		MessagesWithActions: len(withActions),
		Partial:             outcome.Partial,
		DegradeReason:       outcome.DegradeReason,
		Sections:            outcome.Sections,
		Trailing:            outcome.Trailing,
	})

	data, err := store.MarshalDigest(res.Digest)
	if err != nil {
		return res, err
	}
	if err := p.store.Save(data, res.Digest.RenderedSummary, digestDate); err != nil {
		return res, err
	}
	for _, folder := range p.cfg.Mailbox.Folders {
		if err := p.store.SetWatermark(folder, window.End); err != nil {
			log.Warn("watermark update failed", "folder", folder, "error", err)
			res.Warnings++
		}
	}
	return res, nil
}

// summarizeRun builds the prompt builder and orchestrator for one run and
// executes summarization over the selected evidence.
func (p *Pipeline) summarizeRun(ctx context.Context, opts Options, digestDate string, corpus *models.Corpus, threads []models.Thread, chunks []models.Chunk, selected []rank.Scored, actions []models.ExtractedAction) summarize.Outcome {
	builder := prompt.NewBuilder(p.cfg.Output.PromptVersion, p.cfg.User.Email)
	orch := summarize.New(p.cfg.Summarize, p.cfg.LLM, p.client, builder,
		p.cfg.User.Email, p.cfg.User.AllAliases(), p.reg)
	return orch.Run(ctx, summarize.Input{
		DigestDate:        digestDate,
		Timezone:          p.cfg.Mailbox.Timezone,
		Corpus:            corpus,
		Threads:           threads,
		Chunks:            chunks,
		Selected:          selected,
		Ranked:            selected,
		Actions:           actions,
		ForceHierarchical: opts.ForceHierarchical,
	})
}

// record writes the run to history when it is enabled.
func (p *Pipeline) record(ctx context.Context, traceID, digestDate, status string, res Result, started time.Time) {
	if p.history == nil {
		return
	}
	err := p.history.Record(ctx, store.RunRecord{
		TraceID:       traceID,
		DigestDate:    digestDate,
		Status:        status,
		Partial:       res.Digest.Partial,
		DegradeReason: res.Digest.DegradeReason,
		TotalMessages: res.Digest.TotalMessagesProcessed,
		ItemCount:     res.Digest.Sections.ItemCount(),
		StartedAt:     started,
		FinishedAt:    time.Now(),
	})
	if err != nil {
		slog.Warn("run history write failed", "error", err)
	}
}

// fetchWindow derives the fetch window from the digest date and mode.
func fetchWindow(opts Options, loc *time.Location, now time.Time) mailbox.Window {
	if opts.Window == WindowRolling24h {
		end := now.In(loc)
		return mailbox.Window{Start: end.Add(-24 * time.Hour), End: end}
	}
	day := opts.FromDate.In(loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return mailbox.Window{Start: start, End: start.AddDate(0, 0, 1)}
}

func cleanerConfig(cfg *config.Config) cleaner.Config {
	return cleaner.Config{
		KeepTopQuoteHead:      cfg.Normalize.KeepQuoteHead(),
		MaxQuoteRemovalLength: cfg.Normalize.MaxQuoteRemovalLength,
	}
}

func unmarshalDigest(data []byte, d *models.Digest) error {
	return json.Unmarshal(data, d)
}
