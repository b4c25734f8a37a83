package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/inboxly/maildigest/pkg/config"
	"github.com/inboxly/maildigest/pkg/llm"
	"github.com/inboxly/maildigest/pkg/mailbox"
	"github.com/inboxly/maildigest/pkg/metrics"
	"github.com/inboxly/maildigest/pkg/pipeline"
	"github.com/inboxly/maildigest/pkg/store"
)

type runFlags struct {
	fromDate          string
	window            string
	dryRun            bool
	force             bool
	validateCitations bool
	forceHierarchical bool
	outDir            string
	model             string
	promptVersion     string
	fixture           string
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the digest for one day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.fromDate, "from-date", "today",
		"digest date, YYYY-MM-DD or 'today' (mailbox timezone)")
	cmd.Flags().StringVar(&flags.window, "window", string(pipeline.WindowCalendarDay),
		"fetch window: calendar_day or rolling_24h")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false,
		"stop after ranking: no model calls, no writes")
	cmd.Flags().BoolVar(&flags.force, "force", false,
		"rebuild even when a digest exists within the rebuild window")
	cmd.Flags().BoolVar(&flags.validateCitations, "validate-citations", false,
		"treat citation validation failures as warnings (exit 2)")
	cmd.Flags().BoolVar(&flags.forceHierarchical, "hierarchical", false,
		"force hierarchical summarization regardless of thresholds")
	cmd.Flags().StringVar(&flags.outDir, "out", "", "output directory (overrides config)")
	cmd.Flags().StringVar(&flags.model, "model", "", "model name (overrides config)")
	cmd.Flags().StringVar(&flags.promptVersion, "prompt-version", "", "prompt version (overrides config)")
	cmd.Flags().StringVar(&flags.fixture, "mailbox-fixture", "",
		"JSON fixture file served instead of the mailbox endpoint")
	return cmd
}

func runOnce(ctx context.Context, flags runFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOverrides(cfg, flags)

	window, err := parseWindow(flags.window)
	if err != nil {
		return err
	}
	fromDate, err := parseFromDate(flags.fromDate, cfg.Location())
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	p, cleanup, err := buildPipeline(ctx, cfg, flags, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := p.Run(ctx, pipeline.Options{
		FromDate:          fromDate,
		Window:            window,
		DryRun:            flags.dryRun,
		Force:             flags.force,
		ValidateCitations: flags.validateCitations,
		ForceHierarchical: flags.forceHierarchical,
	})
	if err != nil {
		return err
	}

	if res.DryRun {
		slog.Info("dry run summary",
			"fetched", res.Stats.Fetched,
			"messages", res.Stats.Messages,
			"threads", res.Stats.Threads,
			"redundancy", res.Stats.Redundancy,
			"chunks", res.Stats.Chunks,
			"actions", res.Stats.Actions,
			"selected", res.Stats.SelectedTotal)
	}
	if res.Warnings > 0 {
		slog.Warn("run completed with warnings",
			"warnings", res.Warnings, "citation_failures", res.CitationFailures)
		return errWarnings
	}
	return nil
}

// buildPipeline assembles the run dependencies from configuration.
func buildPipeline(ctx context.Context, cfg *config.Config, flags runFlags, reg *metrics.Registry) (*pipeline.Pipeline, func(), error) {
	st, err := store.New(cfg.Output.Dir, cfg.Output.RebuildWindow)
	if err != nil {
		return nil, nil, err
	}

	fetcher, err := buildFetcher(cfg, flags.fixture)
	if err != nil {
		return nil, nil, err
	}

	client, err := buildClient(cfg, reg)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var history *store.RunHistory
	if cfg.Storage.DatabaseURL != "" {
		history, err = store.OpenRunHistory(ctx, cfg.Storage)
		if err != nil {
			// Run history is best-effort; the digest itself does not need it.
			slog.Warn("run history unavailable, continuing without it", "error", err)
		} else {
			cleanup = func() {
				if err := history.Close(); err != nil {
					slog.Warn("closing run history", "error", err)
				}
			}
		}
	}

	return pipeline.New(cfg, fetcher, client, st, history, reg), cleanup, nil
}

func buildFetcher(cfg *config.Config, fixture string) (mailbox.Fetcher, error) {
	if fixture != "" {
		return mailbox.NewFakeFromFile(fixture)
	}
	if cfg.Mailbox.Endpoint == "" {
		return nil, fmt.Errorf("no mailbox endpoint configured and no --mailbox-fixture given")
	}
	return mailbox.NewHTTPDriver(cfg.Mailbox.Endpoint, cfg.Mailbox.CredentialsEnv, cfg.Mailbox.PageSize), nil
}

func buildClient(cfg *config.Config, reg *metrics.Registry) (llm.Client, error) {
	inner, err := llm.NewOpenAIClient(cfg.LLM)
	if err != nil {
		return nil, err
	}
	budget := llm.NewBudget(cfg.LLM.MaxRunTokens, cfg.LLM.MaxRunCostUSD, cfg.LLM.CostPer1KTokensUSD)
	return llm.NewMetered(inner, budget, reg), nil
}

func applyOverrides(cfg *config.Config, flags runFlags) {
	if flags.outDir != "" {
		cfg.Output.Dir = flags.outDir
	}
	if flags.model != "" {
		cfg.LLM.Model = flags.model
	}
	if flags.promptVersion != "" {
		cfg.Output.PromptVersion = flags.promptVersion
	}
}

func parseWindow(s string) (pipeline.WindowMode, error) {
	switch pipeline.WindowMode(s) {
	case pipeline.WindowCalendarDay, pipeline.WindowRolling24h:
		return pipeline.WindowMode(s), nil
	default:
		return "", fmt.Errorf("invalid --window %q: want calendar_day or rolling_24h", s)
	}
}

func parseFromDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" || s == "today" {
		now := time.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --from-date %q: want YYYY-MM-DD or 'today'", s)
	}
	return t, nil
}
