package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inboxly/maildigest/pkg/api"
	"github.com/inboxly/maildigest/pkg/metrics"
	"github.com/inboxly/maildigest/pkg/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics, and stored digests; run the retention sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.New(cfg.Output.Dir, cfg.Output.RebuildWindow)
	if err != nil {
		return err
	}
	reg := metrics.NewRegistry()

	checks := map[string]api.ReadyCheck{}
	if cfg.Storage.DatabaseURL != "" {
		history, err := store.OpenRunHistory(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer history.Close()
		checks["database"] = func(ctx context.Context) error {
			return history.DB().PingContext(ctx)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := store.NewSweeper(cfg.Retention, st)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	server := api.NewServer(cfg.Server, reg, st, checks)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
