package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/inboxly/maildigest/pkg/config"
)

// Sweeper periodically enforces retention: old digest outputs and stale
// watermarks are removed. Sweeps are idempotent and safe to run from
// multiple processes sharing the output directory.
type Sweeper struct {
	cfg   config.RetentionConfig
	store *Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a retention sweeper over the given store.
func NewSweeper(cfg config.RetentionConfig, store *Store) *Sweeper {
	return &Sweeper{cfg: cfg, store: store}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention sweeper started",
		"output_days", s.cfg.OutputDays,
		"watermark_days", s.cfg.WatermarkDays,
		"interval", s.cfg.SweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Retention sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	s.sweepOnce()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// SweepOnce runs one sweep immediately; used by single-shot runs that do
// not start the background loop.
func (s *Sweeper) SweepOnce() {
	s.sweepOnce()
}

func (s *Sweeper) sweepOnce() {
	removed, err := s.store.Sweep(time.Now(), s.cfg.OutputDays, s.cfg.WatermarkDays)
	if err != nil {
		slog.Error("Retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Retention sweep removed files", "count", removed)
	}
}
