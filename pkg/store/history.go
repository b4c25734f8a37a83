package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql

	"github.com/inboxly/maildigest/pkg/config"
)

//go:embed migrations
var migrationsFS embed.FS

// RunRecord is one pipeline run as stored in history.
type RunRecord struct {
	TraceID    string
	DigestDate string
	Status     string
	Partial    bool

	DegradeReason string

	TotalMessages int
	ItemCount     int
	TokensUsed    int

	StartedAt  time.Time
	FinishedAt time.Time
}

// RunHistory is the optional Postgres-backed run log. Enabled only when a
// database URL is configured; the pipeline runs fine without it.
type RunHistory struct {
	db *sql.DB
}

// OpenRunHistory connects, configures the pool, and applies pending
// migrations. Migration files are embedded so the binary is
// self-contained.
func OpenRunHistory(ctx context.Context, cfg config.StorageConfig) (*RunHistory, error) {
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open run history database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping run history database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate run history: %w", err)
	}
	return &RunHistory{db: db}, nil
}

// Close releases the connection pool.
func (h *RunHistory) Close() error { return h.db.Close() }

// DB exposes the pool for health checks.
func (h *RunHistory) DB() *sql.DB { return h.db }

// Record inserts one run. Reruns of the same trace id are upserts, so a
// retried run never duplicates history.
func (h *RunHistory) Record(ctx context.Context, r RunRecord) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO digest_runs (
			trace_id, digest_date, status, partial, degrade_reason,
			total_messages, item_count, tokens_used, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (trace_id) DO UPDATE SET
			status = EXCLUDED.status,
			partial = EXCLUDED.partial,
			degrade_reason = EXCLUDED.degrade_reason,
			total_messages = EXCLUDED.total_messages,
			item_count = EXCLUDED.item_count,
			tokens_used = EXCLUDED.tokens_used,
			finished_at = EXCLUDED.finished_at`,
		r.TraceID, r.DigestDate, r.Status, r.Partial, r.DegradeReason,
		r.TotalMessages, r.ItemCount, r.TokensUsed, r.StartedAt, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.TraceID, err)
	}
	return nil
}

// LastRun returns the most recent run for a digest date, or ok=false.
func (h *RunHistory) LastRun(ctx context.Context, digestDate string) (RunRecord, bool, error) {
	var r RunRecord
	err := h.db.QueryRowContext(ctx, `
		SELECT trace_id, digest_date, status, partial, degrade_reason,
		       total_messages, item_count, tokens_used, started_at, finished_at
		FROM digest_runs
		WHERE digest_date = $1
		ORDER BY started_at DESC
		LIMIT 1`, digestDate).Scan(
		&r.TraceID, &r.DigestDate, &r.Status, &r.Partial, &r.DegradeReason,
		&r.TotalMessages, &r.ItemCount, &r.TokensUsed, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return RunRecord{}, false, nil
	}
	if err != nil {
		return RunRecord{}, false, fmt.Errorf("load last run for %s: %w", digestDate, err)
	}
	return r, true, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "maildigest", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// Close only the source. m.Close() would also close the shared *sql.DB
	// through the database driver.
	if err := source.Close(); err != nil {
		return fmt.Errorf("close migration source: %w", err)
	}
	return nil
}
