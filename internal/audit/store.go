// Package audit persists per-request de-identification statistics in
// PostgreSQL. Entity text never reaches the database.
package audit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/logger"
	"github.com/raaihank/deidentifier/internal/service"
)

const (
	initTimeout   = 10 * time.Second
	recordTimeout = 2 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS deidentification_runs (
	id            BIGSERIAL PRIMARY KEY,
	request_id    TEXT NOT NULL,
	operation     TEXT NOT NULL,
	scope         TEXT NOT NULL,
	entity_counts JSONB NOT NULL DEFAULT '{}'::jsonb,
	duration_ms   DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_deidentification_runs_created_at ON deidentification_runs (created_at)`

// Store handles audit persistence
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore connects, sizes the pool and ensures the schema exists
func NewStore(cfg config.AuditConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := NewStoreWithDB(db, log)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	store.logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))
	return store, nil
}

// NewStoreWithDB wraps an existing handle, e.g. in tests.
func NewStoreWithDB(db *sqlx.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, logger: log.WithComponent("audit")}
}

// Migrate creates the runs table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Record inserts run and fills its ID and creation time.
func (s *Store) Record(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO deidentification_runs (request_id, operation, scope, entity_counts, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		run.RequestID,
		run.Operation,
		run.Scope,
		run.EntityCounts,
		run.DurationMS,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit run: %w", err)
	}

	s.logger.Debug("Audit run recorded",
		zap.Int64("id", run.ID),
		zap.String("operation", run.Operation))
	return nil
}

// Observe records a completed operation. Failures are logged, never returned.
func (s *Store) Observe(ctx context.Context, event service.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	run := &Run{
		RequestID:    event.RequestID,
		Operation:    string(event.Operation),
		Scope:        string(event.Scope),
		EntityCounts: Counts(event.EntityCounts),
		DurationMS:   float64(event.Duration.Microseconds()) / 1000,
	}
	if err := s.Record(ctx, run); err != nil {
		s.logger.Warn("Failed to record audit run",
			zap.String("request_id", event.RequestID),
			zap.Error(err))
	}
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, request_id, operation, scope, entity_counts, duration_ms, created_at
		FROM deidentification_runs
		ORDER BY created_at DESC
		LIMIT $1`

	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit runs: %w", err)
	}
	return runs, nil
}

// TotalsSince sums entity counts per type over runs created at or after since.
func (s *Store) TotalsSince(ctx context.Context, since time.Time) ([]TypeTotal, error) {
	query := `
		SELECT counts.key AS entity_type, SUM(counts.value::bigint) AS total
		FROM deidentification_runs, jsonb_each_text(entity_counts) AS counts
		WHERE created_at >= $1
		GROUP BY counts.key
		ORDER BY total DESC, counts.key`

	var totals []TypeTotal
	if err := s.db.SelectContext(ctx, &totals, query, since); err != nil {
		return nil, fmt.Errorf("failed to aggregate audit runs: %w", err)
	}
	return totals, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL hides the password of a connection URL for logging
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
