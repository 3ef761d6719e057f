// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// RunStore implements store.RunRepository on the crawl_runs and
// crawl_run_sources tables.
type RunStore struct {
	pool pool
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore connects a pool using cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: p}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool) (*RunStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &RunStore{pool: p}, nil
}

// Close releases the underlying pool.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const startRunSQL = `
INSERT INTO crawl_runs (id, state, started_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING;`

// StartRun records a run as running.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	if _, err := s.pool.Exec(ctx, startRunSQL, runID, crawler.StateRunning, startedAt); err != nil {
		return fmt.Errorf("insert run start: %w", err)
	}
	return nil
}

const completeRunSQL = `
INSERT INTO crawl_runs (id, query, state, started_at, finished_at, downloaded, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET query = EXCLUDED.query,
	state = EXCLUDED.state,
	finished_at = EXCLUDED.finished_at,
	downloaded = EXCLUDED.downloaded,
	error_message = EXCLUDED.error_message;`

const upsertSourceSQL = `
INSERT INTO crawl_run_sources (run_id, source, requested, discovered, downloaded, skipped, errored)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (run_id, source) DO UPDATE
SET requested = EXCLUDED.requested,
	discovered = EXCLUDED.discovered,
	downloaded = EXCLUDED.downloaded,
	skipped = EXCLUDED.skipped,
	errored = EXCLUDED.errored;`

// CompleteRun writes the run summary and its sources in one transaction.
func (s *RunStore) CompleteRun(ctx context.Context, runID uuid.UUID, stats crawler.RunStats) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete run: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var errMsg *string
	if stats.Error != "" {
		msg := stats.Error
		errMsg = &msg
	}
	var finished *time.Time
	if !stats.FinishedAt.IsZero() {
		at := stats.FinishedAt
		finished = &at
	}
	if _, err = tx.Exec(ctx, completeRunSQL,
		runID,
		stats.Query,
		stats.State,
		stats.StartedAt,
		finished,
		stats.Totals.Downloaded,
		errMsg,
	); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	for _, src := range stats.Sources {
		if _, err = tx.Exec(ctx, upsertSourceSQL,
			runID,
			src.Name,
			src.Requested,
			src.Discovered,
			src.Downloaded,
			src.Skipped,
			src.Errored,
		); err != nil {
			return fmt.Errorf("upsert run source %s: %w", src.Name, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete run: %w", err)
	}
	return nil
}

const selectRunColumns = `SELECT id, query, state, started_at, finished_at, downloaded, error_message FROM crawl_runs`

// GetRun loads a single run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.RunRecord, error) {
	row := s.pool.QueryRow(ctx, selectRunColumns+` WHERE id = $1;`, runID)
	rec, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.RunRecord{}, store.ErrNotFound
		}
		return store.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns runs newest first, optionally filtered by state.
func (s *RunStore) ListRuns(
	ctx context.Context,
	state *crawler.RunState,
	limit,
	offset int,
) ([]store.RunRecord, error) {
	query := selectRunColumns + `
		WHERE ($1::text IS NULL OR state = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, state, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunSources returns per-source counters for a run in source order.
func (s *RunStore) ListRunSources(ctx context.Context, runID uuid.UUID) ([]crawler.SourceStats, error) {
	query := `
		SELECT source, requested, discovered, downloaded, skipped, errored
		FROM crawl_run_sources
		WHERE run_id = $1
		ORDER BY source;`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list run sources: %w", err)
	}
	defer rows.Close()

	var out []crawler.SourceStats
	for rows.Next() {
		var src crawler.SourceStats
		if err := rows.Scan(
			&src.Name,
			&src.Requested,
			&src.Discovered,
			&src.Downloaded,
			&src.Skipped,
			&src.Errored,
		); err != nil {
			return nil, fmt.Errorf("scan run source row: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run sources: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (store.RunRecord, error) {
	var (
		rec   store.RunRecord
		query *string
		state string
	)
	if err := row.Scan(
		&rec.ID,
		&query,
		&state,
		&rec.StartedAt,
		&rec.FinishedAt,
		&rec.Downloaded,
		&rec.ErrorMessage,
	); err != nil {
		return store.RunRecord{}, err
	}
	if query != nil {
		rec.Query = *query
	}
	rec.State = crawler.RunState(state)
	return rec, nil
}
