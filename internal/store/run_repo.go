package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunRecord models one row of crawl_runs.
type RunRecord struct {
	ID        uuid.UUID
	Query     string
	State     crawler.RunState
	StartedAt time.Time
	// FinishedAt is nil until the run reaches a terminal state.
	FinishedAt   *time.Time
	Downloaded   int
	ErrorMessage *string
}

// RunRepository persists run lifecycle and per-source results.
type RunRepository interface {
	// StartRun inserts (or idempotently refreshes) a running row.
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// CompleteRun writes the terminal summary and one row per source.
	CompleteRun(ctx context.Context, runID uuid.UUID, stats crawler.RunStats) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (RunRecord, error)
	// ListRuns returns runs filtered by optional state, newest first.
	ListRuns(ctx context.Context, state *crawler.RunState, limit, offset int) ([]RunRecord, error)
	// ListRunSources returns the per-source counters recorded for a run.
	ListRunSources(ctx context.Context, runID uuid.UUID) ([]crawler.SourceStats, error)
}
