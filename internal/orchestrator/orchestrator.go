// Package orchestrator drives one crawl run: it builds the active sources,
// prepares the destination, shares a single browser page across sources, and
// spends the global download budget source by source.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/dedup"
	"github.com/JakeFAU/image-crawler/internal/metrics"
	"github.com/JakeFAU/image-crawler/internal/pipeline"
	"github.com/JakeFAU/image-crawler/internal/progress"
	"github.com/JakeFAU/image-crawler/internal/sources"
	"github.com/JakeFAU/image-crawler/internal/storage/local"
)

// SourceBuilder produces the ordered adapters for a run.
type SourceBuilder interface {
	Build(settings sources.Settings, reporter *progress.Reporter) []crawler.Adapter
}

// Config wires the long-lived collaborators shared by every run.
type Config struct {
	Sources  SourceBuilder
	Launcher crawler.Launcher
	Fetcher  crawler.Fetcher
	Hasher   crawler.Hasher
	// Mirror is optional.
	Mirror  crawler.Mirror
	Emitter progress.Emitter
	Clock   crawler.Clock
	IDs     crawler.IDGenerator
	Logger  *zap.Logger
}

// Job describes one run.
type Job struct {
	// ID is generated when zero.
	ID          uuid.UUID
	Query       string
	Destination string
	Limits      crawler.Limits
	Sources     sources.Settings
}

// Orchestrator executes jobs one at a time.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger
}

// New builds an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Sources == nil:
		return nil, errors.New("source builder is required")
	case cfg.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case cfg.Hasher == nil:
		return nil, errors.New("hasher is required")
	case cfg.Clock == nil:
		return nil, errors.New("clock is required")
	case cfg.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, logger: logger.Named("orchestrator")}, nil
}

// Run executes job until every source is drained, the budget is spent, ctx
// is cancelled, or a fatal error occurs. The returned stats are always
// terminal. Only Failed runs return a non-nil error.
func (o *Orchestrator) Run(ctx context.Context, job Job) (crawler.RunStats, error) {
	runID := job.ID
	if runID == uuid.Nil {
		id, err := o.cfg.IDs.NewRunID()
		if err != nil {
			return crawler.RunStats{State: crawler.StateFailed, Error: err.Error()}, fmt.Errorf("generate run id: %w", err)
		}
		runID = id
	}

	r := &run{
		job:      job,
		reporter: progress.NewReporter(o.cfg.Emitter, runID, o.cfg.Clock),
		logger:   o.logger.With(zap.String("run_id", runID.String()), zap.String("query", job.Query)),
		stats: crawler.RunStats{
			RunID:     runID.String(),
			Query:     job.Query,
			State:     crawler.StateIdle,
			Sources:   []crawler.SourceStats{},
			StartedAt: o.cfg.Clock.Now(),
		},
	}

	metrics.RunStarted()
	defer metrics.RunFinished()

	r.transition(crawler.StateInitializing)
	adapters := o.cfg.Sources.Build(job.Sources, r.reporter)
	if len(adapters) == 0 {
		r.reporter.Log(progress.LevelWarn, "", "no active sources")
		return o.finish(r, crawler.StateCompleted, nil)
	}

	dest, err := local.New(local.Config{Dir: job.Destination})
	if err != nil {
		return o.finish(r, crawler.StateFailed, err)
	}
	seen, err := dedup.Seed(ctx, dest.Dir(), o.cfg.Hasher, r.logger)
	if err != nil {
		if ctx.Err() != nil {
			return o.finish(r, crawler.StateCancelled, nil)
		}
		return o.finish(r, crawler.StateFailed, fmt.Errorf("%w: %w", crawler.ErrDestinationUnusable, err))
	}
	r.reporter.Log(progress.LevelInfo, "", fmt.Sprintf("destination holds %d known images", seen.Len()))
	if ctx.Err() != nil {
		return o.finish(r, crawler.StateCancelled, nil)
	}

	var page crawler.Page
	if needsBrowser(adapters) {
		if o.cfg.Launcher == nil {
			return o.finish(r, crawler.StateFailed, fmt.Errorf("%w: no launcher configured", crawler.ErrBrowserUnavailable))
		}
		session, err := o.cfg.Launcher.Launch(ctx, job.Limits.Headless)
		if err != nil {
			if ctx.Err() != nil {
				return o.finish(r, crawler.StateCancelled, nil)
			}
			if !errors.Is(err, crawler.ErrBrowserUnavailable) {
				err = fmt.Errorf("%w: %w", crawler.ErrBrowserUnavailable, err)
			}
			return o.finish(r, crawler.StateFailed, err)
		}
		defer o.closeSession(r, session)
		page = session.Page()
	}

	pipe := pipeline.New(pipeline.Config{
		Limits:  job.Limits,
		Fetcher: o.cfg.Fetcher,
		Hasher:  o.cfg.Hasher,
		Writer:  dest,
		Mirror:  o.cfg.Mirror,
		Dedup:   seen,
		Logger:  r.logger,
	})

	r.transition(crawler.StateRunning)
	for _, adapter := range adapters {
		if ctx.Err() != nil {
			break
		}
		remaining := job.Limits.GlobalMaxDownloads - r.downloaded
		if remaining <= 0 {
			r.reporter.Log(progress.LevelInfo, "", "download budget exhausted")
			break
		}
		o.runSource(ctx, r, adapter, page, pipe, effectiveCap(remaining, adapter.MaxResults(), job.Limits.PerSourceMaxResults))
	}

	if ctx.Err() != nil {
		return o.finish(r, crawler.StateCancelled, nil)
	}
	return o.finish(r, crawler.StateCompleted, nil)
}

// effectiveCap is min(remaining, source cap). A source without its own cap
// uses the per-source default; with neither, only the budget applies.
func effectiveCap(remaining, sourceMax, perSourceDefault int) int {
	limit := sourceMax
	if limit <= 0 {
		limit = perSourceDefault
	}
	if limit <= 0 {
		return remaining
	}
	return min(remaining, limit)
}

func needsBrowser(adapters []crawler.Adapter) bool {
	for _, a := range adapters {
		user, ok := a.(crawler.BrowserUser)
		if !ok || user.UsesBrowser() {
			return true
		}
	}
	return false
}

func (o *Orchestrator) closeSession(r *run, session crawler.Session) {
	if err := session.Close(); err != nil {
		r.logger.Warn("close browser session", zap.Error(err))
		r.reporter.Log(progress.LevelWarn, "", "browser session did not close cleanly")
	}
}

func (o *Orchestrator) finish(r *run, state crawler.RunState, err error) (crawler.RunStats, error) {
	r.stats.Recount()
	r.stats.FinishedAt = o.cfg.Clock.Now()
	if err != nil {
		r.stats.Error = err.Error()
		r.reporter.Error("", "run failed", err.Error())
	}
	r.transition(state)
	r.reporter.Complete(r.stats)
	r.logger.Info("run finished",
		zap.String("state", string(state)),
		zap.Int("downloaded", r.stats.Totals.Downloaded),
		zap.Int("skipped", r.stats.Totals.Skipped),
		zap.Int("errored", r.stats.Totals.Errored),
		zap.Duration("elapsed", r.stats.FinishedAt.Sub(r.stats.StartedAt)),
	)
	if err != nil {
		return r.stats.Clone(), fmt.Errorf("crawl run %s: %w", r.stats.RunID, err)
	}
	return r.stats.Clone(), nil
}
