package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/pipeline"
	"github.com/JakeFAU/image-crawler/internal/progress"
)

var transitions = map[crawler.RunState][]crawler.RunState{
	crawler.StateIdle:         {crawler.StateInitializing},
	crawler.StateInitializing: {crawler.StateRunning, crawler.StateCompleted, crawler.StateCancelled, crawler.StateFailed},
	crawler.StateRunning:      {crawler.StateCompleted, crawler.StateCancelled, crawler.StateFailed},
}

// run is the mutable state of one Job. Only the orchestrator goroutine
// touches it.
type run struct {
	job        Job
	reporter   *progress.Reporter
	logger     *zap.Logger
	stats      crawler.RunStats
	downloaded int
}

func (r *run) transition(to crawler.RunState) {
	from := r.stats.State
	for _, allowed := range transitions[from] {
		if allowed == to {
			r.stats.State = to
			r.reporter.State(to)
			r.logger.Debug("run state changed", zap.String("from", string(from)), zap.String("to", string(to)))
			return
		}
	}
	r.logger.Error("illegal run state transition", zap.String("from", string(from)), zap.String("to", string(to)))
}

// runSource drains one adapter up to limit accepted images. Panics and errors
// are charged to the adapter and never escape.
func (o *Orchestrator) runSource(
	ctx context.Context,
	r *run,
	adapter crawler.Adapter,
	page crawler.Page,
	pipe *pipeline.Pipeline,
	limit int,
) {
	name := adapter.Name()
	src := r.stats.Source(name)
	src.Requested = limit
	logger := r.logger.With(zap.String("source", name))

	defer func() {
		if rec := recover(); rec != nil {
			src.Errored++
			logger.Error("source panicked", zap.Any("panic", rec))
			r.reporter.Error(name, "source failed", fmt.Sprint(rec))
		}
	}()

	r.reporter.Log(progress.LevelInfo, name, fmt.Sprintf("searching for up to %d images", limit))
	cands, err := adapter.Discover(ctx, r.job.Query, crawler.DiscoverLimits{
		Cap:        limit,
		SafeSearch: r.job.Limits.SafeSearch,
		Timeout:    r.job.Limits.Timeout(),
	}, page)
	if len(cands) > limit {
		cands = cands[:limit]
	}
	src.Discovered = len(cands)
	r.reporter.Progress(name, src.Discovered, src.Downloaded, src.Requested)

	if err != nil {
		if ctx.Err() != nil {
			logger.Info("discovery interrupted", zap.Int("discovered", len(cands)))
			return
		}
		src.Errored++
		logger.Warn("discovery failed", zap.Error(err), zap.Int("discovered", len(cands)))
		r.reporter.Error(name, "discovery failed", err.Error())
	}

	for _, cand := range cands {
		if ctx.Err() != nil {
			return
		}
		if src.Downloaded >= limit || r.downloaded >= r.job.Limits.GlobalMaxDownloads {
			return
		}
		resolved := adapter.ResolveFullSize(ctx, cand, page)
		if resolved == "" {
			resolved = cand.URL()
		}
		res := pipe.Process(ctx, adapter, cand, resolved)
		switch res.Outcome {
		case pipeline.Accepted:
			src.Downloaded++
			r.downloaded++
			logger.Debug("image saved", zap.String("path", res.Path))
		case pipeline.Skipped:
			src.Skipped++
			logger.Debug("candidate skipped", zap.String("url", resolved), zap.String("reason", res.Reason))
		default:
			src.Errored++
			details := resolved
			if res.Err != nil {
				details = fmt.Sprintf("%s: %v", resolved, res.Err)
			}
			logger.Warn("candidate failed", zap.String("url", resolved), zap.String("reason", res.Reason), zap.Error(res.Err))
			r.reporter.Error(name, res.Reason, details)
		}
		r.reporter.Progress(name, src.Discovered, src.Downloaded, src.Requested)
	}
}
