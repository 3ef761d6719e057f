package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/progress"
	"github.com/JakeFAU/image-crawler/internal/store"
)

// StoreSink persists run lifecycle through a store.RunRepository. Only the
// Initializing transition and the COMPLETE summary touch the database.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards lifecycle events to the repository and returns the first
// repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageState:
			if evt.State != crawler.StateInitializing {
				continue
			}
			if err := s.repo.StartRun(ctx, runID, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageComplete:
			if evt.Stats == nil {
				continue
			}
			if err := s.repo.CompleteRun(ctx, runID, *evt.Stats); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
			s.logger.Debug("run persisted", zap.Stringer("run_id", runID), zap.String("state", string(evt.State)))
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
