package sinks

import (
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/progress"
)

func runEvents(runID uuid.UUID, start time.Time) []progress.Event {
	id := progress.UUIDToBytes(runID)
	stats := &crawler.RunStats{
		RunID:      runID.String(),
		Query:      "red fox",
		State:      crawler.StateCompleted,
		StartedAt:  start,
		FinishedAt: start.Add(12 * time.Second),
		Sources: []crawler.SourceStats{
			{Name: "bing", Requested: 3, Discovered: 6, Downloaded: 3, Skipped: 2, Errored: 1},
			{Name: "wikimedia", Requested: 2, Discovered: 2, Downloaded: 2},
		},
	}
	stats.Recount()
	return []progress.Event{
		{RunID: id, TS: start, Stage: progress.StageState, State: crawler.StateInitializing},
		{RunID: id, TS: start, Stage: progress.StageState, State: crawler.StateRunning},
		{RunID: id, TS: start.Add(time.Second), Stage: progress.StageLog, Level: progress.LevelInfo, Source: "bing", Message: "navigated"},
		{RunID: id, TS: start.Add(2 * time.Second), Stage: progress.StageProgress, Source: "bing", Discovered: 6, Downloaded: 1, Requested: 3},
		{RunID: id, TS: start.Add(3 * time.Second), Stage: progress.StageError, Source: "bing", Message: "fetch failed", Details: "status 500"},
		{RunID: id, TS: start.Add(12 * time.Second), Stage: progress.StageComplete, State: crawler.StateCompleted, Stats: stats},
	}
}
