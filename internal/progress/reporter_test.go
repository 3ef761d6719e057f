package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestReporterStampsEvents(t *testing.T) {
	t.Parallel()

	var got []Event
	runID := uuid.New()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	r := NewReporter(EmitterFunc(func(evt Event) { got = append(got, evt) }), runID, fixedClock{t: now})

	r.Log(LevelInfo, "", "starting")
	r.Progress("bing", 4, 2, 10)
	r.ForSource("bing").Error("navigation failed", "timeout")
	r.State(crawler.StateRunning)
	r.Complete(crawler.RunStats{State: crawler.StateCompleted, Sources: []crawler.SourceStats{{Name: "bing"}}})

	require.Len(t, got, 5)
	for _, evt := range got {
		require.Equal(t, runID, evt.RunUUID())
		require.Equal(t, now, evt.TS)
		require.NoError(t, evt.Validate())
	}
	require.Equal(t, StageProgress, got[1].Stage)
	require.Equal(t, 2, got[1].Downloaded)
	require.Equal(t, "bing", got[2].Source)
	require.Equal(t, "timeout", got[2].Details)
	require.Equal(t, crawler.StateRunning, got[3].State)
	require.NotNil(t, got[4].Stats)
	require.Equal(t, "bing", got[4].Stats.Sources[0].Name)
}

func TestNilReporterIsSafe(t *testing.T) {
	t.Parallel()

	var r *Reporter
	require.NotPanics(t, func() {
		r.Log(LevelWarn, "x", "y")
		r.ForSource("x").Log(LevelInfo, "y")
		r.Complete(crawler.RunStats{})
	})
	var s *SourceReporter
	require.NotPanics(t, func() { s.Error("a", "b") })
}
