package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/progress"
)

const (
	defaultTrackedRuns = 100
	maxTrackedErrors   = 20
)

// SourceProgress is the latest PROGRESS snapshot for one source.
type SourceProgress struct {
	Name       string `json:"name"`
	Discovered int    `json:"discovered"`
	Downloaded int    `json:"downloaded"`
	Requested  int    `json:"requested"`
}

// RunSnapshot is the live view of one run served by GET /v1/runs/{run_id}.
type RunSnapshot struct {
	RunID     string            `json:"run_id"`
	Query     string            `json:"query"`
	State     crawler.RunState  `json:"state"`
	Sources   []SourceProgress  `json:"sources"`
	Errors    []string          `json:"errors,omitempty"`
	Stats     *crawler.RunStats `json:"stats,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Tracker is a progress.Sink that keeps the latest snapshot of recent runs.
type Tracker struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]*RunSnapshot
	order []uuid.UUID
	limit int
	now   func() time.Time
}

var _ progress.Sink = (*Tracker)(nil)

// NewTracker keeps up to limit runs, evicting the oldest first.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = defaultTrackedRuns
	}
	return &Tracker{
		runs:  make(map[uuid.UUID]*RunSnapshot),
		limit: limit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Begin registers a run before its first event arrives.
func (t *Tracker) Begin(id uuid.UUID, query string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.lookupOrCreate(id)
	snap.Query = query
	snap.UpdatedAt = t.now()
}

// Get returns a copy of the run's snapshot.
func (t *Tracker) Get(id uuid.UUID) (RunSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.runs[id]
	if !ok {
		return RunSnapshot{}, false
	}
	cp := *snap
	cp.Sources = append([]SourceProgress(nil), snap.Sources...)
	cp.Errors = append([]string(nil), snap.Errors...)
	if snap.Stats != nil {
		stats := snap.Stats.Clone()
		cp.Stats = &stats
	}
	return cp, true
}

// Consume applies a batch of events.
func (t *Tracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		snap := t.lookupOrCreate(evt.RunUUID())
		snap.UpdatedAt = evt.TS
		switch evt.Stage {
		case progress.StageState:
			snap.State = evt.State
		case progress.StageProgress:
			t.applyProgress(snap, evt)
		case progress.StageError:
			msg := evt.Message
			if evt.Source != "" {
				msg = evt.Source + ": " + msg
			}
			if evt.Details != "" {
				msg += " (" + evt.Details + ")"
			}
			snap.Errors = append(snap.Errors, msg)
			if len(snap.Errors) > maxTrackedErrors {
				snap.Errors = snap.Errors[len(snap.Errors)-maxTrackedErrors:]
			}
		case progress.StageComplete:
			snap.State = evt.State
			if evt.Stats != nil {
				stats := evt.Stats.Clone()
				snap.Stats = &stats
				if snap.Query == "" {
					snap.Query = stats.Query
				}
			}
		}
	}
	return nil
}

// Close is a no-op.
func (t *Tracker) Close(context.Context) error { return nil }

func (t *Tracker) applyProgress(snap *RunSnapshot, evt progress.Event) {
	for i := range snap.Sources {
		if snap.Sources[i].Name == evt.Source {
			snap.Sources[i].Discovered = evt.Discovered
			snap.Sources[i].Downloaded = evt.Downloaded
			snap.Sources[i].Requested = evt.Requested
			return
		}
	}
	snap.Sources = append(snap.Sources, SourceProgress{
		Name:       evt.Source,
		Discovered: evt.Discovered,
		Downloaded: evt.Downloaded,
		Requested:  evt.Requested,
	})
}

func (t *Tracker) lookupOrCreate(id uuid.UUID) *RunSnapshot {
	if snap, ok := t.runs[id]; ok {
		return snap
	}
	snap := &RunSnapshot{RunID: id.String(), State: crawler.StateIdle, Sources: []SourceProgress{}}
	t.runs[id] = snap
	t.order = append(t.order, id)
	for len(t.order) > t.limit {
		delete(t.runs, t.order[0])
		t.order = t.order[1:]
	}
	return snap
}
