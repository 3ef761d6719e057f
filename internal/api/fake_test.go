package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/orchestrator"
	"github.com/JakeFAU/image-crawler/internal/store"
)

// blockingRunner runs until its context is cancelled or release is closed.
type blockingRunner struct {
	mu      sync.Mutex
	jobs    []orchestrator.Job
	started chan struct{}
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context, job orchestrator.Job) (crawler.RunStats, error) {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	r.started <- struct{}{}
	select {
	case <-ctx.Done():
		return crawler.RunStats{RunID: job.ID.String(), State: crawler.StateCancelled}, nil
	case <-r.release:
		return crawler.RunStats{RunID: job.ID.String(), State: crawler.StateCompleted}, nil
	}
}

func (r *blockingRunner) lastJob() orchestrator.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[len(r.jobs)-1]
}

func (r *blockingRunner) waitStarted(timeout time.Duration) bool {
	select {
	case <-r.started:
		return true
	case <-time.After(timeout):
		return false
	}
}

type sequenceIDs struct {
	mu   sync.Mutex
	next byte
}

func (s *sequenceIDs) NewRunID() (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	var id uuid.UUID
	id[15] = s.next
	id[6] = 0x40
	id[8] = 0x80
	return id, nil
}

type mockRunRepo struct {
	runs    []store.RunRecord
	sources []crawler.SourceStats
	err     error
	state   *crawler.RunState
	limit   int
	offset  int
}

func (m *mockRunRepo) StartRun(context.Context, uuid.UUID, time.Time) error { return m.err }

func (m *mockRunRepo) CompleteRun(context.Context, uuid.UUID, crawler.RunStats) error { return m.err }

func (m *mockRunRepo) GetRun(context.Context, uuid.UUID) (store.RunRecord, error) {
	if len(m.runs) > 0 {
		return m.runs[0], nil
	}
	return store.RunRecord{}, m.err
}

func (m *mockRunRepo) ListRuns(_ context.Context, state *crawler.RunState, limit, offset int) ([]store.RunRecord, error) {
	m.state, m.limit, m.offset = state, limit, offset
	return m.runs, m.err
}

func (m *mockRunRepo) ListRunSources(context.Context, uuid.UUID) ([]crawler.SourceStats, error) {
	return m.sources, m.err
}

func withRunIDParam(r *http.Request, runID string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("run_id", runID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}
