package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/orchestrator"
)

var (
	// ErrRunActive is returned when a run is requested while another is in flight.
	ErrRunActive = errors.New("a crawl run is already active")
	// ErrRunNotActive is returned when cancelling a run that is not in flight.
	ErrRunNotActive = errors.New("run is not active")
)

// Runner executes one crawl job.
type Runner interface {
	Run(ctx context.Context, job orchestrator.Job) (crawler.RunStats, error)
}

// Manager runs at most one job at a time in the background.
type Manager struct {
	runner Runner
	ids    crawler.IDGenerator
	logger *zap.Logger

	mu     sync.Mutex
	base   context.Context
	stop   context.CancelFunc
	active *activeRun
	wg     sync.WaitGroup
}

type activeRun struct {
	id     uuid.UUID
	cancel context.CancelFunc
	// done is closed once the run has ended and been cleared.
	done chan struct{}
}

// NewManager wires the runner and ID generator.
func NewManager(runner Runner, ids crawler.IDGenerator, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, stop := context.WithCancel(context.Background())
	return &Manager{runner: runner, ids: ids, logger: logger.Named("runs"), base: base, stop: stop}
}

// Start assigns job an ID and runs it in the background.
func (m *Manager) Start(job orchestrator.Job) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return uuid.Nil, ErrRunActive
	}
	if m.base.Err() != nil {
		return uuid.Nil, fmt.Errorf("start run: %w", m.base.Err())
	}
	id, err := m.ids.NewRunID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	job.ID = id
	ctx, cancel := context.WithCancel(m.base)
	run := &activeRun{id: id, cancel: cancel, done: make(chan struct{})}
	m.active = run

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(run.done)
		defer cancel()
		stats, err := m.runner.Run(ctx, job)
		if err != nil {
			m.logger.Error("run failed", zap.String("run_id", id.String()), zap.Error(err))
		} else {
			m.logger.Info("run ended", zap.String("run_id", id.String()), zap.String("state", string(stats.State)))
		}
		m.mu.Lock()
		if m.active == run {
			m.active = nil
		}
		m.mu.Unlock()
	}()
	return id, nil
}

// Cancel requests cooperative cancellation of the active run.
func (m *Manager) Cancel(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.id != id {
		return ErrRunNotActive
	}
	m.active.cancel()
	return nil
}

// Active returns the in-flight run ID, if any.
func (m *Manager) Active() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return uuid.Nil, false
	}
	return m.active.id, true
}

// Shutdown cancels any active run and waits for it to reach a terminal state
// or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for active run: %w", ctx.Err())
	}
}

// Wait blocks until no run is active or timeout elapses. It reports whether
// the manager became idle.
func (m *Manager) Wait(timeout time.Duration) bool {
	m.mu.Lock()
	run := m.active
	m.mu.Unlock()
	if run == nil {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-run.done:
		return true
	case <-timer.C:
		_, busy := m.Active()
		return !busy
	}
}
