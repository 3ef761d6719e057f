package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/progress"
)

// PrometheusSink exports run lifecycle and per-source image counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	images       *prometheus.CounterVec
	sourceErrors *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imagecrawler_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imagecrawler_runs_completed_total",
			Help: "Total runs finished partitioned by terminal state.",
		}, []string{"state"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imagecrawler_runs_running",
			Help: "Current number of active runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "imagecrawler_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"state"}),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imagecrawler_images_total",
			Help: "Candidates processed per source partitioned by outcome.",
		}, []string{"source", "outcome"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imagecrawler_source_errors_total",
			Help: "ERROR events reported per source.",
		}, []string{"source"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.images,
		s.sourceErrors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageState:
			if evt.State == crawler.StateInitializing {
				s.runsStarted.Inc()
				if s.tracker.start(evt.RunID) {
					s.runsRunning.Inc()
				}
			}
		case progress.StageError:
			s.sourceErrors.WithLabelValues(sourceLabel(evt.Source)).Inc()
		case progress.StageComplete:
			s.handleComplete(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) handleComplete(evt progress.Event) {
	state := string(evt.State)
	s.runsCompleted.WithLabelValues(state).Inc()
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
	stats := evt.Stats
	if stats == nil {
		return
	}
	if !stats.StartedAt.IsZero() && stats.FinishedAt.After(stats.StartedAt) {
		s.runDuration.WithLabelValues(state).Observe(stats.FinishedAt.Sub(stats.StartedAt).Seconds())
	}
	for _, src := range stats.Sources {
		name := sourceLabel(src.Name)
		s.images.WithLabelValues(name, "downloaded").Add(float64(src.Downloaded))
		s.images.WithLabelValues(name, "skipped").Add(float64(src.Skipped))
		s.images.WithLabelValues(name, "errored").Add(float64(src.Errored))
	}
}

func sourceLabel(name string) string {
	if name == "" {
		return "run"
	}
	return name
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
