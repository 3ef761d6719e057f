package progress

import (
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

// Reporter stamps events with a run ID and timestamp before emitting them.
// A nil Reporter, or one without an emitter, discards everything.
type Reporter struct {
	emitter Emitter
	runID   [16]byte
	now     func() time.Time
}

// NewReporter binds emitter to one run.
func NewReporter(emitter Emitter, runID uuid.UUID, clock crawler.Clock) *Reporter {
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	return &Reporter{emitter: emitter, runID: UUIDToBytes(runID), now: now}
}

func (r *Reporter) emit(evt Event) {
	if r == nil || r.emitter == nil {
		return
	}
	evt.RunID = r.runID
	evt.TS = r.now()
	r.emitter.Emit(evt)
}

// Log emits a LOG event; source may be empty for run-wide messages.
func (r *Reporter) Log(level, source, message string) {
	r.emit(Event{Stage: StageLog, Level: level, Source: source, Message: message})
}

// Progress emits running totals for one source.
func (r *Reporter) Progress(source string, discovered, downloaded, requested int) {
	r.emit(Event{
		Stage:      StageProgress,
		Source:     source,
		Discovered: discovered,
		Downloaded: downloaded,
		Requested:  requested,
	})
}

// Error emits an ERROR event.
func (r *Reporter) Error(source, message, details string) {
	r.emit(Event{Stage: StageError, Source: source, Message: message, Details: details})
}

// State emits a lifecycle transition.
func (r *Reporter) State(state crawler.RunState) {
	r.emit(Event{Stage: StageState, State: state, Message: string(state)})
}

// Complete emits the terminal summary.
func (r *Reporter) Complete(stats crawler.RunStats) {
	snapshot := stats.Clone()
	r.emit(Event{Stage: StageComplete, State: stats.State, Stats: &snapshot})
}

// ForSource returns a reporter scoped to one source name.
func (r *Reporter) ForSource(name string) *SourceReporter {
	return &SourceReporter{parent: r, source: name}
}

// SourceReporter is the event sink handed to a single adapter.
type SourceReporter struct {
	parent *Reporter
	source string
}

// Log emits a LOG event attributed to the source.
func (s *SourceReporter) Log(level, message string) {
	if s == nil {
		return
	}
	s.parent.Log(level, s.source, message)
}

// Error emits an ERROR event attributed to the source.
func (s *SourceReporter) Error(message, details string) {
	if s == nil {
		return
	}
	s.parent.Error(s.source, message, details)
}
