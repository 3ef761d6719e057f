// Package progress defines the event structures emitted during a crawl run.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

// Stage denotes the kind of event.
type Stage string

// Supported stages.
const (
	StageLog      Stage = "LOG"
	StageProgress Stage = "PROGRESS"
	StageError    Stage = "ERROR"
	StageState    Stage = "STATE"
	StageComplete Stage = "COMPLETE"
)

// Log levels carried by LOG events.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Event captures a single observation about a run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Level applies to LOG events.
	Level string
	// Source scopes the event to one image source; empty for run-wide events.
	Source  string
	Message string
	// Details carries low-volume context for ERROR events.
	Details string
	// Discovered, Downloaded, and Requested are running totals for the source
	// on PROGRESS events.
	Discovered int
	Downloaded int
	Requested  int
	// State is set on STATE and COMPLETE events.
	State crawler.RunState
	// Stats is the terminal summary on COMPLETE events.
	Stats *crawler.RunStats
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageLog:
		if e.Message == "" {
			return errors.New("log requires message")
		}
	case StageError:
		if e.Message == "" {
			return errors.New("error requires message")
		}
	case StageProgress:
		if e.Source == "" {
			return errors.New("progress requires source")
		}
	case StageState:
		if e.State == "" {
			return errors.New("state event requires state")
		}
	case StageComplete:
		if e.Stats == nil {
			return errors.New("complete requires stats")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}

// Critical events are never dropped under backpressure.
func (e Event) Critical() bool {
	return e.Stage == StageComplete || e.Stage == StageError || e.Stage == StageState
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
