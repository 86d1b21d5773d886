package progress

import (
	"errors"
	"fmt"
	"time"
)

// Kind denotes which lifecycle milestone an Event represents.
type Kind string

// Supported event kinds.
const (
	KindRunReset   Kind = "RUN_RESET"
	KindStageStart Kind = "STAGE_START"
	KindStageDone  Kind = "STAGE_DONE"
	KindStageError Kind = "STAGE_ERROR"
)

// Event captures a single pipeline milestone.
type Event struct {
	// RunID identifies the run that produced the event.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS   time.Time
	Kind Kind
	// Stage is the 1-based stage number; zero for run-level events.
	Stage int
	// Step and Progress mirror the job state after the transition.
	Step     string
	Progress int
	// Dur is the stage wall time for done and error events.
	Dur time.Duration
	// ModelCalls is the budget count when the event was emitted.
	ModelCalls int
	// Note carries low-volume context such as the error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindRunReset:
	case KindStageStart, KindStageDone, KindStageError:
		if e.Stage < 1 || e.Stage > 4 {
			return fmt.Errorf("stage %d out of range", e.Stage)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
