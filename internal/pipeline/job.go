package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// ErrorPolicy controls how a batch reacts to a single job's failure.
type ErrorPolicy string

const (
	// Continue records the failure against the job and moves on. This is the
	// default: one bad experiment should not block the rest of the batch.
	Continue ErrorPolicy = "continue"
	// Abort stops scheduling new jobs after the first failure and returns the
	// error to the caller. Jobs already dispatched to workers run to
	// completion; nothing is preempted.
	Abort ErrorPolicy = "abort"
)

// Job pairs a stage with one work unit, plus run metadata. Jobs are
// ephemeral: built immediately before dispatch, discarded once their outcome
// is recorded. Results live in the stage's store, never in the Job.
type Job struct {
	Stage string
	Unit  Unit
	// Rebuild means a prior, now-invalid result exists and must be replaced.
	Rebuild bool
	// Index/Total position the job within its batch for progress reporting.
	Index int
	Total int
}

// Outcome is the per-job result of an update batch. Err is nil on success
// and a *ProcessingError on failure.
type Outcome struct {
	Job
	RunID    uuid.UUID
	Err      error
	Duration time.Duration
}

// Failed reports whether the job ended in error.
func (o Outcome) Failed() bool {
	return o.Err != nil
}
