package pipeline

import (
	"context"
	"time"
)

// Unit identifies one independently processable piece of input, typically an
// experiment ID. Units are opaque to the scheduler; they only need to be
// comparable and sortable.
type Unit string

/*
Stage is the contract between the scheduler and one phase of the analysis
pipeline. A stage owns the results it produces and the store queries behind
them; the scheduler never inlines stage-specific logic.

Semantics:
  - Name is the stage's identity and must be unique within a Registry.
  - Dependencies returns the names of upstream stages whose results this
    stage consumes. The relation over all registered stages must be acyclic.
  - Process computes and persists the result for one unit. rebuild=true means
    a prior, now-stale result exists and must be replaced rather than created.
  - FinishedUnits reports the completion timestamp of every unit this stage
    has successfully processed. Timestamps drive staleness classification, so
    they must come from the persistent store, not from process memory.
  - DropUnits / DropAll remove stored results, used for forced rebuilds.
*/
type Stage interface {
	Name() string
	Dependencies() []string
	Process(ctx context.Context, unit Unit, rebuild bool) error
	FinishedUnits(ctx context.Context) (map[Unit]time.Time, error)
	DropUnits(ctx context.Context, units []Unit) error
	DropAll(ctx context.Context) error
}

// UnitSource is an optional capability for stages that can enumerate their
// candidate units from source data (typically root stages with no
// dependencies, whose units cannot be discovered from upstream records).
// Returning an empty slice means the stage has nothing to enumerate.
type UnitSource interface {
	KnownUnits(ctx context.Context) ([]Unit, error)
}
