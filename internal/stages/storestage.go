// Package stages provides the glue between the scheduler's Stage contract
// and a ResultStore: a StoreStage binds a name, its upstream dependencies, a
// processing function, and the store its completion records live in.
// Concrete pipelines are assembled from these.
package stages

import (
	"context"
	"time"

	"github.com/yungbote/synphys-pipeline/internal/pipeline"
	"github.com/yungbote/synphys-pipeline/internal/store"
)

// ProcessFunc computes the result for one unit and returns the payload to
// persist alongside the completion record. rebuild=true means a stale result
// exists and is about to be replaced.
type ProcessFunc func(ctx context.Context, unit pipeline.Unit, rebuild bool) ([]byte, error)

// UnitsFunc enumerates candidate units from source data, for root stages
// whose units cannot be discovered from upstream completion records.
type UnitsFunc func(ctx context.Context) ([]pipeline.Unit, error)

type StoreStage struct {
	name    string
	deps    []string
	results store.ResultStore
	process ProcessFunc
	units   UnitsFunc
	now     func() time.Time
}

type Option func(*StoreStage)

// WithUnitSource makes the stage enumerate its own candidate units.
func WithUnitSource(fn UnitsFunc) Option {
	return func(s *StoreStage) { s.units = fn }
}

// WithClock overrides the completion-timestamp source. Tests use it to pin
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *StoreStage) { s.now = now }
}

func New(name string, deps []string, results store.ResultStore, process ProcessFunc, opts ...Option) *StoreStage {
	s := &StoreStage{
		name:    name,
		deps:    deps,
		results: results,
		process: process,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StoreStage) Name() string {
	return s.name
}

func (s *StoreStage) Dependencies() []string {
	return s.deps
}

// Process runs the stage's processing function and, on success, records the
// result with a fresh completion timestamp. A failed unit leaves no record,
// so it stays in the ready (or invalid) bucket for the next update.
func (s *StoreStage) Process(ctx context.Context, unit pipeline.Unit, rebuild bool) error {
	payload, err := s.process(ctx, unit, rebuild)
	if err != nil {
		return err
	}
	return s.results.RecordResult(ctx, s.name, unit, payload, s.now().UTC())
}

func (s *StoreStage) FinishedUnits(ctx context.Context) (map[pipeline.Unit]time.Time, error) {
	return s.results.FinishedUnits(ctx, s.name)
}

func (s *StoreStage) DropUnits(ctx context.Context, units []pipeline.Unit) error {
	return s.results.DropUnits(ctx, s.name, units)
}

func (s *StoreStage) DropAll(ctx context.Context) error {
	return s.results.DropAll(ctx, s.name)
}

// KnownUnits satisfies pipeline.UnitSource. Without a configured source it
// reports nothing, which leaves unit discovery to upstream records.
func (s *StoreStage) KnownUnits(ctx context.Context) ([]pipeline.Unit, error) {
	if s.units == nil {
		return nil, nil
	}
	return s.units(ctx)
}
