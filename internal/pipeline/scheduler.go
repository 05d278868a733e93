package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/synphys-pipeline/internal/platform/logger"
)

// Scheduler selects stale or missing work for a stage and executes it, either
// sequentially or across a bounded worker pool. It holds no mutable state
// across jobs beyond the immutable job list and the outcome slots; per-unit
// result state lives entirely in the stages' stores.
type Scheduler struct {
	reg    *Registry
	log    *logger.Logger
	tracer trace.Tracer
}

func NewScheduler(reg *Registry, log *logger.Logger) *Scheduler {
	return &Scheduler{
		reg:    reg,
		log:    log.With("component", "Scheduler"),
		tracer: otel.Tracer("synphys-pipeline/scheduler"),
	}
}

// UpdateOptions tunes one Update batch. The zero value means: derive units
// from the staleness partition, no limit, sequential execution, continue past
// per-job failures.
type UpdateOptions struct {
	// Units is the explicit work-unit list. nil derives invalid+ready units
	// from the staleness partition. An explicit empty slice runs nothing.
	Units []Unit
	// Limit truncates the candidate list to at most Limit units after a
	// uniform shuffle, so a bounded sample is not biased toward any ordering.
	Limit int
	// Parallel dispatches jobs across a worker pool instead of in order.
	Parallel bool
	// Workers is the pool size; 0 means one worker per CPU core.
	Workers int
	// OnError selects Continue (default) or Abort.
	OnError ErrorPolicy
	// Rand is the source used for the Limit shuffle. nil uses a time-seeded
	// source; tests inject a fixed seed for deterministic selection.
	Rand *rand.Rand
}

// Update processes stale or missing results for one stage and returns the
// per-job outcome list. No outcome is ever silently dropped: with OnError=
// Continue the list covers every dispatched job, failures included, and the
// returned error is nil. With Abort the first failure is returned as the
// error alongside the outcomes gathered so far.
func (s *Scheduler) Update(ctx context.Context, stageName string, opts UpdateOptions) ([]Outcome, error) {
	stage, ok := s.reg.Get(stageName)
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", stageName)
	}
	deps, err := s.reg.dependencyStages(stage)
	if err != nil {
		return nil, err
	}

	// The partition is recomputed here even when the caller supplies units:
	// it is what tags each job with its rebuild flag.
	summary, err := summarize(ctx, stage, deps)
	if err != nil {
		return nil, err
	}
	invalid := summary.InvalidSet()

	units := opts.Units
	if units == nil {
		units = make([]Unit, 0, len(summary.Invalid)+len(summary.Ready))
		units = append(units, summary.Invalid...)
		units = append(units, summary.Ready...)
		// Descending unit ID, so the most recent experiments run first and
		// batches are reproducible.
		sort.Slice(units, func(i, j int) bool { return units[i] > units[j] })
	}
	units = dedupeUnits(units)
	if opts.Limit > 0 {
		rng := opts.Rand
		if rng == nil {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		rng.Shuffle(len(units), func(i, j int) { units[i], units[j] = units[j], units[i] })
		if len(units) > opts.Limit {
			units = units[:opts.Limit]
		}
	}

	policy := opts.OnError
	switch policy {
	case "":
		policy = Continue
	case Continue, Abort:
	default:
		return nil, fmt.Errorf("unknown error policy %q", policy)
	}
	runID := uuid.New()
	jobs := make([]Job, 0, len(units))
	for i, u := range units {
		jobs = append(jobs, Job{
			Stage:   stageName,
			Unit:    u,
			Rebuild: invalid[u],
			Index:   i,
			Total:   len(units),
		})
	}

	log := s.log.With("stage", stageName, "run_id", runID.String())
	log.Info("Starting update batch",
		"jobs", len(jobs), "parallel", opts.Parallel, "on_error", string(policy))

	ctx, span := s.tracer.Start(ctx, "pipeline.update", trace.WithAttributes(
		attribute.String("pipeline.stage", stageName),
		attribute.Int("pipeline.jobs", len(jobs)),
		attribute.Bool("pipeline.parallel", opts.Parallel),
	))
	defer span.End()

	start := time.Now()
	var outcomes []Outcome
	var runErr error
	if opts.Parallel {
		outcomes, runErr = s.runParallel(ctx, stage, jobs, runID, policy, opts.Workers)
	} else {
		outcomes, runErr = s.runSequential(ctx, stage, jobs, runID, policy)
	}

	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}
	log.Info("Update batch finished",
		"ok", len(outcomes)-failed, "failed", failed, "elapsed", time.Since(start))
	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
	}
	return outcomes, runErr
}

// JobSummary reports the staleness partition for one stage without running
// anything. Useful for dry runs and operator reporting.
func (s *Scheduler) JobSummary(ctx context.Context, stageName string) (*Summary, error) {
	stage, ok := s.reg.Get(stageName)
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", stageName)
	}
	deps, err := s.reg.dependencyStages(stage)
	if err != nil {
		return nil, err
	}
	return summarize(ctx, stage, deps)
}

// Drop removes stored results for units from stageName and from every
// transitive dependent, upstream-first, since downstream results derived from
// the dropped ones are stale by construction.
func (s *Scheduler) Drop(ctx context.Context, stageName string, units []Unit) error {
	stage, ok := s.reg.Get(stageName)
	if !ok {
		return fmt.Errorf("unknown stage %q", stageName)
	}
	downstream, err := s.reg.transitiveDependents(stageName)
	if err != nil {
		return err
	}
	units = dedupeUnits(units)
	if err := stage.DropUnits(ctx, units); err != nil {
		return fmt.Errorf("drop units for stage %q: %w", stageName, err)
	}
	s.log.Info("Dropped units", "stage", stageName, "units", len(units))
	for _, name := range downstream {
		dep, _ := s.reg.Get(name)
		if err := dep.DropUnits(ctx, units); err != nil {
			return fmt.Errorf("drop units for dependent stage %q: %w", name, err)
		}
		s.log.Info("Dropped units", "stage", name, "units", len(units))
	}
	return nil
}

// DropAll removes every stored result for stageName and for every transitive
// dependent.
func (s *Scheduler) DropAll(ctx context.Context, stageName string) error {
	stage, ok := s.reg.Get(stageName)
	if !ok {
		return fmt.Errorf("unknown stage %q", stageName)
	}
	downstream, err := s.reg.transitiveDependents(stageName)
	if err != nil {
		return err
	}
	if err := stage.DropAll(ctx); err != nil {
		return fmt.Errorf("drop all for stage %q: %w", stageName, err)
	}
	s.log.Info("Dropped all results", "stage", stageName)
	for _, name := range downstream {
		dep, _ := s.reg.Get(name)
		if err := dep.DropAll(ctx); err != nil {
			return fmt.Errorf("drop all for dependent stage %q: %w", name, err)
		}
		s.log.Info("Dropped all results", "stage", name)
	}
	return nil
}

// runSequential executes jobs one at a time, committing side effects in job
// order. Cancellation is checked between jobs, never mid-job.
func (s *Scheduler) runSequential(ctx context.Context, stage Stage, jobs []Job, runID uuid.UUID, policy ErrorPolicy) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(jobs))
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		out := s.runJob(ctx, stage, job, runID)
		outcomes = append(outcomes, out)
		if out.Err != nil && policy == Abort {
			return outcomes, out.Err
		}
	}
	return outcomes, nil
}

// runParallel distributes jobs across a bounded worker pool. Completion order
// is not guaranteed, but the returned outcomes are in job order. Under Abort
// the first failure cancels the group: jobs not yet dispatched are skipped,
// jobs already running finish and keep their outcome.
func (s *Scheduler) runParallel(ctx context.Context, stage Stage, jobs []Job, runID uuid.UUID, policy ErrorPolicy, workers int) ([]Outcome, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	slots := make([]*Outcome, len(jobs))
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			// The job runs with the caller's context, not the group's: an
			// Abort cancels gctx to stop dispatching, and must not preempt
			// jobs already in flight.
			out := s.runJob(ctx, stage, job, runID)
			slots[i] = &out
			if out.Err != nil && policy == Abort {
				return out.Err
			}
			return nil
		})
	}
	err := g.Wait()

	outcomes := make([]Outcome, 0, len(jobs))
	for _, o := range slots {
		if o != nil {
			outcomes = append(outcomes, *o)
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	return outcomes, err
}

func (s *Scheduler) runJob(ctx context.Context, stage Stage, job Job, runID uuid.UUID) Outcome {
	log := s.log.With("stage", job.Stage, "unit", string(job.Unit), "run_id", runID.String())
	log.Info("Processing unit", "index", job.Index+1, "total", job.Total, "rebuild", job.Rebuild)

	ctx, span := s.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("pipeline.stage", job.Stage),
		attribute.String("pipeline.unit", string(job.Unit)),
		attribute.Bool("pipeline.rebuild", job.Rebuild),
	))
	defer span.End()

	start := time.Now()
	err := safeProcess(ctx, stage, job)
	elapsed := time.Since(start)

	out := Outcome{Job: job, RunID: runID, Duration: elapsed}
	if err != nil {
		out.Err = &ProcessingError{Stage: job.Stage, Unit: job.Unit, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Unit failed", "index", job.Index+1, "total", job.Total, "elapsed", elapsed, "error", err)
		return out
	}
	log.Info("Finished unit", "index", job.Index+1, "total", job.Total, "elapsed", elapsed)
	return out
}

// safeProcess isolates panics from a stage implementation so one bad unit
// cannot take down the batch.
func safeProcess(ctx context.Context, stage Stage, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing unit %q: %v", job.Unit, r)
		}
	}()
	return stage.Process(ctx, job.Unit, job.Rebuild)
}

// dedupeUnits drops repeated units while preserving first-occurrence order.
// Two jobs for the same (stage, unit) must never run concurrently.
func dedupeUnits(units []Unit) []Unit {
	seen := make(map[Unit]bool, len(units))
	out := make([]Unit, 0, len(units))
	for _, u := range units {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
