package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"
)

/*
Summary is the three-way staleness partition for one stage at one point in
time:

  - Finished: the stage has a result for the unit and no dependency has
    reprocessed it since.
  - Invalid: the stage has a result for the unit, but it is stale; either some
    dependency finished the unit more recently, or a dependency's result for
    the unit no longer exists.
  - Ready: the stage has no result for the unit and every dependency has one,
    so the unit can be processed now.

Units for which some dependency has no result are not processable by this
stage and appear in none of the three lists. The partition is recomputed on
every call; the underlying stores may change between calls, so it is never
cached. Lists are sorted ascending by unit ID.
*/
type Summary struct {
	Finished []Unit
	Invalid  []Unit
	Ready    []Unit
}

// InvalidSet returns the Invalid list as a set, for rebuild-flag lookups.
func (s *Summary) InvalidSet() map[Unit]bool {
	out := make(map[Unit]bool, len(s.Invalid))
	for _, u := range s.Invalid {
		out[u] = true
	}
	return out
}

// summarize computes the staleness partition for stage given its resolved
// dependency stages.
func summarize(ctx context.Context, stage Stage, deps []Stage) (*Summary, error) {
	own, err := stage.FinishedUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("finished units for stage %q: %w", stage.Name(), err)
	}
	depFinished, err := dependencyFinished(ctx, deps)
	if err != nil {
		return nil, err
	}

	seen := make(map[Unit]bool, len(own)+len(depFinished))
	candidates := make([]Unit, 0, len(own)+len(depFinished))
	add := func(u Unit) {
		if !seen[u] {
			seen[u] = true
			candidates = append(candidates, u)
		}
	}
	for u := range own {
		add(u)
	}
	for u := range depFinished {
		add(u)
	}
	if src, ok := stage.(UnitSource); ok {
		known, err := src.KnownUnits(ctx)
		if err != nil {
			return nil, fmt.Errorf("known units for stage %q: %w", stage.Name(), err)
		}
		for _, u := range known {
			add(u)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	summary := &Summary{}
	for _, u := range candidates {
		ownTS, hasOwn := own[u]
		depTS, allDepsDone := depFinished[u]
		switch {
		case hasOwn && len(deps) == 0:
			// A root stage's results can never be invalidated from upstream.
			summary.Finished = append(summary.Finished, u)
		case hasOwn && allDepsDone && !depTS.After(ownTS):
			summary.Finished = append(summary.Finished, u)
		case hasOwn:
			// Some dependency reprocessed the unit after this stage last ran,
			// or dropped its result entirely. Either way ours is stale.
			summary.Invalid = append(summary.Invalid, u)
		case allDepsDone || len(deps) == 0:
			summary.Ready = append(summary.Ready, u)
		default:
			// Not all dependencies have finished this unit; it is not yet
			// processable and belongs to no bucket.
		}
	}
	return summary, nil
}

// dependencyFinished merges the dependencies' completion records: a unit is
// included only when every dependency has finished it, and its timestamp is
// the most recent across dependencies.
func dependencyFinished(ctx context.Context, deps []Stage) (map[Unit]time.Time, error) {
	out := make(map[Unit]time.Time)
	if len(deps) == 0 {
		return out, nil
	}
	counts := make(map[Unit]int)
	latest := make(map[Unit]time.Time)
	for _, dep := range deps {
		finished, err := dep.FinishedUnits(ctx)
		if err != nil {
			return nil, fmt.Errorf("finished units for dependency %q: %w", dep.Name(), err)
		}
		for u, ts := range finished {
			counts[u]++
			if ts.After(latest[u]) {
				latest[u] = ts
			}
		}
	}
	for u, n := range counts {
		if n == len(deps) {
			out[u] = latest[u]
		}
	}
	return out, nil
}
