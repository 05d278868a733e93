package pipeline

// topoOrder produces a topological ordering of stage names: every stage
// appears after all stages it depends on. Ties are broken by registration
// order, so repeated calls over the same registry return the same order, not
// merely a valid one.
//
// Returns UnknownDependencyError if a stage declares a dependency that is not
// in names, and CycleError if the dependency relation contains a cycle.
func topoOrder(names []string, deps map[string][]string) ([]string, error) {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for _, n := range names {
		for _, d := range deps[n] {
			if !known[d] {
				return nil, &UnknownDependencyError{Stage: n, Dependency: d}
			}
		}
	}

	// Kahn's algorithm, stable by registration order.
	deg := make(map[string]int, len(names))
	out := make(map[string][]string, len(names))
	for _, n := range names {
		deg[n] = len(deps[n])
		for _, d := range deps[n] {
			out[d] = append(out[d], n)
		}
	}

	order := make([]string, 0, len(names))
	added := make(map[string]bool, len(names))
	for {
		progressed := false
		for _, n := range names {
			if added[n] || deg[n] != 0 {
				continue
			}
			added[n] = true
			order = append(order, n)
			for _, m := range out[n] {
				deg[m]--
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}

	if len(order) != len(names) {
		return nil, &CycleError{Stage: cycleStage(names, deps, added)}
	}
	return order, nil
}

// cycleStage walks the unresolved remainder of the graph and names a stage
// that actually sits on a cycle, rather than one merely downstream of it.
func cycleStage(names []string, deps map[string][]string, resolved map[string]bool) string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(names))
	var hit string

	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = grey
		for _, d := range deps[n] {
			if resolved[d] {
				continue
			}
			switch color[d] {
			case grey:
				hit = d
				return true
			case white:
				if visit(d) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}

	for _, n := range names {
		if !resolved[n] && color[n] == white {
			if visit(n) {
				return hit
			}
		}
	}
	// Unreachable when callers pass a graph that failed the Kahn pass, but
	// fall back to the first unresolved stage rather than an empty name.
	for _, n := range names {
		if !resolved[n] {
			return n
		}
	}
	return ""
}
