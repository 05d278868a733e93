package pipeline

import (
	"fmt"
	"sync"
)

// Registry holds the stages of one pipeline. Stages are registered once at
// startup; after Validate succeeds the registry is effectively read-only and
// safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]Stage
	order  []string // registration order, drives deterministic topo ties
}

func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Stage)}
}

// Register adds a stage to the registry. A nil stage, an empty name, or a
// duplicate name is a configuration error. Dependency names are checked
// later, in Validate, because stages may be registered in any order.
func (r *Registry) Register(s Stage) error {
	if s == nil {
		return fmt.Errorf("nil stage")
	}
	name := s.Name()
	if name == "" {
		return fmt.Errorf("stage Name() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stages[name]; exists {
		return fmt.Errorf("stage already registered for name=%s", name)
	}
	r.stages[name] = s
	r.order = append(r.order, name)
	return nil
}

// Validate checks the full dependency relation: every declared dependency
// must be registered and the graph must be acyclic. Call once after all
// stages are registered; an invalid graph has no valid partial order to run.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, err := topoOrder(r.order, r.depsLocked())
	return err
}

// Get returns the stage registered under name.
func (r *Registry) Get(name string) (Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[name]
	return s, ok
}

// AllStages returns every registered stage in topological order: each stage
// appears after all stages it depends on, with ties broken by registration
// order.
func (r *Registry) AllStages() ([]Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, err := topoOrder(r.order, r.depsLocked())
	if err != nil {
		return nil, err
	}
	out := make([]Stage, 0, len(order))
	for _, name := range order {
		out = append(out, r.stages[name])
	}
	return out, nil
}

// DependentsOf returns the names of stages that declare name as a direct
// dependency, in registration order. Used to gauge the downstream impact of
// re-running a stage.
func (r *Registry) DependentsOf(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.stages[name]; !ok {
		return nil, fmt.Errorf("unknown stage %q", name)
	}
	var out []string
	for _, candidate := range r.order {
		for _, dep := range r.stages[candidate].Dependencies() {
			if dep == name {
				out = append(out, candidate)
				break
			}
		}
	}
	return out, nil
}

// transitiveDependents returns name's downstream closure (excluding name
// itself) in topological order, so results can be dropped upstream-first.
func (r *Registry) transitiveDependents(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.stages[name]; !ok {
		return nil, fmt.Errorf("unknown stage %q", name)
	}
	order, err := topoOrder(r.order, r.depsLocked())
	if err != nil {
		return nil, err
	}
	affected := map[string]bool{name: true}
	var out []string
	for _, candidate := range order {
		if candidate == name {
			continue
		}
		for _, dep := range r.stages[candidate].Dependencies() {
			if affected[dep] {
				affected[candidate] = true
				out = append(out, candidate)
				break
			}
		}
	}
	return out, nil
}

// depsLocked snapshots the dependency lists; callers hold r.mu.
func (r *Registry) depsLocked() map[string][]string {
	deps := make(map[string][]string, len(r.order))
	for _, name := range r.order {
		deps[name] = r.stages[name].Dependencies()
	}
	return deps
}

// dependencyStages resolves a stage's declared dependencies to their
// implementations. Validate must have passed for this to be infallible.
func (r *Registry) dependencyStages(s Stage) ([]Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := s.Dependencies()
	out := make([]Stage, 0, len(names))
	for _, name := range names {
		dep, ok := r.stages[name]
		if !ok {
			return nil, &UnknownDependencyError{Stage: s.Name(), Dependency: name}
		}
		out = append(out, dep)
	}
	return out, nil
}
