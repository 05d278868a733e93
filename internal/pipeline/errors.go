package pipeline

import "fmt"

// CycleError reports that the declared stage graph is not a DAG. It is a
// configuration-time error: there is no valid partial order to run.
type CycleError struct {
	Stage string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected in stage graph involving stage %q", e.Stage)
}

// UnknownDependencyError reports a stage that declares a dependency which was
// never registered.
type UnknownDependencyError struct {
	Stage      string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("stage %q depends on unknown stage %q", e.Stage, e.Dependency)
}

// ProcessingError wraps a failure raised by a stage implementation while
// processing one unit. It is recoverable at the batch level.
type ProcessingError struct {
	Stage string
	Unit  Unit
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("stage %q unit %q: %v", e.Stage, e.Unit, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
