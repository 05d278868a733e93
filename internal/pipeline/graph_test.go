package pipeline_test

import (
	"errors"
	"testing"

	"github.com/yungbote/synphys-pipeline/internal/pipeline"
	"github.com/yungbote/synphys-pipeline/internal/store/memstore"
)

func TestAllStagesPlacesEveryStageAfterItsDependencies(t *testing.T) {
	rs := memstore.New()
	reg := pipeline.NewRegistry()
	mustRegister(t, reg, newStage("experiment", nil, rs))
	mustRegister(t, reg, newStage("dataset", []string{"experiment"}, rs))
	mustRegister(t, reg, newStage("pulse_response", []string{"dataset"}, rs))
	mustRegister(t, reg, newStage("connection_strength", []string{"dataset", "pulse_response"}, rs))

	order, err := reg.AllStages()
	if err != nil {
		t.Fatalf("AllStages: %v", err)
	}
	pos := map[string]int{}
	for i, st := range order {
		pos[st.Name()] = i
	}
	for _, st := range order {
		for _, dep := range st.Dependencies() {
			if pos[dep] >= pos[st.Name()] {
				t.Fatalf("stage %s at %d before dependency %s at %d", st.Name(), pos[st.Name()], dep, pos[dep])
			}
		}
	}
}

func TestAllStagesIsDeterministicAcrossCalls(t *testing.T) {
	rs := memstore.New()
	reg := pipeline.NewRegistry()
	// Independent stages: no ordering constraint between them, so the tie
	// break (registration order) decides.
	mustRegister(t, reg, newStage("zeta", nil, rs))
	mustRegister(t, reg, newStage("yankee", nil, rs))
	mustRegister(t, reg, newStage("xray", nil, rs))

	want := []string{"zeta", "yankee", "xray"}
	for i := 0; i < 10; i++ {
		order, err := reg.AllStages()
		if err != nil {
			t.Fatalf("AllStages call %d: %v", i, err)
		}
		for j, st := range order {
			if st.Name() != want[j] {
				t.Fatalf("call %d: got %s at %d, want %s", i, st.Name(), j, want[j])
			}
		}
	}
}

func TestCycleFailsValidationAndNamesAParticipant(t *testing.T) {
	rs := memstore.New()
	reg := pipeline.NewRegistry()
	mustRegister(t, reg, newStage("a", []string{"c"}, rs))
	mustRegister(t, reg, newStage("b", []string{"a"}, rs))
	mustRegister(t, reg, newStage("c", []string{"b"}, rs))
	// Downstream of the cycle, but not on it.
	mustRegister(t, reg, newStage("d", []string{"c"}, rs))

	err := reg.Validate()
	var cerr *pipeline.CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	switch cerr.Stage {
	case "a", "b", "c":
	default:
		t.Fatalf("CycleError names %q, which is not on the cycle", cerr.Stage)
	}

	if order, err := reg.AllStages(); err == nil {
		t.Fatalf("AllStages returned a partial order of %d stages for a cyclic graph", len(order))
	}
}

func TestUnknownDependencyFailsValidation(t *testing.T) {
	rs := memstore.New()
	reg := pipeline.NewRegistry()
	mustRegister(t, reg, newStage("dataset", []string{"experiment"}, rs))

	err := reg.Validate()
	var uerr *pipeline.UnknownDependencyError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UnknownDependencyError, got %v", err)
	}
	if uerr.Stage != "dataset" || uerr.Dependency != "experiment" {
		t.Fatalf("unexpected error fields: %+v", uerr)
	}
}

func TestDependentsOf(t *testing.T) {
	rs := memstore.New()
	reg := pipeline.NewRegistry()
	mustRegister(t, reg, newStage("experiment", nil, rs))
	mustRegister(t, reg, newStage("dataset", []string{"experiment"}, rs))
	mustRegister(t, reg, newStage("morphology", []string{"experiment"}, rs))
	mustRegister(t, reg, newStage("pulse_response", []string{"dataset"}, rs))

	got, err := reg.DependentsOf("experiment")
	if err != nil {
		t.Fatalf("DependentsOf: %v", err)
	}
	if len(got) != 2 || got[0] != "dataset" || got[1] != "morphology" {
		t.Fatalf("unexpected dependents: %v", got)
	}

	if _, err := reg.DependentsOf("nope"); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
}

func TestRegisterRejectsDuplicatesAndNil(t *testing.T) {
	rs := memstore.New()
	reg := pipeline.NewRegistry()
	mustRegister(t, reg, newStage("experiment", nil, rs))

	if err := reg.Register(newStage("experiment", nil, rs)); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := reg.Register(nil); err == nil {
		t.Fatalf("expected nil stage registration to fail")
	}
	if err := reg.Register(newStage("", nil, rs)); err == nil {
		t.Fatalf("expected empty-name registration to fail")
	}
}
