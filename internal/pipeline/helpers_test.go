package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/synphys-pipeline/internal/pipeline"
	"github.com/yungbote/synphys-pipeline/internal/platform/logger"
	"github.com/yungbote/synphys-pipeline/internal/stages"
	"github.com/yungbote/synphys-pipeline/internal/store"
)

func okProcess(ctx context.Context, unit pipeline.Unit, rebuild bool) ([]byte, error) {
	return nil, nil
}

func newStage(name string, deps []string, rs store.ResultStore, opts ...stages.Option) *stages.StoreStage {
	return stages.New(name, deps, rs, okProcess, opts...)
}

func mustRegister(t *testing.T, reg *pipeline.Registry, st pipeline.Stage) {
	t.Helper()
	if err := reg.Register(st); err != nil {
		t.Fatalf("register %s: %v", st.Name(), err)
	}
}

// seed writes a completion record directly into the store, bypassing
// Process, so tests control the timestamp.
func seed(t *testing.T, rs store.ResultStore, stage string, unit pipeline.Unit, ts time.Time) {
	t.Helper()
	if err := rs.RecordResult(context.Background(), stage, unit, nil, ts); err != nil {
		t.Fatalf("seed %s/%s: %v", stage, unit, err)
	}
}

func newScheduler(reg *pipeline.Registry) *pipeline.Scheduler {
	return pipeline.NewScheduler(reg, logger.NewNop())
}

func unitsEqual(a []pipeline.Unit, b ...pipeline.Unit) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
