package stages_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/synphys-pipeline/internal/pipeline"
	"github.com/yungbote/synphys-pipeline/internal/stages"
	"github.com/yungbote/synphys-pipeline/internal/store/memstore"
)

func TestProcessRecordsResultOnSuccess(t *testing.T) {
	rs := memstore.New()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	st := stages.New("pulse_response", nil, rs,
		func(ctx context.Context, unit pipeline.Unit, rebuild bool) ([]byte, error) {
			return []byte(`{"amplitude": 0.4}`), nil
		},
		stages.WithClock(func() time.Time { return fixed }))

	if err := st.Process(context.Background(), "exp1", false); err != nil {
		t.Fatalf("Process: %v", err)
	}

	finished, err := st.FinishedUnits(context.Background())
	if err != nil {
		t.Fatalf("FinishedUnits: %v", err)
	}
	ts, ok := finished["exp1"]
	if !ok {
		t.Fatalf("expected a completion record for exp1")
	}
	if !ts.Equal(fixed) {
		t.Fatalf("expected completion timestamp %v, got %v", fixed, ts)
	}
	payload, ok := rs.Payload("pulse_response", "exp1")
	if !ok || string(payload) != `{"amplitude": 0.4}` {
		t.Fatalf("unexpected payload: %q (found=%v)", payload, ok)
	}
}

func TestProcessLeavesNoRecordOnFailure(t *testing.T) {
	rs := memstore.New()
	boom := errors.New("fit diverged")
	st := stages.New("connection_strength", nil, rs,
		func(ctx context.Context, unit pipeline.Unit, rebuild bool) ([]byte, error) {
			return nil, boom
		})

	if err := st.Process(context.Background(), "exp1", false); !errors.Is(err, boom) {
		t.Fatalf("expected the processing error, got %v", err)
	}
	finished, err := st.FinishedUnits(context.Background())
	if err != nil {
		t.Fatalf("FinishedUnits: %v", err)
	}
	if len(finished) != 0 {
		t.Fatalf("expected no records after failure, got %v", finished)
	}
}

func TestKnownUnitsWithoutSource(t *testing.T) {
	rs := memstore.New()
	st := stages.New("experiment", nil, rs,
		func(ctx context.Context, unit pipeline.Unit, rebuild bool) ([]byte, error) {
			return nil, nil
		})

	units, err := st.KnownUnits(context.Background())
	if err != nil {
		t.Fatalf("KnownUnits: %v", err)
	}
	if units != nil {
		t.Fatalf("expected no units without a source, got %v", units)
	}
}

func TestKnownUnitsWithSource(t *testing.T) {
	rs := memstore.New()
	st := stages.New("experiment", nil, rs,
		func(ctx context.Context, unit pipeline.Unit, rebuild bool) ([]byte, error) {
			return nil, nil
		},
		stages.WithUnitSource(func(ctx context.Context) ([]pipeline.Unit, error) {
			return []pipeline.Unit{"e1", "e2"}, nil
		}))

	units, err := st.KnownUnits(context.Background())
	if err != nil {
		t.Fatalf("KnownUnits: %v", err)
	}
	if len(units) != 2 || units[0] != "e1" || units[1] != "e2" {
		t.Fatalf("unexpected units: %v", units)
	}
}
