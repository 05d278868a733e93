// Package store defines the completion-record contract that concrete stage
// implementations persist through, plus backends for it (memory, gorm,
// redis). The scheduler core never touches a ResultStore directly; it only
// sees the Stage interface.
package store

import (
	"context"
	"time"

	"github.com/yungbote/synphys-pipeline/internal/pipeline"
)

// ResultStore holds one durable result per (stage, unit) key, together with
// the completion timestamp that drives staleness classification.
// Implementations must keep reads and writes for distinct keys isolated, so
// concurrent jobs can never interleave writes to the same record.
type ResultStore interface {
	// FinishedUnits returns the completion timestamp of every unit the stage
	// has a stored result for.
	FinishedUnits(ctx context.Context, stage string) (map[pipeline.Unit]time.Time, error)
	// RecordResult durably writes a unit's result payload and completion
	// timestamp, replacing any previous record for the same key.
	RecordResult(ctx context.Context, stage string, unit pipeline.Unit, payload []byte, completedAt time.Time) error
	// DropUnits removes the stored results for the given units.
	DropUnits(ctx context.Context, stage string, units []pipeline.Unit) error
	// DropAll removes every stored result for the stage.
	DropAll(ctx context.Context, stage string) error
}
