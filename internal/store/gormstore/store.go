// Package gormstore persists completion records in a relational table via
// gorm, sharing one stage_result table across all stages.
package gormstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/synphys-pipeline/internal/pipeline"
)

// StageResult is one durable analysis result keyed by (stage, unit).
type StageResult struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Stage       string         `gorm:"size:128;not null;uniqueIndex:idx_stage_result_key,priority:1"`
	Unit        string         `gorm:"size:128;not null;uniqueIndex:idx_stage_result_key,priority:2"`
	Payload     datatypes.JSON `gorm:"column:payload"`
	CompletedAt time.Time      `gorm:"not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (StageResult) TableName() string {
	return "stage_result"
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FinishedUnits(ctx context.Context, stage string) (map[pipeline.Unit]time.Time, error) {
	var rows []StageResult
	err := s.db.WithContext(ctx).
		Select("unit", "completed_at").
		Where("stage = ?", stage).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[pipeline.Unit]time.Time, len(rows))
	for _, row := range rows {
		out[pipeline.Unit(row.Unit)] = row.CompletedAt
	}
	return out, nil
}

func (s *Store) RecordResult(ctx context.Context, stage string, unit pipeline.Unit, payload []byte, completedAt time.Time) error {
	row := StageResult{
		ID:          uuid.New(),
		Stage:       stage,
		Unit:        string(unit),
		Payload:     datatypes.JSON(payload),
		CompletedAt: completedAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stage"}, {Name: "unit"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "completed_at", "updated_at"}),
		}).
		Create(&row).Error
}

func (s *Store) DropUnits(ctx context.Context, stage string, units []pipeline.Unit) error {
	if len(units) == 0 {
		return nil
	}
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, string(u))
	}
	return s.db.WithContext(ctx).
		Where("stage = ? AND unit IN ?", stage, ids).
		Delete(&StageResult{}).Error
}

func (s *Store) DropAll(ctx context.Context, stage string) error {
	return s.db.WithContext(ctx).
		Where("stage = ?", stage).
		Delete(&StageResult{}).Error
}
