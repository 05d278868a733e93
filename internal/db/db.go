// Package db opens the relational database behind the gorm-backed result
// store. Postgres for shared deployments, sqlite for local analysis runs.
package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/synphys-pipeline/internal/platform/logger"
	"github.com/yungbote/synphys-pipeline/internal/store/gormstore"
)

type Config struct {
	// Backend is "postgres" or "sqlite".
	Backend string
	// DSN is the postgres connection string, or the sqlite file path
	// (":memory:" works for throwaway runs).
	DSN string
}

func Open(cfg Config, log *logger.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		path := cfg.DSN
		if path == "" {
			path = "synphys-pipeline.db"
		}
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unknown db backend %q", cfg.Backend)
	}

	log.Info("Connecting to database...", "backend", cfg.Backend)
	conn, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Backend, err)
	}

	log.Info("Migrating result tables...")
	if err := conn.AutoMigrate(&gormstore.StageResult{}); err != nil {
		return nil, fmt.Errorf("migrate stage_result: %w", err)
	}
	return conn, nil
}
