// Package app wires the pipeline service: logger, result store, stage
// registry, and scheduler, all driven by Config.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/synphys-pipeline/internal/db"
	"github.com/yungbote/synphys-pipeline/internal/observability"
	"github.com/yungbote/synphys-pipeline/internal/pipeline"
	"github.com/yungbote/synphys-pipeline/internal/platform/logger"
	"github.com/yungbote/synphys-pipeline/internal/stages"
	"github.com/yungbote/synphys-pipeline/internal/store"
	"github.com/yungbote/synphys-pipeline/internal/store/gormstore"
	"github.com/yungbote/synphys-pipeline/internal/store/memstore"
	"github.com/yungbote/synphys-pipeline/internal/store/redisstore"
)

type App struct {
	Config    *Config
	Log       *logger.Logger
	DB        *gorm.DB // nil unless the sqlite/postgres backend is active
	Store     store.ResultStore
	Registry  *pipeline.Registry
	Scheduler *pipeline.Scheduler

	redisClient  *redis.Client
	otelShutdown func(context.Context) error
}

func New(cfg *Config) (*App, error) {
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Config: cfg, Log: log}
	a.otelShutdown = observability.Init(context.Background(), log, observability.Config{
		ServiceName: "synphys-pipeline",
	})

	if err := a.buildStore(); err != nil {
		return nil, err
	}
	if err := a.buildRegistry(); err != nil {
		return nil, err
	}
	a.Scheduler = pipeline.NewScheduler(a.Registry, log)
	return a, nil
}

func (a *App) buildStore() error {
	switch strings.ToLower(a.Config.Store.Backend) {
	case "memory":
		a.Store = memstore.New()
	case "sqlite", "postgres":
		conn, err := db.Open(db.Config{
			Backend: a.Config.Store.Backend,
			DSN:     a.Config.Store.DSN,
		}, a.Log)
		if err != nil {
			return err
		}
		a.DB = conn
		a.Store = gormstore.New(conn)
	case "redis":
		addr := a.Config.Store.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		a.redisClient = redis.NewClient(&redis.Options{Addr: addr})
		a.Store = redisstore.New(a.redisClient, a.Config.Store.RedisPrefix)
	default:
		return fmt.Errorf("unknown store backend %q", a.Config.Store.Backend)
	}
	return nil
}

// buildRegistry turns the configured stage declarations into StoreStages
// over the shared result store and validates the dependency graph. An
// invalid graph (cycle, unknown dependency) aborts startup; there is no
// valid partial pipeline to run.
func (a *App) buildRegistry() error {
	reg := pipeline.NewRegistry()
	for _, sc := range a.Config.Stages {
		var opts []stages.Option
		if len(sc.UnitsCommand) > 0 {
			opts = append(opts, stages.WithUnitSource(stages.CommandUnits(sc.UnitsCommand...)))
		}
		st := stages.New(sc.Name, sc.DependsOn, a.Store, stages.Command(sc.Command...), opts...)
		if err := reg.Register(st); err != nil {
			return fmt.Errorf("register stage %q: %w", sc.Name, err)
		}
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("stage graph: %w", err)
	}
	a.Registry = reg
	return nil
}

func (a *App) Close() {
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
