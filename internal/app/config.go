package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/synphys-pipeline/internal/platform/envutil"
)

// Config is the pipeline service configuration, loaded from an optional YAML
// file with environment-variable overrides on top.
type Config struct {
	Log      LogConfig     `yaml:"log"`
	Store    StoreConfig   `yaml:"store"`
	Defaults Defaults      `yaml:"defaults"`
	Stages   []StageConfig `yaml:"stages"`
}

type LogConfig struct {
	Mode  string `yaml:"mode"`  // dev | prod
	Level string `yaml:"level"` // debug | info | warn | error
}

type StoreConfig struct {
	// Backend is memory, sqlite, postgres, or redis.
	Backend string `yaml:"backend"`
	// DSN is the postgres connection string or sqlite file path.
	DSN string `yaml:"dsn"`
	// RedisAddr / RedisPrefix apply to the redis backend only.
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type Defaults struct {
	Workers int    `yaml:"workers"`
	OnError string `yaml:"on_error"` // continue | abort
}

// StageConfig declares one pipeline stage: its upstream dependencies and the
// analysis command executed once per work unit. Root stages usually also
// declare a units command that enumerates candidate units from source data.
type StageConfig struct {
	Name         string   `yaml:"name"`
	DependsOn    []string `yaml:"depends_on"`
	Command      []string `yaml:"command"`
	UnitsCommand []string `yaml:"units_command"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Log:   LogConfig{Mode: "dev", Level: "info"},
		Store: StoreConfig{Backend: "sqlite"},
	}
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Log.Mode = envutil.String("SYNPHYS_LOG_MODE", c.Log.Mode)
	c.Log.Level = envutil.String("SYNPHYS_LOG_LEVEL", c.Log.Level)
	c.Store.Backend = envutil.String("SYNPHYS_STORE_BACKEND", c.Store.Backend)
	c.Store.DSN = envutil.String("SYNPHYS_DB_DSN", c.Store.DSN)
	c.Store.RedisAddr = envutil.String("SYNPHYS_REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPrefix = envutil.String("SYNPHYS_REDIS_PREFIX", c.Store.RedisPrefix)
	c.Defaults.Workers = envutil.Int("SYNPHYS_WORKERS", c.Defaults.Workers)
	c.Defaults.OnError = envutil.String("SYNPHYS_ON_ERROR", c.Defaults.OnError)
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Store.Backend) {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch strings.ToLower(c.Defaults.OnError) {
	case "", "continue", "abort":
	default:
		return fmt.Errorf("unknown on_error policy %q", c.Defaults.OnError)
	}
	seen := map[string]bool{}
	for i, sc := range c.Stages {
		if strings.TrimSpace(sc.Name) == "" {
			return fmt.Errorf("stages[%d]: missing name", i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("stages[%d]: duplicate stage name %q", i, sc.Name)
		}
		seen[sc.Name] = true
		if len(sc.Command) == 0 {
			return fmt.Errorf("stage %q: missing command", sc.Name)
		}
	}
	return nil
}
