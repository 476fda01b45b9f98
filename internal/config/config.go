// Package config loads springtally settings from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/springtally/internal/batch"
	"github.com/rcliao/springtally/internal/model"
)

// Config holds all springtally configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig configures counting and aggregation.
type EngineConfig struct {
	Workers      int `yaml:"workers"` // 0 means one per CPU
	BatchSize    int `yaml:"batch_size"`
	UnfoldFactor int `yaml:"unfold_factor"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	CacheLines   bool   `yaml:"cache_lines"` // persist per-line counts across runs
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

var validLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Workers:      0,
			BatchSize:    batch.DefaultSize,
			UnfoldFactor: model.DefaultUnfoldFactor,
		},
		Store: StoreConfig{
			CacheLines: true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "json",
		},
	}
}

// DefaultPath returns ~/.springtally/config.yaml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".springtally", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects settings the solver cannot run with.
func (c *Config) Validate() error {
	if c.Engine.UnfoldFactor < 1 {
		return fmt.Errorf("engine.unfold_factor must be at least 1, got %d", c.Engine.UnfoldFactor)
	}
	if c.Engine.BatchSize < 0 {
		return fmt.Errorf("engine.batch_size must not be negative, got %d", c.Engine.BatchSize)
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must not be negative, got %d", c.Engine.Workers)
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level %q (valid: debug, info, warn, error)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid logging.format %q (valid: json, text)", c.Logging.Format)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if path := os.Getenv("SPRINGTALLY_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if w := os.Getenv("SPRINGTALLY_WORKERS"); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil {
			return fmt.Errorf("invalid SPRINGTALLY_WORKERS %q: %w", w, err)
		}
		c.Engine.Workers = n
	}
	if lvl := os.Getenv("SPRINGTALLY_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	return nil
}
