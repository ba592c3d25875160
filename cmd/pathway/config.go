package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rendis/pathway/internal/complexity"
	"github.com/rendis/pathway/internal/generation"
	"github.com/rendis/pathway/internal/refinement"
)

// Config holds all pathway configuration.
// Priority: env vars (incl. .env) > settings.yaml > defaults.
type Config struct {
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
	DBPath    string        `yaml:"db_path"` // empty disables persistence
	RedisURL  string        `yaml:"redis_url"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`

	Model   generation.ModelConfig   `yaml:"model"`
	Breaker generation.BreakerConfig `yaml:"breaker"`
	Engine  refinement.Config        `yaml:"engine"`
	Scorer  complexity.Config        `yaml:"scorer"`

	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// MaintenanceConfig schedules store housekeeping.
type MaintenanceConfig struct {
	PruneCron  string        `yaml:"prune_cron"`
	VacuumCron string        `yaml:"vacuum_cron"`
	MaxAge     time.Duration `yaml:"max_age"` // sessions idle longer are pruned
}

func defaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		DBPath:    "file:" + filepath.Join(pathwayDir(), "pathway.db"),
		CacheTTL:  24 * time.Hour,
		Model: generation.ModelConfig{
			Model:   "gpt-4o-mini",
			Timeout: 2 * time.Minute,
		},
		Breaker: generation.DefaultBreakerConfig(),
		Engine:  refinement.DefaultConfig(),
		Scorer:  complexity.DefaultConfig(),
		Maintenance: MaintenanceConfig{
			PruneCron:  "0 3 * * *",
			VacuumCron: "@weekly",
			MaxAge:     30 * 24 * time.Hour,
		},
	}
}

func pathwayDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pathway"
	}
	return filepath.Join(home, ".pathway")
}

func settingsPath() string {
	return filepath.Join(pathwayDir(), "settings.yaml")
}

// loadConfig layers defaults, the settings file and the environment.
// A missing settings file or .env is not an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = settingsPath()
	}

	// Layer 2: settings.yaml.
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	// Layer 3: .env, then env vars override. godotenv never replaces
	// variables already set in the process environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Engine.Validate(); err != nil {
		return Config{}, fmt.Errorf("engine config: %w", err)
	}
	if err := cfg.Scorer.Validate(); err != nil {
		return Config{}, fmt.Errorf("scorer config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PATHWAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PATHWAY_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v, ok := os.LookupEnv("PATHWAY_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v := os.Getenv("PATHWAY_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("PATHWAY_MODEL"); v != "" {
		cfg.Model.Model = v
	}
	if v := os.Getenv("PATHWAY_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	cfg.Model.APIKey = firstNonEmpty(os.Getenv("PATHWAY_API_KEY"), os.Getenv("OPENAI_API_KEY"), cfg.Model.APIKey)

	if v := os.Getenv("PATHWAY_STRICT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PATHWAY_STRICT: %w", err)
		}
		cfg.Engine.Strict = b
	}
	if v := os.Getenv("PATHWAY_HISTORY_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PATHWAY_HISTORY_CAPACITY: %w", err)
		}
		cfg.Engine.HistoryCapacity = n
	}
	if v := os.Getenv("PATHWAY_MAX_DROP_FRACTION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PATHWAY_MAX_DROP_FRACTION: %w", err)
		}
		cfg.Engine.MaxDropFraction = f
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.RedisURL != new.RedisURL {
		d.RestartNeeded = append(d.RestartNeeded, "redis_url")
	}
	if old.Model != new.Model {
		d.RestartNeeded = append(d.RestartNeeded, "model")
	}
	if old.Engine.Strict != new.Engine.Strict ||
		old.Engine.MaxDropFraction != new.Engine.MaxDropFraction ||
		old.Engine.HistoryCapacity != new.Engine.HistoryCapacity ||
		old.Engine.ReorganizeThreshold != new.Engine.ReorganizeThreshold {
		d.RestartNeeded = append(d.RestartNeeded, "engine")
	}
	return d
}
