// Package config holds all scoreflow configuration, loaded from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all scoreflow configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Plan contract
	Plan PlanConfig `yaml:"plan"`

	// Batch execution tuning
	Batch BatchConfig `yaml:"batch"`

	// Plan/run persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PlanConfig describes the canonical plan contract.
type PlanConfig struct {
	RequiredTaskCount int      `yaml:"required_task_count"`
	Dimensions        []string `yaml:"dimensions"`
	PolicyAreas       []string `yaml:"policy_areas"`
	QuestionsPerDim   int      `yaml:"questions_per_dimension"`
}

// BatchConfig configures the batch executor. Durations are Go duration
// strings ("1s", "10m"); zero value means the corresponding limit is off.
type BatchConfig struct {
	DefaultBatchSize     int     `yaml:"default_batch_size"`
	MaxBatchSize         int     `yaml:"max_batch_size"`
	MinBatchSize         int     `yaml:"min_batch_size"`
	ErrorThreshold       float64 `yaml:"error_threshold"`
	MaxRetries           int     `yaml:"max_retries"`
	BackoffBase          string  `yaml:"backoff_base"`
	ItemTimeout          string  `yaml:"item_timeout"`
	BatchDeadline        string  `yaml:"batch_deadline"`
	MaxConcurrentBatches int     `yaml:"max_concurrent_batches"`
}

// parseDuration returns the parsed duration or the fallback when the field
// is empty or malformed.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// BackoffBaseDuration returns the parsed retry backoff base.
func (b BatchConfig) BackoffBaseDuration() time.Duration {
	return parseDuration(b.BackoffBase, time.Second)
}

// ItemTimeoutDuration returns the parsed per-item timeout.
func (b BatchConfig) ItemTimeoutDuration() time.Duration {
	return parseDuration(b.ItemTimeout, 30*time.Second)
}

// BatchDeadlineDuration returns the parsed per-batch deadline.
func (b BatchConfig) BatchDeadlineDuration() time.Duration {
	return parseDuration(b.BatchDeadline, 10*time.Minute)
}

// StoreConfig configures SQLite persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Name:    "scoreflow",
		Version: "1.0.0",
		Plan: PlanConfig{
			RequiredTaskCount: 300,
			Dimensions:        []string{"D1", "D2", "D3", "D4", "D5", "D6"},
			PolicyAreas: []string{
				"PA01", "PA02", "PA03", "PA04", "PA05",
				"PA06", "PA07", "PA08", "PA09", "PA10",
			},
			QuestionsPerDim: 50,
		},
		Batch: BatchConfig{
			DefaultBatchSize:     10,
			MaxBatchSize:         100,
			MinBatchSize:         1,
			ErrorThreshold:       0.5,
			MaxRetries:           2,
			BackoffBase:          "1s",
			ItemTimeout:          "30s",
			BatchDeadline:        "10m",
			MaxConcurrentBatches: 4,
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(".scoreflow", "plans.db"),
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads configuration from the given YAML file, applying defaults for
// absent fields. A missing file returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	b := c.Batch
	if !(1 <= b.MinBatchSize && b.MinBatchSize <= b.DefaultBatchSize && b.DefaultBatchSize <= b.MaxBatchSize) {
		return fmt.Errorf("invalid batch size configuration: min=%d, default=%d, max=%d",
			b.MinBatchSize, b.DefaultBatchSize, b.MaxBatchSize)
	}
	if b.ErrorThreshold < 0.0 || b.ErrorThreshold > 1.0 {
		return fmt.Errorf("error_threshold must be in [0.0, 1.0], got %v", b.ErrorThreshold)
	}
	if b.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", b.MaxRetries)
	}
	if b.MaxConcurrentBatches < 1 {
		return fmt.Errorf("max_concurrent_batches must be at least 1, got %d", b.MaxConcurrentBatches)
	}

	p := c.Plan
	if p.RequiredTaskCount <= 0 {
		return fmt.Errorf("required_task_count must be positive, got %d", p.RequiredTaskCount)
	}
	if len(p.Dimensions) > 0 && p.QuestionsPerDim > 0 &&
		len(p.Dimensions)*p.QuestionsPerDim != p.RequiredTaskCount {
		return fmt.Errorf("plan layout mismatch: %d dimensions x %d questions != %d required tasks",
			len(p.Dimensions), p.QuestionsPerDim, p.RequiredTaskCount)
	}
	return nil
}
