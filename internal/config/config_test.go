package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 300, cfg.Plan.RequiredTaskCount)
	assert.Len(t, cfg.Plan.Dimensions, 6)
	assert.Len(t, cfg.Plan.PolicyAreas, 10)
	assert.Equal(t, 50, cfg.Plan.QuestionsPerDim)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Plan.RequiredTaskCount, cfg.Plan.RequiredTaskCount)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
batch:
  default_batch_size: 25
  max_batch_size: 50
  min_batch_size: 2
  error_threshold: 0.3
  max_retries: 1
  backoff_base: "250ms"
  item_timeout: "5s"
  batch_deadline: "2m"
  max_concurrent_batches: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Batch.DefaultBatchSize)
	assert.Equal(t, 0.3, cfg.Batch.ErrorThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.BackoffBaseDuration())
	assert.Equal(t, 5*time.Second, cfg.Batch.ItemTimeoutDuration())
	assert.Equal(t, 2*time.Minute, cfg.Batch.BatchDeadlineDuration())
	// Untouched sections keep defaults.
	assert.Equal(t, 300, cfg.Plan.RequiredTaskCount)
}

func TestDurationFallbacks(t *testing.T) {
	var b BatchConfig
	assert.Equal(t, time.Second, b.BackoffBaseDuration())
	assert.Equal(t, 30*time.Second, b.ItemTimeoutDuration())
	assert.Equal(t, 10*time.Minute, b.BatchDeadlineDuration())

	b.ItemTimeout = "not-a-duration"
	assert.Equal(t, 30*time.Second, b.ItemTimeoutDuration())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"min above default", func(c *Config) { c.Batch.MinBatchSize = 20; c.Batch.DefaultBatchSize = 10 }},
		{"default above max", func(c *Config) { c.Batch.DefaultBatchSize = 200 }},
		{"threshold above one", func(c *Config) { c.Batch.ErrorThreshold = 1.5 }},
		{"negative retries", func(c *Config) { c.Batch.MaxRetries = -1 }},
		{"zero concurrency", func(c *Config) { c.Batch.MaxConcurrentBatches = 0 }},
		{"layout mismatch", func(c *Config) { c.Plan.QuestionsPerDim = 49 }},
		{"non-positive count", func(c *Config) { c.Plan.RequiredTaskCount = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
