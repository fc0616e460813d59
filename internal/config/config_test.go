package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "libraindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 20, cfg.Simulation.Steps)
	require.NotNil(t, cfg.Simulation.Seed)
	assert.Equal(t, uint64(43), *cfg.Simulation.Seed)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
library:
  name: Branch Library
simulation:
  steps: 150
  seed: 7
  rate: 25.5
  burst: 3
chaos:
  sample_interval: 25ms
  pause: 1s
log:
  level: debug
  format: json
telemetry:
  endpoint: localhost:4318
  insecure: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Branch Library", cfg.Library.Name)
	assert.Equal(t, 150, cfg.Simulation.Steps)
	require.NotNil(t, cfg.Simulation.Seed)
	assert.Equal(t, uint64(7), *cfg.Simulation.Seed)
	assert.InDelta(t, 25.5, cfg.Simulation.Rate, 0.0001)
	assert.Equal(t, 3, cfg.Simulation.Burst)
	assert.Equal(t, 25*time.Millisecond, cfg.Chaos.SampleInterval)
	assert.Equal(t, time.Second, cfg.Chaos.Pause)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "localhost:4318", cfg.Telemetry.Endpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	assert.Equal(t, "libraindex", cfg.Telemetry.ServiceName)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeFile(t, "simulation: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "simulation:\n  steps: 10\nlog:\n  level: debug\n")
	t.Setenv("LIBRAINDEX_STEPS", "99")
	t.Setenv("LIBRAINDEX_LOG_LEVEL", "WARN")
	t.Setenv("LIBRAINDEX_LIBRARY_NAME", "Env Library")
	t.Setenv("LIBRAINDEX_SEED", "random")
	t.Setenv("LIBRAINDEX_CHAOS_PAUSE", "250ms")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 99, cfg.Simulation.Steps)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "Env Library", cfg.Library.Name)
	assert.Nil(t, cfg.Simulation.Seed)
	assert.Equal(t, 250*time.Millisecond, cfg.Chaos.Pause)
	assert.Equal(t, "collector:4318", cfg.Telemetry.Endpoint)
}

func TestEnvironmentParseErrors(t *testing.T) {
	t.Setenv("LIBRAINDEX_STEPS", "many")
	t.Setenv("LIBRAINDEX_RATE", "fast")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LIBRAINDEX_STEPS")
	assert.Contains(t, err.Error(), "LIBRAINDEX_RATE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative steps", func(c *Config) { c.Simulation.Steps = -1 }, "simulation.steps"},
		{"negative rate", func(c *Config) { c.Simulation.Rate = -0.5 }, "simulation.rate"},
		{"negative burst", func(c *Config) { c.Simulation.Burst = -1 }, "simulation.burst"},
		{"zero sample interval", func(c *Config) { c.Chaos.SampleInterval = 0 }, "chaos.sample_interval"},
		{"negative pause", func(c *Config) { c.Chaos.Pause = -time.Second }, "chaos.pause"},
		{"unknown level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	require.NoError(t, Default().Validate())
}
