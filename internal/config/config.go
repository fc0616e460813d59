// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the merged configuration of the command-line tools.
type Config struct {
	Library    LibraryConfig    `yaml:"library"`
	Simulation SimulationConfig `yaml:"simulation"`
	Chaos      ChaosConfig      `yaml:"chaos"`
	Log        LogConfig        `yaml:"log"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type LibraryConfig struct {
	Name string `yaml:"name"`
}

type SimulationConfig struct {
	Steps int     `yaml:"steps"`
	Seed  *uint64 `yaml:"seed"`
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type ChaosConfig struct {
	// SampleInterval is how often steady-state metrics are observed.
	SampleInterval time.Duration `yaml:"sample_interval"`
	// Pause separates experiments during a game day.
	Pause time.Duration `yaml:"pause"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig enables trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

var (
	LogLevels  = []string{"debug", "info", "warn", "error"}
	LogFormats = []string{"text", "json"}
)

// Default returns the configuration used when nothing else is given.
func Default() Config {
	seed := uint64(43)
	return Config{
		Library: LibraryConfig{Name: "Main Library"},
		Simulation: SimulationConfig{
			Steps: 20,
			Seed:  &seed,
			Burst: 1,
		},
		Chaos: ChaosConfig{
			SampleInterval: 10 * time.Millisecond,
			Pause:          0,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{
			ServiceName: "libraindex",
		},
	}
}

// Load merges defaults, the optional YAML file at path and the environment,
// in that order, and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func loadEnv(cfg *Config) error {
	var errs []error

	cfg.Library.Name = getEnv("LIBRAINDEX_LIBRARY_NAME", cfg.Library.Name)
	cfg.Log.Level = strings.ToLower(getEnv("LIBRAINDEX_LOG_LEVEL", cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(getEnv("LIBRAINDEX_LOG_FORMAT", cfg.Log.Format))
	cfg.Telemetry.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)

	if v := getEnv("LIBRAINDEX_STEPS", ""); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.Steps = i
		} else {
			errs = append(errs, fmt.Errorf("LIBRAINDEX_STEPS: %w", err))
		}
	}
	if v := getEnv("LIBRAINDEX_SEED", ""); v != "" {
		if v == "random" {
			cfg.Simulation.Seed = nil
		} else if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Simulation.Seed = &u
		} else {
			errs = append(errs, fmt.Errorf("LIBRAINDEX_SEED: %w", err))
		}
	}
	if v := getEnv("LIBRAINDEX_RATE", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Simulation.Rate = f
		} else {
			errs = append(errs, fmt.Errorf("LIBRAINDEX_RATE: %w", err))
		}
	}
	if v := getEnv("LIBRAINDEX_BURST", ""); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.Burst = i
		} else {
			errs = append(errs, fmt.Errorf("LIBRAINDEX_BURST: %w", err))
		}
	}
	if v := getEnv("LIBRAINDEX_CHAOS_SAMPLE_INTERVAL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Chaos.SampleInterval = d
		} else {
			errs = append(errs, fmt.Errorf("LIBRAINDEX_CHAOS_SAMPLE_INTERVAL: %w", err))
		}
	}
	if v := getEnv("LIBRAINDEX_CHAOS_PAUSE", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Chaos.Pause = d
		} else {
			errs = append(errs, fmt.Errorf("LIBRAINDEX_CHAOS_PAUSE: %w", err))
		}
	}
	if v := getEnv("LIBRAINDEX_OTLP_INSECURE", ""); v != "" {
		cfg.Telemetry.Insecure = v == "true" || v == "1"
	}

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Simulation.Steps < 0 {
		errs = append(errs, fmt.Errorf("simulation.steps must be >= 0, got %d", c.Simulation.Steps))
	}
	if c.Simulation.Rate < 0 {
		errs = append(errs, fmt.Errorf("simulation.rate must be >= 0, got %v", c.Simulation.Rate))
	}
	if c.Simulation.Burst < 0 {
		errs = append(errs, fmt.Errorf("simulation.burst must be >= 0, got %d", c.Simulation.Burst))
	}
	if c.Chaos.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("chaos.sample_interval must be > 0, got %s", c.Chaos.SampleInterval))
	}
	if c.Chaos.Pause < 0 {
		errs = append(errs, fmt.Errorf("chaos.pause must be >= 0, got %s", c.Chaos.Pause))
	}
	if !slices.Contains(LogLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of %v, got %q", LogLevels, c.Log.Level))
	}
	if !slices.Contains(LogFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of %v, got %q", LogFormats, c.Log.Format))
	}
	return errors.Join(errs...)
}
