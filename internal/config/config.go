package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

var ErrInvalid = errors.New("invalid configuration")

// Config holds all process configuration.
type Config struct {
	IPC     IPCConfig
	Search  SearchConfig
	Logging LogConfig
	Metrics MetricsConfig
}

// IPCConfig locates the shared ring buffer.
type IPCConfig struct {
	Dir          string        `envconfig:"COLOR_SHM_DIR" default:"/dev/shm"`
	Name         string        `envconfig:"COLOR_SHM_NAME" default:"threecolor"`
	PollInterval time.Duration `envconfig:"COLOR_POLL_INTERVAL" default:"50ms"`
}

// SearchConfig tunes the generator.
type SearchConfig struct {
	InitialBudget int    `envconfig:"COLOR_INITIAL_BUDGET" default:"8"`
	Seed          uint64 `envconfig:"COLOR_SEED" default:"0"`
	SharedBest    bool   `envconfig:"COLOR_SHARED_BEST" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// MetricsConfig holds the metrics endpoint configuration. An empty address disables it.
type MetricsConfig struct {
	Addr string `envconfig:"METRICS_ADDR"`
}

// Enabled reports whether the endpoint should be served.
func (m MetricsConfig) Enabled() bool {
	return m.Addr != ""
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		IPC: IPCConfig{
			Dir:          "/dev/shm",
			Name:         "threecolor",
			PollInterval: 50 * time.Millisecond,
		},
		Search: SearchConfig{
			InitialBudget: 8,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate checks values envconfig cannot check by type alone.
func (c *Config) Validate() error {
	switch {
	case c.IPC.Dir == "":
		return fmt.Errorf("%w: COLOR_SHM_DIR is empty", ErrInvalid)
	case c.IPC.Name == "" || strings.ContainsRune(c.IPC.Name, '/'):
		return fmt.Errorf("%w: COLOR_SHM_NAME %q", ErrInvalid, c.IPC.Name)
	case c.IPC.PollInterval <= 0:
		return fmt.Errorf("%w: COLOR_POLL_INTERVAL must be positive", ErrInvalid)
	case c.Search.InitialBudget < 1:
		return fmt.Errorf("%w: COLOR_INITIAL_BUDGET must be at least 1", ErrInvalid)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: LOG_LEVEL %q", ErrInvalid, c.Logging.Level)
	}
	return nil
}
