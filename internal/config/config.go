// Package config loads the extsimple binary configuration from the
// environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Image   ImageConfig
	Metrics MetricsConfig
	Logging LogConfig
}

// ImageConfig controls how the image file is stored and mutated.
type ImageConfig struct {
	Path             string `envconfig:"EXTSIMPLE_IMAGE" default:"particion.bin"`
	Compress         bool   `envconfig:"EXTSIMPLE_COMPRESS" default:"false"`
	WipeOnDelete     bool   `envconfig:"EXTSIMPLE_WIPE_ON_DELETE" default:"false"`
	ConsistencyCheck bool   `envconfig:"EXTSIMPLE_CHECK" default:"false"`
}

// MetricsConfig holds the Prometheus listener configuration. An empty
// address disables the listener.
type MetricsConfig struct {
	Address string `envconfig:"EXTSIMPLE_METRICS_ADDR" default:""`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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
		Image: ImageConfig{
			Path: "particion.bin",
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}
