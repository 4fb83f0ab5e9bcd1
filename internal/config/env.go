package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Runtime holds the settings that may be overridden from the environment
// without editing the run configuration.
type Runtime struct {
	Threads  int     `env:"SENSORPROP_THREADS"`
	Seed     *uint64 `env:"SENSORPROP_SEED"`
	LogLevel string  `env:"SENSORPROP_LOG_LEVEL"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Apply overrides the run configuration with the values set in r.
func (r Runtime) Apply(c *Config) {
	if r.Threads > 0 {
		c.Threads = r.Threads
	}
	if r.Seed != nil {
		c.Seed = *r.Seed
	}
	if r.LogLevel != "" {
		c.LogLevel = r.LogLevel
	}
}
