// Package config loads histcache defaults from the environment.
// Command-line flags override every value loaded here.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/histcache/internal/policy"
)

// Config holds environment-provided defaults.
type Config struct {
	DBPath     string `env:"HISTCACHE_DB"        envDefault:"histcache.db"`
	PolicyPath string `env:"HISTCACHE_POLICY"`
	LogLevel   string `env:"HISTCACHE_LOG_LEVEL" envDefault:"warn"`
	Format     string `env:"HISTCACHE_FORMAT"    envDefault:"text"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the log level and output format.
func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("HISTCACHE_FORMAT: must be text or json, got %q", c.Format)
	}
	return nil
}

// Level parses LogLevel. Accepts debug, info, warn and error in any case.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("HISTCACHE_LOG_LEVEL: %w", err)
	}
	return level, nil
}

// Policy loads the exclusion policy file, or the default policy when no
// file is configured.
func (c Config) Policy() (policy.Policy, error) {
	if c.PolicyPath == "" {
		return policy.Default(), nil
	}
	p, err := policy.Load(c.PolicyPath)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("HISTCACHE_POLICY: %w", err)
	}
	return p, nil
}
