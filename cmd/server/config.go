// Package main provides the alertd server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Rules        RulesConfig        `yaml:"rules"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Verbose      bool               `yaml:"-"` // set via CLI flag
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	HTTPAddress        string  `yaml:"http_address"`    // HTTP API listen address (default: :8080)
	MetricsAddress     string  `yaml:"metrics_address"` // Prometheus listen address (default: :9090)
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `yaml:"rate_limit_burst"`
}

// DatabaseConfig contains storage settings.
type DatabaseConfig struct {
	Path               string `yaml:"path"`                 // SQLite database file path
	StoreTimeout       string `yaml:"store_timeout"`        // Per-operation deadline (e.g. "5s")
	MaxConflictRetries int    `yaml:"max_conflict_retries"` // Optimistic retry budget (default 3)

	storeTimeout time.Duration
}

// RulesConfig points at the pattern and blackout rule files. Both are
// optional; an absent entry means no rules of that kind.
type RulesConfig struct {
	PatternsFile    string `yaml:"patterns_file"`
	BlackoutsFile   string `yaml:"blackouts_file"`
	RefreshInterval string `yaml:"refresh_interval"` // e.g. "5m"

	refreshInterval time.Duration
}

// HousekeepingConfig controls the alert timeout sweep.
type HousekeepingConfig struct {
	SweepInterval string `yaml:"sweep_interval"` // e.g. "1m"

	sweepInterval time.Duration
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	_ = cfg.Validate()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.MetricsAddress == "" {
		c.Server.MetricsAddress = ":9090"
	}
	if c.Server.RateLimitPerSecond == 0 {
		c.Server.RateLimitPerSecond = 50
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = 100
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/alertd.db"
	}
	if c.Database.StoreTimeout == "" {
		c.Database.StoreTimeout = "5s"
	}
	if c.Rules.RefreshInterval == "" {
		c.Rules.RefreshInterval = "5m"
	}
	if c.Housekeeping.SweepInterval == "" {
		c.Housekeeping.SweepInterval = "1m"
	}
}

// Validate checks the configuration for errors and parses durations.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return fmt.Errorf("server.http_address is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Database.MaxConflictRetries < 0 {
		return fmt.Errorf("database.max_conflict_retries must not be negative")
	}

	storeTimeout, err := time.ParseDuration(c.Database.StoreTimeout)
	if err != nil {
		return fmt.Errorf("invalid database.store_timeout %q: %w", c.Database.StoreTimeout, err)
	}
	if storeTimeout <= 0 {
		return fmt.Errorf("database.store_timeout must be positive")
	}
	c.Database.storeTimeout = storeTimeout

	refreshInterval, err := time.ParseDuration(c.Rules.RefreshInterval)
	if err != nil {
		return fmt.Errorf("invalid rules.refresh_interval %q: %w", c.Rules.RefreshInterval, err)
	}
	if refreshInterval <= 0 {
		return fmt.Errorf("rules.refresh_interval must be positive")
	}
	c.Rules.refreshInterval = refreshInterval

	sweepInterval, err := time.ParseDuration(c.Housekeeping.SweepInterval)
	if err != nil {
		return fmt.Errorf("invalid housekeeping.sweep_interval %q: %w", c.Housekeeping.SweepInterval, err)
	}
	c.Housekeeping.sweepInterval = sweepInterval

	return nil
}

// GetStoreTimeout returns the parsed per-operation store deadline.
func (c *Config) GetStoreTimeout() time.Duration {
	return c.Database.storeTimeout
}

// GetRefreshInterval returns the parsed rule refresh interval.
func (c *Config) GetRefreshInterval() time.Duration {
	return c.Rules.refreshInterval
}

// GetSweepInterval returns the parsed housekeeping sweep interval. Zero
// disables the sweep.
func (c *Config) GetSweepInterval() time.Duration {
	return c.Housekeeping.sweepInterval
}
