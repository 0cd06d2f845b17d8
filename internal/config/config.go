// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Typed structures validated once at startup; malformed input fails
//   the process, never a request.
// - Provide New() with defaults; Load(ctx) layers file and env on top.
// - External errors are wrapped via this package's error kinds.
package config

import (
	"fmt"
	"strings"
)

// Dataset describes one queryable dataset: where it lives and what its
// tables mean. The engine treats the connection descriptor as opaque.
type Dataset struct {
	// ID is the caller-facing dataset identifier.
	ID int `koanf:"id"`

	// Name is the short dataset name, e.g. "mobile_events".
	Name string `koanf:"name"`

	// Description is a human summary shown in dataset listings.
	Description string `koanf:"description"`

	// DSN is the Postgres connection descriptor. Never logged.
	DSN string `koanf:"dsn"`

	// Table is the events table queried by structured requests.
	Table string `koanf:"table"`

	// Dictionary maps table names to human descriptions.
	Dictionary map[string]string `koanf:"dictionary"`

	// MinConns and MaxConns bound the dataset's connection pool.
	MinConns int `koanf:"min_conns"`
	MaxConns int `koanf:"max_conns"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueryTimeoutSec bounds a single statement's execution.
	QueryTimeoutSec int `koanf:"query_timeout_sec"`

	// PoolAcquireWaitSec bounds how long a request waits for a pooled
	// connection before failing.
	PoolAcquireWaitSec int `koanf:"pool_acquire_wait_sec"`

	// Datasets lists the configured datasets.
	Datasets []Dataset `koanf:"datasets"`
}

// New creates a Config with defaults. Pool and timeout defaults match
// the values the datasets were tuned for.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		QueryTimeoutSec:    60,
		PoolAcquireWaitSec: 5,
	}
}

// Validate checks structural soundness once at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.QueryTimeoutSec <= 0 {
		return fmt.Errorf("%w: query_timeout_sec must be positive", ErrInvalidConfig)
	}
	if c.PoolAcquireWaitSec <= 0 {
		return fmt.Errorf("%w: pool_acquire_wait_sec must be positive", ErrInvalidConfig)
	}
	if len(c.Datasets) == 0 {
		return fmt.Errorf("%w: at least one dataset must be configured", ErrInvalidConfig)
	}
	seen := make(map[int]struct{}, len(c.Datasets))
	for i := range c.Datasets {
		if err := c.Datasets[i].validate(); err != nil {
			return err
		}
		if _, dup := seen[c.Datasets[i].ID]; dup {
			return fmt.Errorf("%w: duplicate dataset id %d", ErrInvalidConfig, c.Datasets[i].ID)
		}
		seen[c.Datasets[i].ID] = struct{}{}
	}
	return nil
}

func (d *Dataset) validate() error {
	if d.ID <= 0 {
		return fmt.Errorf("%w: dataset id must be positive, got %d", ErrInvalidConfig, d.ID)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: dataset %d has no name", ErrInvalidConfig, d.ID)
	}
	if strings.TrimSpace(d.DSN) == "" {
		return fmt.Errorf("%w: dataset %d has no connection descriptor", ErrInvalidConfig, d.ID)
	}
	if d.Table == "" {
		d.Table = "digital_insights"
	}
	if d.MinConns == 0 {
		d.MinConns = 2
	}
	if d.MaxConns == 0 {
		d.MaxConns = 10
	}
	if d.MinConns < 0 || d.MaxConns < 0 || d.MinConns > d.MaxConns {
		return fmt.Errorf("%w: dataset %d pool bounds invalid (min %d, max %d)", ErrInvalidConfig, d.ID, d.MinConns, d.MaxConns)
	}
	return nil
}
