package embedding

import (
	"fmt"
	"time"
)

// Config holds configuration for embedding runs.
type Config struct {
	// BatchSize is the number of articles per provider call
	BatchSize int

	// Workers bounds how many batches are in flight at once
	Workers int

	// MaxRetries is the maximum number of attempts per provider call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// CallTimeout bounds a single provider call
	CallTimeout time.Duration

	// ReportInterval is how often to report progress (number of articles)
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:      10,
		Workers:        2,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		CallTimeout:    60 * time.Second,
		ReportInterval: 50,
	}
}

// Normalize replaces zero values with defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.ReportInterval == 0 {
		c.ReportInterval = d.ReportInterval
	}
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be at least 1, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max retries must be at least 1, got %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.RetryDelay < 0 || c.CallTimeout < 0 {
		return fmt.Errorf("%w: durations cannot be negative", ErrInvalidConfig)
	}
	if c.ReportInterval < 1 {
		return fmt.Errorf("%w: report interval must be at least 1, got %d", ErrInvalidConfig, c.ReportInterval)
	}
	return nil
}
