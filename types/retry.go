package types

import (
	"fmt"
	"slices"
	"time"
)

// RetryStrategy names how the delay between attempts is computed.
type RetryStrategy string

const (
	// RetryFixed waits the same interval before every retry.
	RetryFixed RetryStrategy = "fixed"
	// RetryBackoff waits factor * 2^(retry-1) before every retry.
	RetryBackoff RetryStrategy = "backoff"
)

// DefaultRetryStatuses are the HTTP statuses retried when none are configured.
var DefaultRetryStatuses = []int{500, 502, 503, 504}

// RetryConfig configures the attempt budget for one logical request.
// The number of attempts is MaxRetries + 1.
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries" yaml:"max_retries"`
	Strategy      RetryStrategy `json:"strategy" yaml:"strategy"`
	Interval      time.Duration `json:"interval" yaml:"interval"`
	BackoffFactor time.Duration `json:"backoff_factor" yaml:"backoff_factor"`
	RetryStatuses []int         `json:"retry_statuses,omitempty" yaml:"retry_statuses,omitempty"`
}

// DefaultReportRetry is the retry budget for the inline report:
// three retries, thirty seconds apart.
func DefaultReportRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		Strategy:      RetryFixed,
		Interval:      30 * time.Second,
		RetryStatuses: slices.Clone(DefaultRetryStatuses),
	}
}

// DefaultUserRevenueRetry is the retry budget for the user revenue report:
// five retries with a one second backoff factor.
func DefaultUserRevenueRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:    5,
		Strategy:      RetryBackoff,
		BackoffFactor: time.Second,
		RetryStatuses: slices.Clone(DefaultRetryStatuses),
	}
}

// WithStrategy fills an empty Strategy, and the delay it uses when that
// is unset, from def. MaxRetries and RetryStatuses are kept as given.
func (c RetryConfig) WithStrategy(def RetryConfig) RetryConfig {
	if c.Strategy != "" {
		return c
	}
	c.Strategy = def.Strategy
	if c.Interval == 0 {
		c.Interval = def.Interval
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = def.BackoffFactor
	}
	return c
}

// Statuses returns the configured retry statuses, or the defaults when empty.
func (c RetryConfig) Statuses() []int {
	if len(c.RetryStatuses) == 0 {
		return slices.Clone(DefaultRetryStatuses)
	}
	return slices.Clone(c.RetryStatuses)
}

// Validate checks the budget and strategy.
func (c RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	switch c.Strategy {
	case RetryFixed:
		if c.Interval < 0 {
			return fmt.Errorf("interval must be >= 0, got %s", c.Interval)
		}
	case RetryBackoff:
		if c.BackoffFactor < 0 {
			return fmt.Errorf("backoff_factor must be >= 0, got %s", c.BackoffFactor)
		}
	default:
		return fmt.Errorf("invalid retry strategy %q: must be fixed or backoff", c.Strategy)
	}
	for _, s := range c.RetryStatuses {
		if s < 100 || s > 599 {
			return fmt.Errorf("invalid retry status %d", s)
		}
	}
	return nil
}
