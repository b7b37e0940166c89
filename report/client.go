// Package report fetches revenue reports from the AppLovin MAX reporting API.
//
// A Client issues GET requests through a shared connection pool, retries
// transient failures under a retry.Policy, and converts bodies into
// types.Table values. Two modes are offered:
//   - Report and UserRevenue: one logical request returning one table
//   - Pages: a lazy, finite, single-pass sequence of pages
//
// The client never runs requests in parallel. Callers that need several
// fetches at once run several calls themselves.
package report

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/justapithecus/maxreport/keyring"
	"github.com/justapithecus/maxreport/log"
	"github.com/justapithecus/maxreport/metrics"
	"github.com/justapithecus/maxreport/retry"
	"github.com/justapithecus/maxreport/types"
)

// Default endpoints.
const (
	DefaultReportEndpoint      = "https://r.applovin.com/maxReport"
	DefaultUserRevenueEndpoint = "https://r.applovin.com/max/userAdRevenueReport"
)

// DefaultTimeout is the per-request HTTP timeout.
const DefaultTimeout = 5 * time.Minute

// Config holds client configuration.
type Config struct {
	// ReportEndpoint serves the inline JSON report.
	ReportEndpoint string
	// UserRevenueEndpoint serves the indirect CSV report.
	UserRevenueEndpoint string
	// ReportRetry is the retry budget for inline report requests.
	ReportRetry types.RetryConfig
	// UserRevenueRetry is the retry budget for user revenue requests,
	// including the CSV download.
	UserRevenueRetry types.RetryConfig
	// RequestsPerSecond paces requests when > 0.
	RequestsPerSecond float64
	// Burst is the limiter burst (default 1).
	Burst int
	// Timeout is the per-request timeout of the default HTTP client.
	Timeout time.Duration
}

// DefaultConfig returns the production endpoints and retry budgets.
func DefaultConfig() Config {
	return Config{
		ReportEndpoint:      DefaultReportEndpoint,
		UserRevenueEndpoint: DefaultUserRevenueEndpoint,
		ReportRetry:         types.DefaultReportRetry(),
		UserRevenueRetry:    types.DefaultUserRevenueRetry(),
		Timeout:             DefaultTimeout,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.doer = d }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithCollector sets the metrics collector. Defaults to none.
func WithCollector(m *metrics.Collector) Option {
	return func(c *Client) { c.collector = m }
}

// WithSleep replaces the wait between attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithClock replaces the clock used for date defaults.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client fetches reports. It holds configuration and the connection pool
// and is safe for sequential reuse across fetches.
type Client struct {
	cfg       Config
	keys      *keyring.Keyring
	doer      Doer
	exec      *Executor
	logger    *log.Logger
	collector *metrics.Collector
	sleep     func(context.Context, time.Duration) error
	now       func() time.Time

	reportPolicy retry.Policy
	userPolicy   retry.Policy
}

// New creates a client for cred.
func New(cfg Config, cred types.Credential, opts ...Option) (*Client, error) {
	if cfg.ReportEndpoint == "" {
		cfg.ReportEndpoint = DefaultReportEndpoint
	}
	if cfg.UserRevenueEndpoint == "" {
		cfg.UserRevenueEndpoint = DefaultUserRevenueEndpoint
	}
	cfg.ReportRetry = cfg.ReportRetry.WithStrategy(types.DefaultReportRetry())
	cfg.UserRevenueRetry = cfg.UserRevenueRetry.WithStrategy(types.DefaultUserRevenueRetry())
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0, got %v", cfg.RequestsPerSecond)
	}

	keys, err := keyring.New(cred)
	if err != nil {
		return nil, err
	}
	reportPolicy, err := retry.FromConfig(cfg.ReportRetry)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	userPolicy, err := retry.FromConfig(cfg.UserRevenueRetry)
	if err != nil {
		return nil, fmt.Errorf("user revenue: %w", err)
	}

	c := &Client{
		cfg:          cfg,
		keys:         keys,
		logger:       log.NewNop(),
		sleep:        retry.Sleep,
		now:          time.Now,
		reportPolicy: reportPolicy,
		userPolicy:   userPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		c.doer = &http.Client{Timeout: cfg.Timeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}
	c.exec = NewExecutor(c.doer, limiter)

	return c, nil
}

// Keys returns keyring usage statistics.
func (c *Client) Keys() keyring.Stats {
	return c.keys.Stats()
}

// Close releases idle connections held by the default HTTP client.
func (c *Client) Close() error {
	if hc, ok := c.doer.(*http.Client); ok {
		hc.CloseIdleConnections()
	}
	return nil
}
