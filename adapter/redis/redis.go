// Package redis implements a Redis pub/sub adapter.
//
// Publishes fetch completion events as JSON to a configurable Redis channel.
// Retries with exponential backoff on connection errors.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/maxreport/adapter"
	"github.com/justapithecus/maxreport/retry"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "maxreport:fetch_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis pub/sub adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: maxreport:fetch_completed).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
}

// Adapter publishes fetch completion events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
	policy retry.Policy
}

// New creates a Redis pub/sub adapter from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
		policy: retry.Policy{
			MaxRetries: cfg.Retries,
			Strategy:   retry.Backoff{Factor: 500 * time.Millisecond},
		},
	}, nil
}

// Publish sends the event as a JSON PUBLISH to the configured channel.
// Every failure is treated as transient until the retry budget runs out.
func (a *Adapter) Publish(ctx context.Context, event *adapter.FetchCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	var lastErr error
	attempts := a.policy.Attempts()

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: context canceled: %w", err)
		}

		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		lastErr = a.client.Publish(publishCtx, a.config.Channel, body).Err()
		cancel()

		outcome := retry.Retryable
		if lastErr == nil {
			outcome = retry.Success
		}
		decision, delay := a.policy.Decide(i, outcome)
		if decision == retry.StopSuccess {
			return nil
		}
		if decision == retry.StopFailure {
			break
		}
		if err := retry.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("redis: context canceled during backoff: %w", err)
		}
	}

	return fmt.Errorf("redis: failed after %d attempts: %w", attempts, lastErr)
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)
