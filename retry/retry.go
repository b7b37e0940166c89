// Package retry decides whether and how long to wait after a failed attempt.
//
// A Policy is shared by single-shot and paginated fetches. It never sleeps
// on its own: callers ask Decide for a verdict, then call Sleep.
package retry

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/justapithecus/maxreport/types"
)

// DefaultMaxDelay caps a single backoff delay.
const DefaultMaxDelay = 120 * time.Second

// Outcome classifies one attempt.
type Outcome int

const (
	// Success means the attempt produced a usable body.
	Success Outcome = iota
	// Retryable means the attempt failed but may be tried again.
	Retryable
	// Terminal means the attempt failed and must not be retried.
	Terminal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Terminal:
		return "terminal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decision is the verdict for an attempt.
type Decision int

const (
	Continue Decision = iota
	StopSuccess
	StopFailure
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case StopSuccess:
		return "stop_success"
	case StopFailure:
		return "stop_failure"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Strategy computes the wait before a retry. retry is 1-based: the wait
// before the first retry is Delay(1).
type Strategy interface {
	Delay(retry int) time.Duration
}

// Fixed waits Interval before every retry.
type Fixed struct {
	Interval time.Duration
}

// Delay implements Strategy.
func (f Fixed) Delay(int) time.Duration {
	return max(f.Interval, 0)
}

// Backoff waits Factor * 2^(retry-1), clamped to [0, Max].
// A zero Max uses DefaultMaxDelay.
type Backoff struct {
	Factor time.Duration
	Max    time.Duration
}

// Delay implements Strategy.
func (b Backoff) Delay(retry int) time.Duration {
	if b.Factor <= 0 || retry < 1 {
		return 0
	}
	limit := b.Max
	if limit <= 0 {
		limit = DefaultMaxDelay
	}
	// Shifting past 62 overflows; by then the cap has long applied.
	if retry > 32 {
		return limit
	}
	d := b.Factor * time.Duration(1<<uint(retry-1))
	if d <= 0 || d > limit {
		return limit
	}
	return d
}

// Policy is the retry budget for one logical request.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Strategy computes the delay between attempts.
	Strategy Strategy
	// Statuses are the HTTP statuses that count as retryable.
	Statuses []int
}

// FromConfig builds a Policy from a validated RetryConfig.
func FromConfig(cfg types.RetryConfig) (Policy, error) {
	if err := cfg.Validate(); err != nil {
		return Policy{}, fmt.Errorf("retry config: %w", err)
	}
	p := Policy{MaxRetries: cfg.MaxRetries, Statuses: cfg.Statuses()}
	switch cfg.Strategy {
	case types.RetryBackoff:
		p.Strategy = Backoff{Factor: cfg.BackoffFactor}
	default:
		p.Strategy = Fixed{Interval: cfg.Interval}
	}
	return p, nil
}

// Attempts returns the total number of attempts the policy allows.
func (p Policy) Attempts() int {
	return max(p.MaxRetries, 0) + 1
}

// Retryable reports whether status is in the retry set.
func (p Policy) Retryable(status int) bool {
	return slices.Contains(p.Statuses, status)
}

// Decide returns the verdict for the attempt at the 0-based index attempt,
// and the delay before the next attempt when the verdict is Continue.
func (p Policy) Decide(attempt int, outcome Outcome) (Decision, time.Duration) {
	switch outcome {
	case Success:
		return StopSuccess, 0
	case Retryable:
		if attempt < p.MaxRetries {
			return Continue, p.delay(attempt + 1)
		}
		return StopFailure, 0
	default:
		return StopFailure, 0
	}
}

func (p Policy) delay(retry int) time.Duration {
	if p.Strategy == nil {
		return 0
	}
	return p.Strategy.Delay(retry)
}

// Sleep blocks for d. It returns early only when ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
