// Package metrics provides per-fetch metrics collection.
//
// The Collector accumulates counters during a single logical fetch (one
// report call, or one paginated sequence). It is a leaf package with no
// internal dependencies.
package metrics

import (
	"maps"
	"sync"
)

// Snapshot is an immutable point-in-time view of all fetch metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Fetch lifecycle
	FetchesStarted   int64 `json:"fetches_started"`
	FetchesSucceeded int64 `json:"fetches_succeeded"`
	FetchesEmpty     int64 `json:"fetches_empty"`
	FetchesFailed    int64 `json:"fetches_failed"`

	// Attempts
	Attempts          int64         `json:"attempts"`
	Retries           int64         `json:"retries"`
	TransportErrors   int64         `json:"transport_errors"`
	TerminalFailures  int64         `json:"terminal_failures"`
	ExhaustedFailures int64         `json:"exhausted_failures"`
	StatusCounts      map[int]int64 `json:"status_counts"`

	// Data
	Pages int64 `json:"pages"`
	Rows  int64 `json:"rows"`

	// Storage
	SinkWriteSuccess int64 `json:"sink_write_success"`
	SinkWriteFailure int64 `json:"sink_write_failure"`

	// Dimensions (informational, set at construction)
	Report         string `json:"report"`
	StorageBackend string `json:"storage_backend"`
	FetchID        string `json:"fetch_id"`
}

// Collector accumulates metrics during a single fetch.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	fetchesStarted   int64
	fetchesSucceeded int64
	fetchesEmpty     int64
	fetchesFailed    int64

	attempts          int64
	retries           int64
	transportErrors   int64
	terminalFailures  int64
	exhaustedFailures int64
	statusCounts      map[int]int64

	pages int64
	rows  int64

	sinkWriteSuccess int64
	sinkWriteFailure int64

	report         string
	storageBackend string
	fetchID        string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend and fetchID are optional.
func NewCollector(report, storageBackend, fetchID string) *Collector {
	return &Collector{
		statusCounts:   make(map[int]int64),
		report:         report,
		storageBackend: storageBackend,
		fetchID:        fetchID,
	}
}

func (c *Collector) inc(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Fetch lifecycle ---

// IncFetchStarted records the start of a logical fetch.
func (c *Collector) IncFetchStarted() {
	if c == nil {
		return
	}
	c.inc(&c.fetchesStarted, 1)
}

// IncFetchSucceeded records a fetch that returned at least one row.
func (c *Collector) IncFetchSucceeded() {
	if c == nil {
		return
	}
	c.inc(&c.fetchesSucceeded, 1)
}

// IncFetchEmpty records a fetch that ended with the "no data" signal.
func (c *Collector) IncFetchEmpty() {
	if c == nil {
		return
	}
	c.inc(&c.fetchesEmpty, 1)
}

// IncFetchFailed records a fetch that surfaced an error.
func (c *Collector) IncFetchFailed() {
	if c == nil {
		return
	}
	c.inc(&c.fetchesFailed, 1)
}

// --- Attempts ---

// RecordAttempt records one HTTP round trip. status is 0 when the
// request failed before a response arrived.
func (c *Collector) RecordAttempt(status int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.attempts++
	if status == 0 {
		c.transportErrors++
	} else {
		c.statusCounts[status]++
	}
	c.mu.Unlock()
}

// IncRetry records a scheduled retry.
func (c *Collector) IncRetry() {
	if c == nil {
		return
	}
	c.inc(&c.retries, 1)
}

// IncTerminalFailure records a non-retryable failure.
func (c *Collector) IncTerminalFailure() {
	if c == nil {
		return
	}
	c.inc(&c.terminalFailures, 1)
}

// IncExhausted records a request that consumed its whole retry budget.
func (c *Collector) IncExhausted() {
	if c == nil {
		return
	}
	c.inc(&c.exhaustedFailures, 1)
}

// --- Data ---

// AddPage records one page carrying rows rows.
func (c *Collector) AddPage(rows int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pages++
	c.rows += int64(rows)
	c.mu.Unlock()
}

// --- Storage ---
// Sink counters are per-call, not per-row.

// IncSinkWriteSuccess records a successful sink write.
func (c *Collector) IncSinkWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.sinkWriteSuccess, 1)
}

// IncSinkWriteFailure records a failed sink write.
func (c *Collector) IncSinkWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.sinkWriteFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{StatusCounts: map[int]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		FetchesStarted:   c.fetchesStarted,
		FetchesSucceeded: c.fetchesSucceeded,
		FetchesEmpty:     c.fetchesEmpty,
		FetchesFailed:    c.fetchesFailed,

		Attempts:          c.attempts,
		Retries:           c.retries,
		TransportErrors:   c.transportErrors,
		TerminalFailures:  c.terminalFailures,
		ExhaustedFailures: c.exhaustedFailures,
		StatusCounts:      maps.Clone(c.statusCounts),

		Pages: c.pages,
		Rows:  c.rows,

		SinkWriteSuccess: c.sinkWriteSuccess,
		SinkWriteFailure: c.sinkWriteFailure,

		Report:         c.report,
		StorageBackend: c.storageBackend,
		FetchID:        c.fetchID,
	}
}
