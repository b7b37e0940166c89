// Package lode persists fetched report tables in Lode datasets.
//
// Rows land as JSONL records under a Hive layout keyed by report, day
// and fetch id, next to one metrics record per fetch. Storage can be the
// local filesystem, S3 or memory.
package lode

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/justapithecus/maxreport/metrics"
	"github.com/justapithecus/maxreport/types"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "maxreport"

// DeriveDay computes the partition day from a report date or fetch time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format(types.DateLayout)
}

// Config holds sink configuration. All partition keys are required.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Report is the partition key for the report kind.
	Report string
	// Day is the partition key for the report date (YYYY-MM-DD).
	Day string
	// FetchID is the partition key for the fetch identifier.
	FetchID string
}

// Validate checks that every partition key is set.
func (c Config) Validate() error {
	var errs []error
	if c.Dataset == "" {
		errs = append(errs, errors.New("dataset is required"))
	}
	if c.Report == "" {
		errs = append(errs, errors.New("report is required"))
	}
	if _, err := time.Parse(types.DateLayout, c.Day); err != nil {
		errs = append(errs, errors.New("day must be YYYY-MM-DD"))
	}
	if c.FetchID == "" {
		errs = append(errs, errors.New("fetch id is required"))
	}
	return errors.Join(errs...)
}

// PartitionPath is the Hive partition prefix all records of the fetch
// share, relative to the store root.
func (c Config) PartitionPath() string {
	return "datasets/" + c.Dataset + "/partitions/report=" + c.Report +
		"/day=" + c.Day + "/fetch_id=" + c.FetchID
}

// Sink persists the output of one fetch.
type Sink interface {
	// WriteTable appends rows in order. Successive calls continue the
	// row sequence, so pages can be written as they arrive.
	WriteTable(ctx context.Context, table *types.Table) error

	// WriteMetrics stores the fetch metrics snapshot.
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error

	// Close releases sink resources.
	Close() error
}

// StubSink records writes without persisting. Used by tests of callers.
type StubSink struct {
	mu      sync.Mutex
	Tables  []*types.Table
	Metrics []metrics.Snapshot
	Closed  bool
}

// NewStubSink creates an empty stub sink.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// WriteTable implements Sink.
func (s *StubSink) WriteTable(_ context.Context, table *types.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tables = append(s.Tables, table)
	return nil
}

// WriteMetrics implements Sink.
func (s *StubSink) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metrics = append(s.Metrics, snap)
	return nil
}

// Close implements Sink.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Rows returns the number of rows written so far.
func (s *StubSink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.Tables {
		n += t.Len()
	}
	return n
}

// Verify StubSink implements Sink.
var _ Sink = (*StubSink)(nil)
