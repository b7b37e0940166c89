package lode

import (
	"context"
	"time"

	"github.com/justapithecus/maxreport/metrics"
	"github.com/justapithecus/maxreport/types"
)

// InstrumentedSink wraps a Sink and records write metrics. Each
// WriteTable call increments sink_write_success or sink_write_failure
// on the metrics collector.
type InstrumentedSink struct {
	inner     Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteTable delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteTable(ctx context.Context, table *types.Table) error {
	err := s.inner.WriteTable(ctx, table)
	if err != nil {
		s.collector.IncSinkWriteFailure()
	} else {
		s.collector.IncSinkWriteSuccess()
	}
	return err
}

// WriteMetrics delegates to the inner sink. The metrics write itself is
// not counted; the snapshot would already be stale.
func (s *InstrumentedSink) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	return s.inner.WriteMetrics(ctx, snap, completedAt)
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

// Verify InstrumentedSink implements Sink.
var _ Sink = (*InstrumentedSink)(nil)
