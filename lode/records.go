package lode

import (
	"strconv"
	"time"

	"github.com/justapithecus/maxreport/metrics"
	"github.com/justapithecus/maxreport/types"
)

// RecordKind discriminator values.
const (
	RecordKindRow     = "row"
	RecordKindMetrics = "metrics"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"report", "day", "fetch_id", "record_kind"}

// toRowRecordMap converts one table row to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any. columns carries
// the table's column order, which a JSON object alone would lose.
func toRowRecordMap(row types.Row, seq int64, columns []string, cfg Config) map[string]any {
	return map[string]any{
		"record_kind":   RecordKindRow,
		"event_version": types.EventVersion,
		"seq":           seq,
		"columns":       columns,
		"row":           map[string]any(row),
		"report":        cfg.Report,
		"day":           cfg.Day,
		"fetch_id":      cfg.FetchID,
	}
}

// toMetricsRecordMap converts a metrics snapshot to a map for storage.
func toMetricsRecordMap(snap metrics.Snapshot, completedAt time.Time, cfg Config) map[string]any {
	statuses := make(map[string]int64, len(snap.StatusCounts))
	for code, n := range snap.StatusCounts {
		statuses[strconv.Itoa(code)] = n
	}
	return map[string]any{
		"record_kind":        RecordKindMetrics,
		"event_version":      types.EventVersion,
		"ts":                 completedAt.UTC().Format(time.RFC3339Nano),
		"fetches_started":    snap.FetchesStarted,
		"fetches_succeeded":  snap.FetchesSucceeded,
		"fetches_empty":      snap.FetchesEmpty,
		"fetches_failed":     snap.FetchesFailed,
		"attempts":           snap.Attempts,
		"retries":            snap.Retries,
		"transport_errors":   snap.TransportErrors,
		"terminal_failures":  snap.TerminalFailures,
		"exhausted_failures": snap.ExhaustedFailures,
		"status_counts":      statuses,
		"pages":              snap.Pages,
		"rows":               snap.Rows,
		"sink_write_success": snap.SinkWriteSuccess,
		"sink_write_failure": snap.SinkWriteFailure,
		"storage_backend":    snap.StorageBackend,
		"report":             cfg.Report,
		"day":                cfg.Day,
		"fetch_id":           cfg.FetchID,
	}
}
