package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/maxreport/types"
)

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// ErrNoRowsFound is returned when a fetch stored no rows.
var ErrNoRowsFound = errors.New("no rows found")

// QueryLatestMetrics finds and reads the most recent metrics record.
// Filters by fetchID and report if non-empty.
// Returns the raw record map or ErrNoMetricsFound if none exist.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, fetchID, report string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	// Snapshots are ordered by creation time; walk latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !matches(snap, RecordKindMetrics, fetchID, report) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are
		// authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindMetrics {
				continue
			}
			if fetchID != "" && toString(record["fetch_id"]) != fetchID {
				continue
			}
			if report != "" && toString(record["report"]) != report {
				continue
			}
			return record, nil
		}
	}

	return nil, ErrNoMetricsFound
}

// ReadTable reassembles the table stored for fetchID, in row sequence
// order. Values come back as the JSONL codec decodes them.
func ReadTable(ctx context.Context, ds lode.Dataset, fetchID string) (*types.Table, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	type seqRow struct {
		seq int64
		row types.Row
	}
	var (
		rows    []seqRow
		columns []string
		seen    = map[string]struct{}{}
	)

	for _, snap := range snapshots {
		if !matches(snap, RecordKindRow, fetchID, "") {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindRow || toString(record["fetch_id"]) != fetchID {
				continue
			}
			row, _ := record["row"].(map[string]any)
			rows = append(rows, seqRow{seq: toInt64(record["seq"]), row: types.Row(row)})
			if cols, ok := record["columns"].([]any); ok {
				for _, c := range cols {
					name := toString(c)
					if _, dup := seen[name]; !dup && name != "" {
						seen[name] = struct{}{}
						columns = append(columns, name)
					}
				}
			}
		}
	}

	if len(rows) == 0 {
		return nil, ErrNoRowsFound
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	table := types.NewTable(columns...)
	for _, r := range rows {
		table.Rows = append(table.Rows, r.row)
	}
	return table, nil
}

func matches(snap *lode.DatasetSnapshot, kind, fetchID, report string) bool {
	return snapshotMatchesFilter(snap, "record_kind", kind) &&
		snapshotMatchesFilter(snap, "fetch_id", fetchID) &&
		snapshotMatchesFilter(snap, "report", report)
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case interface{ Int64() (int64, error) }:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
