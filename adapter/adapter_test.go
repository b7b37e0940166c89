package adapter

import (
	"testing"
	"time"

	"github.com/justapithecus/maxreport/types"
)

func TestNewFetchCompletedEvent(t *testing.T) {
	meta := &types.FetchMeta{FetchID: "f-1", Report: types.ReportRevenue}
	finished := time.Date(2023, 5, 17, 9, 30, 0, 0, time.FixedZone("x", 2*3600))

	e := NewFetchCompletedEvent(meta, "2023-05-16", OutcomeSuccess, finished, 1500*time.Millisecond)

	if e.EventType != EventTypeFetchCompleted {
		t.Errorf("EventType = %q", e.EventType)
	}
	if e.EventVersion != types.EventVersion {
		t.Errorf("EventVersion = %q, want %q", e.EventVersion, types.EventVersion)
	}
	if e.FetchID != "f-1" || e.Report != "revenue" || e.Day != "2023-05-16" {
		t.Errorf("identity fields = %+v", e)
	}
	if e.Timestamp != "2023-05-17T07:30:00Z" {
		t.Errorf("Timestamp = %q, want UTC RFC 3339", e.Timestamp)
	}
	if e.DurationMs != 1500 {
		t.Errorf("DurationMs = %d, want 1500", e.DurationMs)
	}
}
