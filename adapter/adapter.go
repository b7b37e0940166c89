// Package adapter defines the notification boundary for finished fetches.
//
// Adapters publish fetch completion events to downstream systems so that
// loaders can pick up persisted tables without polling storage.
package adapter

import (
	"context"
	"time"

	"github.com/justapithecus/maxreport/types"
)

// EventTypeFetchCompleted is the only event type adapters publish.
const EventTypeFetchCompleted = "fetch_completed"

// Fetch outcomes carried by FetchCompletedEvent.
const (
	OutcomeSuccess = "success"
	OutcomeNoData  = "no_data"
	OutcomeFailed  = "failed"
)

// FetchCompletedEvent is the payload published when a fetch finishes.
type FetchCompletedEvent struct {
	EventVersion string `json:"event_version"`
	EventType    string `json:"event_type"` // always "fetch_completed"
	FetchID      string `json:"fetch_id"`
	Report       string `json:"report"`
	Day          string `json:"day"`
	Outcome      string `json:"outcome"`
	Error        string `json:"error,omitempty"`
	StoragePath  string `json:"storage_path,omitempty"`
	Timestamp    string `json:"timestamp"` // RFC 3339
	Attempts     int64  `json:"attempts"`
	Pages        int64  `json:"pages"`
	Rows         int64  `json:"rows"`
	DurationMs   int64  `json:"duration_ms"`
}

// NewFetchCompletedEvent fills the fixed fields of an event for meta.
// Counters are left for the caller.
func NewFetchCompletedEvent(meta *types.FetchMeta, day, outcome string, finished time.Time, took time.Duration) *FetchCompletedEvent {
	return &FetchCompletedEvent{
		EventVersion: types.EventVersion,
		EventType:    EventTypeFetchCompleted,
		FetchID:      meta.FetchID,
		Report:       meta.Report,
		Day:          day,
		Outcome:      outcome,
		Timestamp:    finished.UTC().Format(time.RFC3339),
		DurationMs:   took.Milliseconds(),
	}
}

// Adapter publishes fetch completion events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *FetchCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
