package types

import "github.com/google/uuid"

// Report names.
const (
	ReportRevenue     = "revenue"
	ReportUserRevenue = "user_revenue"
)

// FetchMeta identifies one logical fetch across logs, metrics, stored
// partitions and completion events.
type FetchMeta struct {
	FetchID string
	Report  string
}

// NewFetchMeta returns meta with a fresh fetch id.
func NewFetchMeta(report string) *FetchMeta {
	return &FetchMeta{FetchID: uuid.NewString(), Report: report}
}
