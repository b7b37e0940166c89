package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/justapithecus/maxreport/types"
)

// dataset serves a fixed row set the way the inline report endpoint does:
// offset/limit slice it, limit alone caps it.
type dataset struct {
	rows []map[string]any

	mu      sync.Mutex
	offsets []int
	queries []map[string]string
	hits    atomic.Int64
}

func newDataset(n int) *dataset {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{
			"day":         "2023-05-14",
			"impressions": strconv.Itoa(10 + i),
			"row":         i,
		}
	}
	return &dataset{rows: rows}
}

func (d *dataset) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.hits.Add(1)
	q := r.URL.Query()

	flat := make(map[string]string, len(q))
	for k := range q {
		flat[k] = q.Get(k)
	}

	offset := 0
	if s := q.Get("offset"); s != "" {
		offset, _ = strconv.Atoi(s)
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	d.mu.Lock()
	d.offsets = append(d.offsets, offset)
	d.queries = append(d.queries, flat)
	d.mu.Unlock()

	start := min(offset, len(d.rows))
	end := min(start+limit, len(d.rows))
	writeJSON(w, map[string]any{"results": d.rows[start:end]})
}

func (d *dataset) seenOffsets() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.offsets...)
}

func (d *dataset) lastQuery() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queries[len(d.queries)-1]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// statusServer always answers with code and counts hits.
func statusServer(t *testing.T, code int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(code)
		fmt.Fprintf(w, "status %d", code)
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

// sleepRecorder replaces retry sleeps so tests never wait.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

var testNow = time.Date(2023, 5, 17, 12, 0, 0, 0, time.UTC)

func testConfig(reportURL, userURL string) Config {
	cfg := DefaultConfig()
	cfg.ReportEndpoint = reportURL
	cfg.UserRevenueEndpoint = userURL
	cfg.ReportRetry = types.RetryConfig{MaxRetries: 3, Strategy: types.RetryFixed}
	cfg.UserRevenueRetry = types.DefaultUserRevenueRetry()
	return cfg
}

func newTestClient(t *testing.T, cfg Config, opts ...Option) (*Client, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	opts = append([]Option{
		WithSleep(rec.sleep),
		WithClock(func() time.Time { return testNow }),
	}, opts...)
	c, err := New(cfg, types.SingleKey("test-key"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, rec
}

func testQuery(pageSize int) types.ReportQuery {
	return types.ReportQuery{
		Start:    "2023-05-14",
		End:      "2023-05-16",
		Columns:  []string{"day", "impressions"},
		PageSize: pageSize,
	}
}

// fakeDoer returns scripted responses without a network.
type fakeDoer struct {
	mu    sync.Mutex
	steps []func(*http.Request) (*http.Response, error)
	reqs  []*http.Request
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	i := min(len(f.reqs)-1, len(f.steps)-1)
	return f.steps[i](req)
}

func (f *fakeDoer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}
