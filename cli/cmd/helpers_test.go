package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/maxreport/adapter"
)

// fakeService serves the inline report, the user revenue report, its CSV
// downloads and a webhook sink for completion events.
type fakeService struct {
	srv *httptest.Server

	rows       int
	failStatus int
	// emptyDates answer the user revenue endpoint with 404.
	emptyDates map[string]bool

	reportHits atomic.Int64
	userHits   atomic.Int64

	mu     sync.Mutex
	events []adapter.FetchCompletedEvent
}

func newFakeService(t *testing.T, rows int) *fakeService {
	t.Helper()
	f := &fakeService{rows: rows, emptyDates: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/maxReport", f.serveReport)
	mux.HandleFunc("/userAdRevenueReport", f.serveUserRevenue)
	mux.HandleFunc("/csv/", f.serveCSV)
	mux.HandleFunc("/hook", f.serveHook)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeService) serveReport(w http.ResponseWriter, r *http.Request) {
	f.reportHits.Add(1)
	if f.failStatus != 0 {
		w.WriteHeader(f.failStatus)
		return
	}

	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	start := min(offset, f.rows)
	end := min(start+limit, f.rows)
	results := make([]map[string]any, 0, end-start)
	for i := start; i < end; i++ {
		results = append(results, map[string]any{
			"day":         q.Get("end"),
			"impressions": 100 + i,
			"revenue":     fmt.Sprintf("%d.5", i),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "results": results})
}

func (f *fakeService) serveUserRevenue(w http.ResponseWriter, r *http.Request) {
	f.userHits.Add(1)
	date := r.URL.Query().Get("date")
	if f.emptyDates[date] {
		http.Error(w, "no data for date", http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"ad_revenue_report_url": f.srv.URL + "/csv/" + date,
	})
}

func (f *fakeService) serveCSV(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimPrefix(r.URL.Path, "/csv/")
	fmt.Fprintf(w, "Date,Ad Unit ID,Revenue\n%s,unit-a,0.25\n%s,unit-b,0.75\n", date, date)
}

func (f *fakeService) serveHook(w http.ResponseWriter, r *http.Request) {
	var event adapter.FetchCompletedEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeService) received() []adapter.FetchCompletedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adapter.FetchCompletedEvent(nil), f.events...)
}

// writeConfig writes a maxreport.yaml pointing at the fake service with
// fast retries, plus any extra YAML.
func (f *fakeService) writeConfig(t *testing.T, extra string) string {
	t.Helper()
	content := fmt.Sprintf(`endpoints:
  report: %[1]s/maxReport
  user_revenue: %[1]s/userAdRevenueReport
retry:
  report:
    max_retries: 1
    interval: 1ms
  user_revenue:
    max_retries: 1
    backoff_factor: 1ms
`, f.srv.URL) + extra

	path := filepath.Join(t.TempDir(), "maxreport.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// runResult is the outcome of one CLI invocation.
type runResult struct {
	code   int
	stdout string
	stderr string
}

// runCLI runs the maxreport commands in-process without exiting.
func runCLI(t *testing.T, args ...string) runResult {
	t.Helper()

	var stdout, stderr bytes.Buffer
	app := &cli.App{
		Name:           "maxreport",
		Writer:         &stdout,
		ErrWriter:      &stderr,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			ReportCommand(),
			BatchesCommand(),
			UserRevenueCommand(),
			ScheduleCommand(),
			VersionCommand("test"),
		},
	}

	err := app.Run(append([]string{"maxreport"}, args...))
	res := runResult{stdout: stdout.String(), stderr: stderr.String()}
	var exitCoder cli.ExitCoder
	switch {
	case err == nil:
		res.code = 0
	case errors.As(err, &exitCoder):
		res.code = exitCoder.ExitCode()
	default:
		t.Fatalf("unexpected error without exit code: %v", err)
	}
	return res
}
