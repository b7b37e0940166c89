package cmd

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/justapithecus/maxreport/adapter"
	"github.com/justapithecus/maxreport/ipc"
	"github.com/justapithecus/maxreport/lode"
	"github.com/justapithecus/maxreport/types"
)

const (
	testKey   = "test-key-0123456789"
	testStart = "2023-05-15"
	testEnd   = "2023-05-16"
)

func TestReport_WritesOutputStorageAndEvent(t *testing.T) {
	svc := newFakeService(t, 3)
	cfg := svc.writeConfig(t, "storage:\n  sidecar_csv: true\n")
	sinkDir := t.TempDir()
	outPath := filepath.Join(t.TempDir(), "revenue.csv")

	res := runCLI(t, "report",
		"--config", cfg,
		"--api-key", testKey,
		"--start", testStart, "--end", testEnd,
		"--columns", "day,impressions,revenue",
		"--format", "csv", "--out", outPath,
		"--sink-path", sinkDir,
		"--notify-type", "webhook", "--notify-url", svc.srv.URL+"/hook",
	)
	if res.code != exitSuccess {
		t.Fatalf("exit = %d, stderr:\n%s", res.code, res.stderr)
	}
	if res.stdout != "" {
		t.Errorf("stdout should be empty with --out, got %q", res.stdout)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines:\n%s", len(lines), data)
	}
	if lines[0] != "day,impressions,revenue" {
		t.Errorf("header = %q", lines[0])
	}

	events := svc.received()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Outcome != adapter.OutcomeSuccess || ev.Rows != 3 || ev.Day != testEnd || ev.Report != types.ReportRevenue {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !strings.HasPrefix(ev.StoragePath, "file://") {
		t.Errorf("storage path = %q", ev.StoragePath)
	}

	ds, err := lode.NewReadDatasetFS(lode.DefaultDataset, sinkDir)
	if err != nil {
		t.Fatalf("open dataset: %v", err)
	}
	stored, err := lode.ReadTable(t.Context(), ds, ev.FetchID)
	if err != nil {
		t.Fatalf("read stored table: %v", err)
	}
	if stored.Len() != 3 {
		t.Errorf("stored rows = %d, want 3", stored.Len())
	}

	var sidecar bool
	_ = filepath.WalkDir(sinkDir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.Contains(path, sidecarName) {
			sidecar = true
		}
		return nil
	})
	if !sidecar {
		t.Errorf("expected %s sidecar under %s", sidecarName, sinkDir)
	}
}

func TestReport_JSONToStdout(t *testing.T) {
	svc := newFakeService(t, 2)
	cfg := svc.writeConfig(t, "")

	res := runCLI(t, "report",
		"--config", cfg, "--api-key", testKey,
		"--start", testStart, "--end", testEnd,
		"--columns", "day,revenue", "--format", "json",
	)
	if res.code != exitSuccess {
		t.Fatalf("exit = %d, stderr:\n%s", res.code, res.stderr)
	}

	var table types.Table
	if err := json.Unmarshal([]byte(res.stdout), &table); err != nil {
		t.Fatalf("decode stdout: %v\n%s", err, res.stdout)
	}
	if table.Len() != 2 {
		t.Errorf("rows = %d, want 2", table.Len())
	}
	if !strings.Contains(res.stderr, `"fetch_id"`) {
		t.Errorf("expected structured logs on stderr, got:\n%s", res.stderr)
	}
}

func TestReport_NoDataExitsThree(t *testing.T) {
	svc := newFakeService(t, 0)
	cfg := svc.writeConfig(t, "")

	res := runCLI(t, "report",
		"--config", cfg, "--api-key", testKey,
		"--start", testStart, "--end", testEnd,
		"--columns", "day", "--quiet",
	)
	if res.code != exitNoData {
		t.Fatalf("exit = %d, want %d, stderr:\n%s", res.code, exitNoData, res.stderr)
	}
}

func TestReport_InvalidDateExitsTwoWithoutRequests(t *testing.T) {
	svc := newFakeService(t, 3)
	cfg := svc.writeConfig(t, "")

	res := runCLI(t, "report",
		"--config", cfg, "--api-key", testKey,
		"--start", "05/15/2023", "--end", testEnd,
		"--columns", "day",
	)
	if res.code != exitInvalid {
		t.Fatalf("exit = %d, want %d", res.code, exitInvalid)
	}
	if hits := svc.reportHits.Load(); hits != 0 {
		t.Errorf("expected no requests, got %d", hits)
	}
}

func TestReport_MissingCredentialExitsTwo(t *testing.T) {
	t.Setenv("MAX_API_KEY", "")
	svc := newFakeService(t, 3)
	cfg := svc.writeConfig(t, "")

	res := runCLI(t, "report",
		"--config", cfg,
		"--start", testStart, "--end", testEnd,
		"--columns", "day",
	)
	if res.code != exitInvalid {
		t.Fatalf("exit = %d, want %d", res.code, exitInvalid)
	}
	if hits := svc.reportHits.Load(); hits != 0 {
		t.Errorf("expected no requests, got %d", hits)
	}
}

func TestReport_ExhaustedRetriesExitsOne(t *testing.T) {
	svc := newFakeService(t, 3)
	svc.failStatus = 503
	cfg := svc.writeConfig(t, "")

	res := runCLI(t, "report",
		"--config", cfg, "--api-key", testKey,
		"--start", testStart, "--end", testEnd,
		"--columns", "day",
	)
	if res.code != exitFailed {
		t.Fatalf("exit = %d, want %d", res.code, exitFailed)
	}
	// max_retries 1: initial try plus one retry
	if hits := svc.reportHits.Load(); hits != 2 {
		t.Errorf("requests = %d, want 2", hits)
	}
}

func TestReport_TerminalStatusDoesNotRetry(t *testing.T) {
	svc := newFakeService(t, 3)
	svc.failStatus = 400
	cfg := svc.writeConfig(t, "")

	res := runCLI(t, "report",
		"--config", cfg, "--api-key", testKey,
		"--start", testStart, "--end", testEnd,
		"--columns", "day",
	)
	if res.code != exitFailed {
		t.Fatalf("exit = %d, want %d", res.code, exitFailed)
	}
	if hits := svc.reportHits.Load(); hits != 1 {
		t.Errorf("requests = %d, want 1", hits)
	}
}

func TestBatches_StreamsFrames(t *testing.T) {
	svc := newFakeService(t, 5)
	cfg := svc.writeConfig(t, "")

	res := runCLI(t, "batches",
		"--config", cfg, "--api-key", testKey,
		"--start", testStart, "--end", testEnd,
		"--columns", "day,revenue",
		"--batch-size", "2", "--format", "msgpack",
	)
	if res.code != exitSuccess {
		t.Fatalf("exit = %d, stderr:\n%s", res.code, res.stderr)
	}

	pages, summary, err := ipc.ReadStream(bytes.NewReader([]byte(res.stdout)))
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(pages))
	}
	for i, want := range []int{2, 2, 1} {
		if got := pages[i].Count(); got != want {
			t.Errorf("page %d rows = %d, want %d", i, got, want)
		}
		if pages[i].Offset != i*2 {
			t.Errorf("page %d offset = %d, want %d", i, pages[i].Offset, i*2)
		}
	}
	if summary == nil {
		t.Fatal("missing summary frame")
	}
	if summary.Rows != 5 || summary.Pages != 3 || summary.Outcome != adapter.OutcomeSuccess {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if hits := svc.reportHits.Load(); hits != 3 {
		t.Errorf("requests = %d, want 3", hits)
	}
}

func TestBatches_CollectsJSON(t *testing.T) {
	svc := newFakeService(t, 4)
	cfg := svc.writeConfig(t, "")

	res := runCLI(t, "batches",
		"--config", cfg, "--api-key", testKey,
		"--start", testStart, "--end", testEnd,
		"--columns", "day,revenue",
		"--batch-size", "2", "--format", "json",
	)
	if res.code != exitSuccess {
		t.Fatalf("exit = %d, stderr:\n%s", res.code, res.stderr)
	}

	var table types.Table
	if err := json.Unmarshal([]byte(res.stdout), &table); err != nil {
		t.Fatalf("decode stdout: %v", err)
	}
	if table.Len() != 4 {
		t.Errorf("rows = %d, want 4", table.Len())
	}
	// Two full pages force a third, empty request.
	if hits := svc.reportHits.Load(); hits != 3 {
		t.Errorf("requests = %d, want 3", hits)
	}
	if !strings.Contains(res.stderr, "batch consumed") {
		t.Errorf("expected progress logs, got:\n%s", res.stderr)
	}
}

func TestBatches_RejectsZeroBatchSize(t *testing.T) {
	svc := newFakeService(t, 4)
	cfg := svc.writeConfig(t, "")

	res := runCLI(t, "batches",
		"--config", cfg, "--api-key", testKey,
		"--columns", "day", "--batch-size", "0",
	)
	if res.code != exitInvalid {
		t.Fatalf("exit = %d, want %d", res.code, exitInvalid)
	}
}

func TestUserRevenue_MultipleDates(t *testing.T) {
	svc := newFakeService(t, 0)
	svc.emptyDates["2023-05-15"] = true
	cfg := svc.writeConfig(t, "")

	res := runCLI(t, "user-revenue",
		"--config", cfg, "--api-key", testKey,
		"--date", "2023-05-16", "--date", "2023-05-15",
		"--platform", "android", "--application", "com.example.game",
		"--format", "json",
		"--notify-type", "webhook", "--notify-url", svc.srv.URL+"/hook",
	)
	if res.code != exitSuccess {
		t.Fatalf("exit = %d, stderr:\n%s", res.code, res.stderr)
	}

	var table types.Table
	if err := json.Unmarshal([]byte(res.stdout), &table); err != nil {
		t.Fatalf("decode stdout: %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("rows = %d, want 2", table.Len())
	}

	events := svc.received()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	outcomes := map[string]string{}
	for _, ev := range events {
		outcomes[ev.Day] = ev.Outcome
		if ev.Report != types.ReportUserRevenue {
			t.Errorf("event report = %q", ev.Report)
		}
	}
	if outcomes["2023-05-15"] != adapter.OutcomeNoData {
		t.Errorf("2023-05-15 outcome = %q, want no_data", outcomes["2023-05-15"])
	}
	if outcomes["2023-05-16"] != adapter.OutcomeSuccess {
		t.Errorf("2023-05-16 outcome = %q, want success", outcomes["2023-05-16"])
	}
}

func TestUserRevenue_AllEmptyExitsThree(t *testing.T) {
	svc := newFakeService(t, 0)
	svc.emptyDates["2023-05-16"] = true
	cfg := svc.writeConfig(t, "")

	res := runCLI(t, "user-revenue",
		"--config", cfg, "--api-key", testKey,
		"--date", "2023-05-16", "--platform", "android",
		"--application", "com.example.game", "--quiet",
	)
	if res.code != exitNoData {
		t.Fatalf("exit = %d, want %d, stderr:\n%s", res.code, exitNoData, res.stderr)
	}
	// 404 means no data; it is never retried.
	if hits := svc.userHits.Load(); hits != 1 {
		t.Errorf("requests = %d, want 1", hits)
	}
}

func TestUserRevenue_InvalidDateExitsTwo(t *testing.T) {
	svc := newFakeService(t, 0)
	cfg := svc.writeConfig(t, "")

	res := runCLI(t, "user-revenue",
		"--config", cfg, "--api-key", testKey,
		"--date", "yesterday",
	)
	if res.code != exitInvalid {
		t.Fatalf("exit = %d, want %d", res.code, exitInvalid)
	}
	if hits := svc.userHits.Load(); hits != 0 {
		t.Errorf("expected no requests, got %d", hits)
	}
}

func TestVersion_JSON(t *testing.T) {
	res := runCLI(t, "version", "--format", "json")
	if res.code != exitSuccess {
		t.Fatalf("exit = %d", res.code)
	}
	var v VersionResponse
	if err := json.Unmarshal([]byte(res.stdout), &v); err != nil {
		t.Fatalf("decode: %v\n%s", err, res.stdout)
	}
	if v.Version != types.Version || v.Commit != "test" {
		t.Errorf("unexpected version response: %+v", v)
	}
}

func TestVersion_RejectsTUI(t *testing.T) {
	res := runCLI(t, "version", "--tui")
	if res.code != exitInvalid {
		t.Fatalf("exit = %d, want %d", res.code, exitInvalid)
	}
}
