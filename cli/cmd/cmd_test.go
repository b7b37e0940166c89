package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/maxreport/adapter"
	"github.com/justapithecus/maxreport/cli/config"
	"github.com/justapithecus/maxreport/log"
	"github.com/justapithecus/maxreport/report"
	"github.com/justapithecus/maxreport/types"
)

func TestCommands_NoDuplicateFlags(t *testing.T) {
	commands := []*cli.Command{
		ReportCommand(),
		BatchesCommand(),
		UserRevenueCommand(),
		ScheduleCommand(),
		VersionCommand("test"),
	}
	for _, cmd := range commands {
		seen := map[string]bool{}
		for _, f := range cmd.Flags {
			for _, name := range f.Names() {
				if seen[name] {
					t.Errorf("%s: duplicate flag name %q", cmd.Name, name)
				}
				seen[name] = true
			}
		}
	}
}

func TestSharedFlags_Present(t *testing.T) {
	want := []string{"config", "api-key", "format", "out", "quiet", "verbose", "sink-path", "notify-type"}
	cmd := ReportCommand()
	for _, name := range want {
		found := false
		for _, f := range cmd.Flags {
			for _, n := range f.Names() {
				if n == name {
					found = true
				}
			}
		}
		if !found {
			t.Errorf("report command missing --%s", name)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome string
		want    int
	}{
		{"success", nil, adapter.OutcomeSuccess, exitSuccess},
		{"no data", nil, adapter.OutcomeNoData, exitNoData},
		{"failed", errors.New("boom"), adapter.OutcomeFailed, exitFailed},
		{"exhausted", &report.ExhaustedRetriesError{Attempts: 4, LastStatus: 503}, adapter.OutcomeFailed, exitFailed},
		{"invalid query", fmt.Errorf("wrap: %w", types.ErrInvalidQuery), adapter.OutcomeFailed, exitInvalid},
		{"config", &configError{err: errors.New("bad storage")}, adapter.OutcomeFailed, exitInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err, tt.outcome); got != tt.want {
				t.Errorf("exitCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExitFor_Interrupted(t *testing.T) {
	err := exitFor(context.Canceled, adapter.OutcomeFailed)
	var ec cli.ExitCoder
	if !errors.As(err, &ec) {
		t.Fatalf("expected ExitCoder, got %T", err)
	}
	if ec.ExitCode() != exitFailed {
		t.Errorf("code = %d, want %d", ec.ExitCode(), exitFailed)
	}
	if err.Error() != "interrupted" {
		t.Errorf("message = %q, want interrupted", err.Error())
	}
}

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"country=us", "ad_type=banner", "note=a=b"})
	if err != nil {
		t.Fatalf("parseFilters: %v", err)
	}
	want := map[string]any{"country": "us", "ad_type": "banner", "note": "a=b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}

	empty, err := parseFilters(nil)
	if err != nil {
		t.Fatalf("parseFilters(nil): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no filters, got %v", empty)
	}

	for _, bad := range []string{"country", "=us"} {
		if _, err := parseFilters([]string{bad}); err == nil {
			t.Errorf("parseFilters(%q): expected error", bad)
		}
	}
}

func TestProgress_Record(t *testing.T) {
	start := time.Date(2023, 5, 17, 0, 0, 0, 0, time.UTC)
	now := start
	p := newProgress(func() time.Time { return now })

	now = start.Add(2 * time.Second)
	fields := p.record(100)
	if fields["pages"] != 1 || fields["rows"] != int64(100) {
		t.Errorf("first record = %v", fields)
	}

	now = start.Add(4 * time.Second)
	fields = p.record(300)
	if fields["pages"] != 2 || fields["rows"] != int64(400) {
		t.Errorf("second record = %v", fields)
	}
	if fields["elapsed_s"] != 4.0 {
		t.Errorf("elapsed_s = %v, want 4", fields["elapsed_s"])
	}
	if fields["rows_per_s"] != 100.0 {
		t.Errorf("rows_per_s = %v, want 100", fields["rows_per_s"])
	}
}

func TestMergeOutcomes(t *testing.T) {
	ok := &fetchResult{Day: "2023-05-15", Outcome: adapter.OutcomeSuccess}
	empty := &fetchResult{Day: "2023-05-16", Outcome: adapter.OutcomeNoData}
	failed := &fetchResult{Day: "2023-05-17", Outcome: adapter.OutcomeFailed, Err: errors.New("boom")}

	outcome, err := mergeOutcomes([]*fetchResult{ok, empty})
	if err != nil || outcome != adapter.OutcomeSuccess {
		t.Errorf("success+no_data = (%s, %v), want success", outcome, err)
	}

	outcome, err = mergeOutcomes([]*fetchResult{empty, empty})
	if err != nil || outcome != adapter.OutcomeNoData {
		t.Errorf("all empty = (%s, %v), want no_data", outcome, err)
	}

	outcome, err = mergeOutcomes([]*fetchResult{ok, failed})
	if outcome != adapter.OutcomeFailed {
		t.Errorf("outcome = %s, want failed", outcome)
	}
	if err == nil || !strings.Contains(err.Error(), "2023-05-17") {
		t.Errorf("error should name the failed day, got %v", err)
	}
}

func TestBuildNotifier(t *testing.T) {
	n, err := buildNotifier(notifyChoice{})
	if err != nil || n != nil {
		t.Errorf("no notify type: got (%v, %v), want (nil, nil)", n, err)
	}

	if _, err := buildNotifier(notifyChoice{kind: "carrier-pigeon", url: "x"}); err == nil {
		t.Error("expected error for unknown notify type")
	}

	if _, err := buildNotifier(notifyChoice{kind: "webhook"}); err == nil {
		t.Error("expected error for webhook without URL")
	}

	n, err = buildNotifier(notifyChoice{kind: "webhook", url: "http://127.0.0.1:1/hook"})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if n == nil {
		t.Fatal("expected webhook notifier")
	}
	_ = n.Close()
}

func TestResolveClientConfig(t *testing.T) {
	zero := 0
	cfg := &config.Config{
		Endpoints: config.EndpointsConfig{Report: "http://localhost/report"},
		Retry: config.RetryConfig{
			Report: config.RetrySection{MaxRetries: &zero},
		},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 2, Burst: 3},
		Timeout:   config.Duration{Duration: 10 * time.Second},
	}

	got, err := resolveClientConfig(cfg)
	if err != nil {
		t.Fatalf("resolveClientConfig: %v", err)
	}
	def := report.DefaultConfig()
	if got.ReportEndpoint != "http://localhost/report" {
		t.Errorf("report endpoint = %q", got.ReportEndpoint)
	}
	if got.UserRevenueEndpoint != def.UserRevenueEndpoint {
		t.Errorf("user revenue endpoint = %q, want default %q", got.UserRevenueEndpoint, def.UserRevenueEndpoint)
	}
	if got.ReportRetry.MaxRetries != 0 {
		t.Errorf("report max retries = %d, want 0", got.ReportRetry.MaxRetries)
	}
	if got.UserRevenueRetry.MaxRetries != def.UserRevenueRetry.MaxRetries {
		t.Errorf("user revenue max retries = %d, want default", got.UserRevenueRetry.MaxRetries)
	}
	if got.RequestsPerSecond != 2 || got.Burst != 3 {
		t.Errorf("rate limit = %v/%d", got.RequestsPerSecond, got.Burst)
	}
	if got.Timeout != 10*time.Second {
		t.Errorf("timeout = %v", got.Timeout)
	}
}

func TestResolveClientConfig_RejectsNegativeRetries(t *testing.T) {
	neg := -1
	cfg := &config.Config{Retry: config.RetryConfig{
		UserRevenue: config.RetrySection{MaxRetries: &neg},
	}}
	if _, err := resolveClientConfig(cfg); err == nil {
		t.Error("expected error for negative max_retries")
	}
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	if _, err := newScheduler("not a cron", log.NewNop()); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestScheduler_RunNowThenStop(t *testing.T) {
	s, err := newScheduler(DefaultSchedule, log.NewNop())
	if err != nil {
		t.Fatalf("newScheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	runs := 0
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, true, func(context.Context) {
			runs++
			cancel()
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
}
