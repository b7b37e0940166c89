package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/maxreport/types"
)

func TestLoad_FullConfig(t *testing.T) {
	t.Setenv("MAX_KEY_A", "key-a")

	yaml := `api_keys:
  - ${MAX_KEY_A}
  - key-b
key_strategy: random

ssm:
  region: us-east-1
  profile: reporting
  parameters:
    - /maxreport/api_key

endpoints:
  report: https://r.example.com/maxReport
  user_revenue: https://r.example.com/max/userAdRevenueReport

retry:
  report:
    max_retries: 2
    interval: 10s
  user_revenue:
    strategy: backoff
    backoff_factor: 2s
    statuses: [429, 503]

rate_limit:
  requests_per_second: 2.5
  burst: 3

timeout: 2m

storage:
  dataset: revenue
  backend: s3
  path: my-bucket/prefix
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true
  sidecar_csv: true

adapter:
  type: webhook
  url: https://hooks.example.com/maxreport
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3

output:
  format: csv
  path: out.csv
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "api_keys", strings.Join(cfg.APIKeys, ","), "key-a,key-b")
	assertEqual(t, "key_strategy", string(cfg.KeyStrategy), "random")
	assertEqual(t, "ssm.profile", cfg.SSM.Profile, "reporting")
	assertEqual(t, "ssm.parameters", strings.Join(cfg.SSM.Parameters, ","), "/maxreport/api_key")
	assertEqual(t, "endpoints.report", cfg.Endpoints.Report, "https://r.example.com/maxReport")
	assertEqual(t, "storage.backend", cfg.Storage.Backend, "s3")
	assertEqual(t, "storage.path", cfg.Storage.Path, "my-bucket/prefix")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/maxreport")
	assertEqual(t, "output.format", cfg.Output.Format, "csv")

	if !cfg.Storage.S3PathStyle || !cfg.Storage.SidecarCSV {
		t.Error("expected s3_path_style and sidecar_csv")
	}
	if cfg.RateLimit.RequestsPerSecond != 2.5 || cfg.RateLimit.Burst != 3 {
		t.Errorf("rate_limit = %+v", cfg.RateLimit)
	}
	if cfg.Timeout.Duration != 2*time.Minute {
		t.Errorf("timeout = %v", cfg.Timeout.Duration)
	}
	if cfg.Adapter.Headers["Authorization"] != "Bearer token123" {
		t.Error("expected Authorization header")
	}

	report := cfg.Retry.Report.Apply(types.DefaultReportRetry())
	if report.MaxRetries != 2 || report.Interval != 10*time.Second || report.Strategy != types.RetryFixed {
		t.Errorf("report retry = %+v", report)
	}
	user := cfg.Retry.UserRevenue.Apply(types.DefaultUserRevenueRetry())
	if user.MaxRetries != 5 || user.BackoffFactor != 2*time.Second {
		t.Errorf("user revenue retry = %+v", user)
	}
	if len(user.RetryStatuses) != 2 || user.RetryStatuses[0] != 429 {
		t.Errorf("user revenue statuses = %v", user.RetryStatuses)
	}

	cred, ok := cfg.Credential()
	if !ok {
		t.Fatal("expected credential from api_keys")
	}
	if cred.Kind() != types.CredentialKeySet || cred.Len() != 2 {
		t.Errorf("credential = %s", cred)
	}
}

func TestLoad_EmptyConfigs(t *testing.T) {
	for name, content := range map[string]string{
		"empty":      "",
		"whitespace": "   \n\n  \t\n",
		"comments":   "# nothing here\n# at all\n",
		"tabs only":  "\t\t\n\t",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if _, ok := cfg.Credential(); ok {
				t.Error("empty config should carry no credential")
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load("/nonexistent/maxreport.yaml"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing file error = %v", err)
	}

	tests := []struct {
		name, content, mention string
	}{
		{"invalid yaml", "{{invalid yaml", "invalid YAML"},
		{"unknown key", "api_keys: [a]\nbogus_key: x\n", "bogus_key"},
		{"unknown nested key", "storage:\n  backend: fs\n  unknown_field: bad\n", "unknown_field"},
		{"bad duration", "adapter:\n  timeout: not-a-duration\n", "invalid duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("error should mention %q, got: %v", tt.mention, err)
			}
		})
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: redis\n  url: redis://localhost:6379/0\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 0 {
		t.Fatalf("expected retries=*int(0), got %v", cfg.Adapter.Retries)
	}
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "")

	cfg, err = Load(writeTemp(t, "adapter:\n  type: webhook\n  url: https://example.com\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("expected nil retries, got %d", *cfg.Adapter.Retries)
	}
}

func TestRetrySection_ZeroMaxRetriesOverrides(t *testing.T) {
	cfg, err := Load(writeTemp(t, "retry:\n  report:\n    max_retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got := cfg.Retry.Report.Apply(types.DefaultReportRetry())
	if got.MaxRetries != 0 {
		t.Errorf("max_retries: 0 should disable retries, got %d", got.MaxRetries)
	}
	if got.Interval != 30*time.Second {
		t.Errorf("unset interval should keep the default, got %v", got.Interval)
	}
}

func TestCredential_SingleKey(t *testing.T) {
	cfg := &Config{APIKeys: []string{"only"}}
	cred, ok := cfg.Credential()
	if !ok || cred.Kind() != types.CredentialSingleKey {
		t.Fatalf("credential = %s, ok = %v", cred, ok)
	}
}

func TestDuration_EmptyIsZero(t *testing.T) {
	cfg, err := Load(writeTemp(t, "timeout: \"\"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Timeout.Duration != 0 {
		t.Errorf("expected zero duration, got %v", cfg.Timeout.Duration)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "maxreport.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
