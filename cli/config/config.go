package config

import (
	"fmt"
	"time"

	"github.com/justapithecus/maxreport/types"
)

// Config represents a maxreport.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	APIKeys     []string          `yaml:"api_keys"`
	KeyStrategy types.KeyStrategy `yaml:"key_strategy"`
	SSM         SSMConfig         `yaml:"ssm"`
	Endpoints   EndpointsConfig   `yaml:"endpoints"`
	Retry       RetryConfig       `yaml:"retry"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Timeout     Duration          `yaml:"timeout"`
	Storage     StorageConfig     `yaml:"storage"`
	Adapter     AdapterConfig     `yaml:"adapter"`
	Output      OutputConfig      `yaml:"output"`
}

// SSMConfig names AWS SSM parameters holding API keys.
type SSMConfig struct {
	Region     string   `yaml:"region"`
	Profile    string   `yaml:"profile"`
	Parameters []string `yaml:"parameters"`
}

// EndpointsConfig overrides the reporting service URLs.
type EndpointsConfig struct {
	Report      string `yaml:"report"`
	UserRevenue string `yaml:"user_revenue"`
}

// RetryConfig holds per-report retry overrides.
type RetryConfig struct {
	Report      RetrySection `yaml:"report"`
	UserRevenue RetrySection `yaml:"user_revenue"`
}

// RetrySection overrides fields of a retry configuration. Unset fields
// keep the base value.
type RetrySection struct {
	MaxRetries    *int                `yaml:"max_retries,omitempty"`
	Strategy      types.RetryStrategy `yaml:"strategy,omitempty"`
	Interval      Duration            `yaml:"interval,omitempty"`
	BackoffFactor Duration            `yaml:"backoff_factor,omitempty"`
	Statuses      []int               `yaml:"statuses,omitempty"`
}

// Apply overlays the section onto base.
func (s RetrySection) Apply(base types.RetryConfig) types.RetryConfig {
	if s.MaxRetries != nil {
		base.MaxRetries = *s.MaxRetries
	}
	if s.Strategy != "" {
		base.Strategy = s.Strategy
	}
	if s.Interval.Duration > 0 {
		base.Interval = s.Interval.Duration
	}
	if s.BackoffFactor.Duration > 0 {
		base.BackoffFactor = s.BackoffFactor.Duration
	}
	if len(s.Statuses) > 0 {
		base.RetryStatuses = s.Statuses
	}
	return base
}

// RateLimitConfig paces outgoing requests.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// StorageConfig holds sink defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	SidecarCSV  bool   `yaml:"sidecar_csv"`
}

// AdapterConfig holds notification adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// OutputConfig holds rendering defaults.
type OutputConfig struct {
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Credential builds the credential configured by the file's api_keys,
// or returns false when none are set.
func (c *Config) Credential() (types.Credential, bool) {
	switch len(c.APIKeys) {
	case 0:
		return types.Credential{}, false
	case 1:
		return types.SingleKey(c.APIKeys[0]), true
	default:
		return types.KeySet(c.KeyStrategy, c.APIKeys...), true
	}
}
