package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/maxreport/adapter"
	"github.com/justapithecus/maxreport/adapter/redis"
	"github.com/justapithecus/maxreport/adapter/webhook"
	"github.com/justapithecus/maxreport/cli/config"
	"github.com/justapithecus/maxreport/cli/render"
	"github.com/justapithecus/maxreport/log"
	"github.com/justapithecus/maxreport/report"
	"github.com/justapithecus/maxreport/types"
)

// errNoCredential is returned when no API key source is configured.
var errNoCredential = errors.New("no API key: use --api-key, MAX_API_KEY, --api-key-ssm, or api_keys in the config file")

// storageChoice holds resolved storage configuration.
type storageChoice struct {
	dataset      string
	backend      string // "fs" or "s3"
	path         string // fs: directory, s3: bucket/prefix
	region       string
	endpoint     string
	usePathStyle bool
	sidecarCSV   bool
}

// notifyChoice holds resolved notification adapter configuration.
type notifyChoice struct {
	kind    string // "webhook" or "redis"
	url     string
	channel string
	headers map[string]string
	timeout config.Duration
	retries *int
}

// session is everything a command needs to run fetches, resolved from
// flags, environment and the config file. Flags win over the file.
type session struct {
	cred      types.Credential
	clientCfg report.Config
	http      *http.Client
	storage   storageChoice
	notifier  adapter.Adapter
	level     zapcore.Level
	stderr    io.Writer
	stdout    io.Writer
	format    string
	outPath   string
	quiet     bool
	tui       bool
	browse    bool
}

// newSession resolves flags and config into a session. Errors are
// configuration errors and map to the invalid-input exit code.
func newSession(ctx context.Context, c *cli.Context) (*session, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cred, err := resolveCredential(ctx, c, cfg)
	if err != nil {
		return nil, err
	}

	clientCfg, err := resolveClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{
		cred:      cred,
		clientCfg: clientCfg,
		http:      &http.Client{Timeout: clientCfg.Timeout},
		storage:   resolveStorage(c, cfg),
		level:     zapcore.InfoLevel,
		stderr:    c.App.ErrWriter,
		stdout:    c.App.Writer,
		format:    firstNonEmpty(c.String("format"), cfg.Output.Format),
		outPath:   firstNonEmpty(c.String("out"), cfg.Output.Path),
		quiet:     c.Bool("quiet"),
		tui:       c.Bool("tui"),
		browse:    c.Bool("browse"),
	}
	if s.stderr == nil {
		s.stderr = os.Stderr
	}
	// Concurrent fetches share the log writer.
	s.stderr = zapcore.Lock(zapcore.AddSync(s.stderr))
	if s.stdout == nil {
		s.stdout = os.Stdout
	}
	if c.Bool("verbose") {
		s.level = zapcore.DebugLevel
	}
	if _, err := render.ParseFormat(s.format); err != nil {
		return nil, err
	}
	if err := validateStorage(s.storage); err != nil {
		return nil, err
	}

	notifier, err := buildNotifier(resolveNotify(c, cfg))
	if err != nil {
		return nil, err
	}
	s.notifier = notifier

	return s, nil
}

// Close releases the notifier and idle connections.
func (s *session) Close() error {
	s.http.CloseIdleConnections()
	if s.notifier != nil {
		return s.notifier.Close()
	}
	return nil
}

// newLogger builds a fetch-scoped logger writing to stderr.
func (s *session) newLogger(meta *types.FetchMeta) *log.Logger {
	return log.NewLoggerWithLevel(meta, s.stderr, s.level)
}

// resolveCredential picks keys from, in order: --api-key (or MAX_API_KEY),
// --api-key-ssm, the config file's api_keys, the config file's ssm
// parameters.
func resolveCredential(ctx context.Context, c *cli.Context, cfg *config.Config) (types.Credential, error) {
	strategy := types.KeyStrategy(firstNonEmpty(c.String("key-strategy"), string(cfg.KeyStrategy)))

	if keys := nonEmpty(c.StringSlice("api-key")); len(keys) > 0 {
		return validated(types.NewCredential(strategy, keys...))
	}

	names := nonEmpty(c.StringSlice("api-key-ssm"))
	if len(names) == 0 {
		if cred, ok := cfg.Credential(); ok {
			if strategy != "" && cred.Kind() == types.CredentialKeySet {
				cred = types.KeySet(strategy, cred.Keys()...)
			}
			return validated(cred)
		}
		names = cfg.SSM.Parameters
	}
	if len(names) == 0 {
		return types.Credential{}, errNoCredential
	}

	client, err := config.NewSSMClient(ctx, cfg.SSM.Region, cfg.SSM.Profile)
	if err != nil {
		return types.Credential{}, err
	}
	keys, err := config.LoadSSMKeys(ctx, client, names)
	if err != nil {
		return types.Credential{}, err
	}
	return validated(types.NewCredential(strategy, keys...))
}

func validated(cred types.Credential) (types.Credential, error) {
	if err := cred.Validate(); err != nil {
		return types.Credential{}, err
	}
	return cred, nil
}

// resolveClientConfig overlays the config file onto the client defaults.
func resolveClientConfig(cfg *config.Config) (report.Config, error) {
	rc := report.DefaultConfig()
	if cfg.Endpoints.Report != "" {
		rc.ReportEndpoint = cfg.Endpoints.Report
	}
	if cfg.Endpoints.UserRevenue != "" {
		rc.UserRevenueEndpoint = cfg.Endpoints.UserRevenue
	}
	rc.ReportRetry = cfg.Retry.Report.Apply(rc.ReportRetry)
	rc.UserRevenueRetry = cfg.Retry.UserRevenue.Apply(rc.UserRevenueRetry)
	if err := rc.ReportRetry.Validate(); err != nil {
		return report.Config{}, fmt.Errorf("retry.report: %w", err)
	}
	if err := rc.UserRevenueRetry.Validate(); err != nil {
		return report.Config{}, fmt.Errorf("retry.user_revenue: %w", err)
	}
	if cfg.RateLimit.RequestsPerSecond < 0 {
		return report.Config{}, fmt.Errorf("rate_limit.requests_per_second must be >= 0, got %v", cfg.RateLimit.RequestsPerSecond)
	}
	rc.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
	rc.Burst = cfg.RateLimit.Burst
	if cfg.Timeout.Duration > 0 {
		rc.Timeout = cfg.Timeout.Duration
	}
	return rc, nil
}

func resolveStorage(c *cli.Context, cfg *config.Config) storageChoice {
	return storageChoice{
		dataset:      cfg.Storage.Dataset,
		backend:      firstNonEmpty(c.String("sink-backend"), cfg.Storage.Backend, "fs"),
		path:         firstNonEmpty(c.String("sink-path"), cfg.Storage.Path),
		region:       firstNonEmpty(c.String("sink-s3-region"), cfg.Storage.Region),
		endpoint:     cfg.Storage.Endpoint,
		usePathStyle: cfg.Storage.S3PathStyle,
		sidecarCSV:   cfg.Storage.SidecarCSV,
	}
}

func validateStorage(s storageChoice) error {
	switch s.backend {
	case "fs", "s3":
		return nil
	default:
		return fmt.Errorf("unknown sink-backend: %s (must be fs or s3)", s.backend)
	}
}

func resolveNotify(c *cli.Context, cfg *config.Config) notifyChoice {
	return notifyChoice{
		kind:    firstNonEmpty(c.String("notify-type"), cfg.Adapter.Type),
		url:     firstNonEmpty(c.String("notify-url"), cfg.Adapter.URL),
		channel: cfg.Adapter.Channel,
		headers: cfg.Adapter.Headers,
		timeout: cfg.Adapter.Timeout,
		retries: cfg.Adapter.Retries,
	}
}

// buildNotifier returns nil when no adapter is configured.
func buildNotifier(n notifyChoice) (adapter.Adapter, error) {
	if n.kind == "" {
		if n.url != "" {
			return nil, errors.New("--notify-url requires --notify-type")
		}
		return nil, nil
	}

	switch n.kind {
	case "webhook":
		retries := webhook.DefaultRetries
		if n.retries != nil {
			retries = *n.retries
		}
		a, err := webhook.New(webhook.Config{
			URL:     n.url,
			Headers: n.headers,
			Timeout: n.timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		retries := redis.DefaultRetries
		if n.retries != nil {
			retries = *n.retries
		}
		a, err := redis.New(redis.Config{
			URL:     n.url,
			Channel: n.channel,
			Timeout: n.timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown notify-type: %s (must be webhook or redis)", n.kind)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
