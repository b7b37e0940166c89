package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/justapithecus/maxreport/adapter"
	"github.com/justapithecus/maxreport/cli/render"
	"github.com/justapithecus/maxreport/iox"
	"github.com/justapithecus/maxreport/lode"
	"github.com/justapithecus/maxreport/log"
	"github.com/justapithecus/maxreport/metrics"
	"github.com/justapithecus/maxreport/report"
	"github.com/justapithecus/maxreport/types"
)

// sidecarName is the file written next to a fetch's records when
// storage.sidecar_csv is set.
const sidecarName = "report.csv"

// timeNow is the clock used for date defaults.
var timeNow = time.Now

// fetchEnv is what a fetchFunc works with.
type fetchEnv struct {
	meta   *types.FetchMeta
	client *report.Client
	// sink receives tables as they arrive when the fetch streams.
	sink   lode.Sink
	logger *log.Logger
}

// fetchFunc runs one logical fetch. Unless the job streams, the
// returned table is persisted after the fetch succeeds.
type fetchFunc func(ctx context.Context, env fetchEnv) (*types.Table, error)

// fetchJob describes one logical fetch and where its output lands.
type fetchJob struct {
	report string
	// day is the partition day of the stored records.
	day string
	// streams is true when fetch writes to the sink itself.
	streams bool
	fetch   fetchFunc
}

// fetchResult is the outcome of one fetchJob.
type fetchResult struct {
	Meta        *types.FetchMeta
	Day         string
	Table       *types.Table
	Err         error
	Outcome     string
	StoragePath string
	Elapsed     time.Duration
	Metrics     metrics.Snapshot
}

// openSink builds the storage sink for a fetch. With no sink path the
// records are discarded.
func (s *session) openSink(ctx context.Context, meta *types.FetchMeta, day string) (lode.Sink, *lode.LodeClient, string, error) {
	if s.storage.path == "" {
		return lode.NewStubSink(), nil, "", nil
	}
	if day == "" {
		day = lode.DeriveDay(time.Now())
	}

	cfg := lode.Config{
		Dataset: firstNonEmpty(s.storage.dataset, lode.DefaultDataset),
		Report:  meta.Report,
		Day:     day,
		FetchID: meta.FetchID,
	}

	switch s.storage.backend {
	case "s3":
		bucket, prefix := lode.ParseS3Path(s.storage.path)
		client, err := lode.NewLodeS3Client(ctx, cfg, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       s.storage.region,
			Endpoint:     s.storage.endpoint,
			UsePathStyle: s.storage.usePathStyle,
		})
		if err != nil {
			return nil, nil, "", err
		}
		location := "s3://" + bucket + "/"
		if prefix != "" {
			location += prefix + "/"
		}
		return client, client, location + cfg.PartitionPath(), nil

	default:
		client, err := lode.NewLodeClient(cfg, s.storage.path)
		if err != nil {
			return nil, nil, "", err
		}
		root, err := filepath.Abs(s.storage.path)
		if err != nil {
			root = s.storage.path
		}
		return client, client, "file://" + filepath.ToSlash(filepath.Join(root, cfg.PartitionPath())), nil
	}
}

// run executes job end to end: fetch, persist, record metrics, notify.
// Storage and notification problems after the fetch are logged; a
// failed table write fails the fetch.
func (s *session) run(ctx context.Context, job fetchJob) *fetchResult {
	meta := types.NewFetchMeta(job.report)
	logger := s.newLogger(meta)
	defer func() { _ = logger.Sync() }()

	res := &fetchResult{Meta: meta, Day: job.day}
	collector := metrics.NewCollector(job.report, s.storage.backend, meta.FetchID)

	raw, files, location, err := s.openSink(ctx, meta, job.day)
	if err != nil {
		res.Err = &configError{err: fmt.Errorf("storage: %w", err)}
		res.Outcome = adapter.OutcomeFailed
		return res
	}
	sink := lode.NewInstrumentedSink(raw, collector)
	defer iox.DiscardClose(sink)

	client, err := report.New(s.clientCfg, s.cred,
		report.WithHTTPClient(s.http),
		report.WithLogger(logger),
		report.WithCollector(collector),
	)
	if err != nil {
		res.Err = &configError{err: err}
		res.Outcome = adapter.OutcomeFailed
		return res
	}
	defer iox.DiscardClose(client)

	start := time.Now()
	table, err := job.fetch(ctx, fetchEnv{meta: meta, client: client, sink: sink, logger: logger})
	if err == nil && !job.streams {
		err = sink.WriteTable(ctx, table)
	}
	res.Elapsed = time.Since(start)
	res.Table = table
	res.Err = err

	// Metrics are persisted for every outcome, including failures.
	finished := time.Now()
	res.Metrics = collector.Snapshot()

	switch {
	case err != nil:
		res.Outcome = adapter.OutcomeFailed
	case report.NoData(table) && res.Metrics.Rows == 0:
		res.Outcome = adapter.OutcomeNoData
	default:
		res.Outcome = adapter.OutcomeSuccess
	}
	if res.Table == nil {
		res.Table = types.NewTable()
	}

	if err := sink.WriteMetrics(ctx, res.Metrics, finished); err != nil {
		logger.Warn("failed to persist fetch metrics", map[string]any{"error": err.Error()})
	}
	if files != nil {
		res.StoragePath = location
		if s.storage.sidecarCSV && res.Outcome == adapter.OutcomeSuccess {
			s.writeSidecar(ctx, files, res.Table, logger)
		}
	}

	s.notify(ctx, res, finished, logger)

	fields := map[string]any{
		"outcome":    res.Outcome,
		"rows":       res.Metrics.Rows,
		"pages":      res.Metrics.Pages,
		"attempts":   res.Metrics.Attempts,
		"elapsed_ms": res.Elapsed.Milliseconds(),
	}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
		logger.Error("fetch failed", fields)
	} else {
		logger.Info("fetch finished", fields)
	}
	return res
}

func (s *session) writeSidecar(ctx context.Context, files lode.FileWriter, table *types.Table, logger *log.Logger) {
	var buf bytes.Buffer
	if err := render.WriteCSV(&buf, table); err != nil {
		logger.Warn("failed to render sidecar csv", map[string]any{"error": err.Error()})
		return
	}
	if err := files.PutFile(ctx, sidecarName, "text/csv", buf.Bytes()); err != nil {
		logger.Warn("failed to write sidecar csv", map[string]any{"error": err.Error()})
	}
}

// notify publishes the completion event. Failures are logged and never
// change the fetch outcome.
func (s *session) notify(ctx context.Context, res *fetchResult, finished time.Time, logger *log.Logger) {
	if s.notifier == nil {
		return
	}
	event := adapter.NewFetchCompletedEvent(res.Meta, res.Day, res.Outcome, finished, res.Elapsed)
	event.StoragePath = res.StoragePath
	event.Attempts = res.Metrics.Attempts
	event.Pages = res.Metrics.Pages
	event.Rows = res.Metrics.Rows
	if res.Err != nil {
		event.Error = res.Err.Error()
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish completion event", map[string]any{"error": err.Error()})
	}
}

// configError marks failures caused by configuration rather than by the
// reporting service.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func isConfigError(err error) bool {
	var ce *configError
	return errors.As(err, &ce)
}
