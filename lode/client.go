package lode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/maxreport/metrics"
	"github.com/justapithecus/maxreport/types"
)

// LodeClient is a Lode-backed implementation of Sink.
// Uses Lode's HiveLayout with partition keys: report/day/fetch_id/record_kind.
type LodeClient struct {
	dataset lode.Dataset
	config  Config

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error

	mu  sync.Mutex // guards seq
	seq int64      // next row sequence number across WriteTable calls
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lode config: %w", err)
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return newClient(ds, cfg, factory), nil
}

func newClient(ds lode.Dataset, cfg Config, factory lode.StoreFactory) *LodeClient {
	return &LodeClient{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
	}
}

// newDataset opens the dataset with the layout and codec both the write
// and read paths use.
func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteTable writes the table's rows as one snapshot. Each record
// carries a sequence number continuing from the previous call.
// The sequence only advances after a successful write.
func (c *LodeClient) WriteTable(ctx context.Context, table *types.Table) error {
	if table.Empty() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	records := make([]any, 0, table.Len())
	for i, row := range table.Rows {
		records = append(records, toRowRecordMap(row, c.seq+int64(i), table.Columns, c.config))
	}

	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.PartitionPath())
	}
	c.seq += int64(table.Len())
	return nil
}

// WriteMetrics writes one metrics record for the fetch.
func (c *LodeClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	record := toMetricsRecordMap(snap, completedAt, c.config)
	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.PartitionPath())
	}
	return nil
}

// Config returns the client's partition configuration.
func (c *LodeClient) Config() Config {
	return c.config
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// Verify LodeClient implements Sink.
var _ Sink = (*LodeClient)(nil)
