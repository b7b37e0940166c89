package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/maxreport/cli/render"
	"github.com/justapithecus/maxreport/iox"
	"github.com/justapithecus/maxreport/ipc"
	"github.com/justapithecus/maxreport/report"
	"github.com/justapithecus/maxreport/types"
)

// BatchesCommand returns the batches command: the inline report fetched
// page by page. Each page is persisted as it arrives. With
// --format msgpack the pages are written as a framed stream.
func BatchesCommand() *cli.Command {
	return &cli.Command{
		Name:  "batches",
		Usage: "Fetch the inline revenue report in pages",
		Flags: withFlags(SharedFlags(), ReportQueryFlags(), []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Rows per page",
				Value: types.DefaultPageSize,
			},
		}),
		Action: batchesAction,
	}
}

func batchesAction(c *cli.Context) error {
	q, err := reportQueryFromFlags(c)
	if err != nil {
		return invalid(err)
	}
	q.PageSize = c.Int("batch-size")
	if q.PageSize <= 0 {
		return invalid(fmt.Errorf("--batch-size must be > 0, got %d", q.PageSize))
	}

	q = q.WithDefaults(timeNow())
	if err := q.Validate(); err != nil {
		return invalid(err)
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	s, err := newSession(ctx, c)
	if err != nil {
		return invalid(err)
	}
	defer iox.DiscardClose(s)

	streaming := render.Format(s.format) == render.FormatMsgpack
	var frames *ipc.FrameEncoder
	if streaming {
		w, closeOut, err := s.outputWriter()
		if err != nil {
			return invalid(err)
		}
		defer closeOut()
		frames = ipc.NewFrameEncoder(w)
	}

	res := s.run(ctx, fetchJob{
		report:  types.ReportRevenue,
		day:     q.End,
		streams: true,
		fetch: func(ctx context.Context, env fetchEnv) (*types.Table, error) {
			return consumePages(ctx, env.client.Pages(q), env, frames, !streaming)
		},
	})

	if streaming {
		summary := ipc.SummaryFrame{
			FetchID: res.Meta.FetchID,
			Report:  res.Meta.Report,
			Outcome: res.Outcome,
			Pages:   res.Metrics.Pages,
			Rows:    res.Metrics.Rows,
		}
		if res.Err != nil {
			summary.Error = res.Err.Error()
		}
		if err := frames.WriteSummary(summary); err != nil {
			return cli.Exit(fmt.Sprintf("Error: write summary frame: %v", err), exitFailed)
		}
	} else if res.Err == nil {
		if err := s.emit(res.Table, summaryOf(res)); err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), exitFailed)
		}
	}
	return exitFor(res.Err, res.Outcome)
}

// consumePages drains it, persisting each page and logging progress.
// Pages are framed onto frames when it is non-nil and gathered into the
// returned table when collect is set. Rows from pages consumed before a
// failure stay persisted.
func consumePages(ctx context.Context, it *report.PageIterator, env fetchEnv, frames *ipc.FrameEncoder, collect bool) (*types.Table, error) {
	all := types.NewTable()
	prog := newProgress(timeNow)

	for page, err := range it.All(ctx) {
		if err != nil {
			return all, err
		}
		if err := env.sink.WriteTable(ctx, page.Table); err != nil {
			return all, err
		}
		if frames != nil {
			if err := frames.WritePage(env.meta.FetchID, page); err != nil {
				return all, fmt.Errorf("write page frame: %w", err)
			}
		}
		if collect {
			all.Append(page.Table)
		}
		env.logger.Info("batch consumed", prog.record(page.Count()))
	}
	return all, nil
}

// progress tracks rows consumed across pages.
type progress struct {
	now   func() time.Time
	start time.Time
	pages int
	rows  int64
}

func newProgress(now func() time.Time) *progress {
	return &progress{now: now, start: now()}
}

// record adds a page of n rows and returns the progress log fields:
// total rows, elapsed seconds and rows per second.
func (p *progress) record(n int) map[string]any {
	p.pages++
	p.rows += int64(n)
	elapsed := p.now().Sub(p.start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.rows) / elapsed
	}
	return map[string]any{
		"pages":      p.pages,
		"rows":       p.rows,
		"elapsed_s":  elapsed,
		"rows_per_s": rate,
	}
}
