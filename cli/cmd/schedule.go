package cmd

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/maxreport/iox"
	"github.com/justapithecus/maxreport/log"
	"github.com/justapithecus/maxreport/types"
)

// DefaultSchedule runs the daily fetch at 03:00 local time.
const DefaultSchedule = "0 3 * * *"

// ScheduleCommand returns the schedule command: the paginated report for
// the default date window, run on a cron schedule until interrupted.
func ScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Fetch the paginated report on a cron schedule",
		Flags: withFlags(SharedFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:  "cron",
				Usage: "Standard five-field cron expression",
				Value: DefaultSchedule,
			},
			&cli.BoolFlag{
				Name:  "run-now",
				Usage: "Also fetch once immediately",
			},
			&cli.StringSliceFlag{
				Name:     "columns",
				Usage:    "Report columns, comma separated or repeated",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "filter",
				Usage: "Extra query parameter as key=value (repeatable)",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Rows per page",
				Value: types.DefaultPageSize,
			},
		}),
		Action: scheduleAction,
	}
}

func scheduleAction(c *cli.Context) error {
	filters, err := parseFilters(c.StringSlice("filter"))
	if err != nil {
		return invalid(err)
	}
	base := types.ReportQuery{
		Columns:  nonEmpty(c.StringSlice("columns")),
		Filters:  filters,
		PageSize: c.Int("batch-size"),
	}
	if err := base.WithDefaults(timeNow()).Validate(); err != nil {
		return invalid(err)
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	s, err := newSession(ctx, c)
	if err != nil {
		return invalid(err)
	}
	defer iox.DiscardClose(s)

	logger := s.newLogger(nil)
	job := func(ctx context.Context) {
		// The window is recomputed on every tick.
		q := base.WithDefaults(timeNow())
		res := s.run(ctx, fetchJob{
			report:  types.ReportRevenue,
			day:     q.End,
			streams: true,
			fetch: func(ctx context.Context, env fetchEnv) (*types.Table, error) {
				return consumePages(ctx, env.client.Pages(q), env, nil, false)
			},
		})
		logger.Info("scheduled fetch finished", map[string]any{
			"fetch_id": res.Meta.FetchID,
			"start":    q.Start,
			"end":      q.End,
			"outcome":  res.Outcome,
			"rows":     res.Metrics.Rows,
		})
	}

	sched, err := newScheduler(c.String("cron"), logger)
	if err != nil {
		return invalid(err)
	}
	if err := sched.Run(ctx, c.Bool("run-now"), job); err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitFailed)
	}
	return nil
}

// scheduler runs one job on a cron schedule. Ticks that arrive while
// the previous run is still going are skipped.
type scheduler struct {
	cron   *cron.Cron
	entry  cron.EntryID
	spec   string
	logger *log.Logger
}

// newScheduler validates spec.
func newScheduler(spec string, logger *log.Logger) (*scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return &scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:   spec,
		logger: logger,
	}, nil
}

// Run registers job, starts the schedule and blocks until ctx is done,
// then waits for a running job to finish. Jobs receive ctx. With runNow
// the job also runs once first.
func (s *scheduler) Run(ctx context.Context, runNow bool, job func(context.Context)) error {
	entry, err := s.cron.AddFunc(s.spec, func() { job(ctx) })
	if err != nil {
		return err
	}
	s.entry = entry

	if runNow {
		job(ctx)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", map[string]any{
		"schedule": s.spec,
		"next":     s.cron.Entry(s.entry).Next,
	})

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped", nil)
	return nil
}
