package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/maxreport/adapter"
	"github.com/justapithecus/maxreport/cli/tui"
	"github.com/justapithecus/maxreport/iox"
	"github.com/justapithecus/maxreport/types"
)

// defaultConcurrency bounds parallel user revenue fetches.
const defaultConcurrency = 4

// UserRevenueCommand returns the user-revenue command. Each --date is an
// independent fetch with its own fetch id, partition and notification.
func UserRevenueCommand() *cli.Command {
	return &cli.Command{
		Name:  "user-revenue",
		Usage: "Fetch the user-level ad revenue report for one or more dates",
		Flags: withFlags(SharedFlags(), []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "date",
				Usage: "Report date (YYYY-MM-DD, repeatable, default yesterday)",
			},
			&cli.StringFlag{
				Name:  "platform",
				Usage: "Application platform: android or ios",
			},
			&cli.StringFlag{
				Name:  "application",
				Usage: "Android package name",
			},
			&cli.StringFlag{
				Name:  "store-id",
				Usage: "iOS App Store id",
			},
			&cli.BoolFlag{
				Name:  "per-impression",
				Usage: "Fetch per-impression rows instead of aggregates",
			},
			&cli.StringSliceFlag{
				Name:  "filter",
				Usage: "Extra query parameter as key=value (repeatable)",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Dates fetched in parallel",
				Value: defaultConcurrency,
			},
		}),
		Action: userRevenueAction,
	}
}

func userRevenueAction(c *cli.Context) error {
	queries, err := userRevenueQueries(c)
	if err != nil {
		return invalid(err)
	}
	limit := c.Int("concurrency")
	if limit <= 0 {
		return invalid(fmt.Errorf("--concurrency must be > 0, got %d", limit))
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	s, err := newSession(ctx, c)
	if err != nil {
		return invalid(err)
	}
	defer iox.DiscardClose(s)

	results := fetchUserRevenue(ctx, s, queries, limit)

	combined := types.NewTable()
	for _, res := range results {
		combined.Append(res.Table)
	}
	outcome, err := mergeOutcomes(results)
	if err == nil {
		// The summary view covers a single fetch.
		var summary *tui.FetchSummary
		if len(results) == 1 {
			summary = summaryOf(results[0])
		}
		if err := s.emit(combined, summary); err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), exitFailed)
		}
	}
	return exitFor(err, outcome)
}

// userRevenueQueries builds one validated query per --date.
func userRevenueQueries(c *cli.Context) ([]types.UserRevenueQuery, error) {
	filters, err := parseFilters(c.StringSlice("filter"))
	if err != nil {
		return nil, err
	}
	base := types.UserRevenueQuery{
		PerImpression: c.Bool("per-impression"),
		Application:   c.String("application"),
		StoreID:       c.String("store-id"),
		Platform:      types.Platform(c.String("platform")),
		Filters:       filters,
	}

	dates := nonEmpty(c.StringSlice("date"))
	if len(dates) == 0 {
		dates = []string{""}
	}
	slices.Sort(dates)
	dates = slices.Compact(dates)

	queries := make([]types.UserRevenueQuery, 0, len(dates))
	for _, date := range dates {
		q := base
		q.Date = date
		q = q.WithDefaults(timeNow())
		if err := q.Validate(); err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, nil
}

// fetchUserRevenue runs one fetch per query, at most limit at a time.
// A failed date does not cancel the others. Results keep query order.
func fetchUserRevenue(ctx context.Context, s *session, queries []types.UserRevenueQuery, limit int) []*fetchResult {
	results := make([]*fetchResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, q := range queries {
		g.Go(func() error {
			results[i] = s.run(gctx, fetchJob{
				report: types.ReportUserRevenue,
				day:    q.Date,
				fetch: func(ctx context.Context, env fetchEnv) (*types.Table, error) {
					return env.client.UserRevenue(ctx, q)
				},
			})
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// mergeOutcomes folds per-date results into one error and outcome:
// any failure fails the command, and it reports no data only when every
// date came back empty.
func mergeOutcomes(results []*fetchResult) (string, error) {
	var errs []error
	empty := 0
	for _, res := range results {
		switch {
		case res.Err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", res.Day, res.Err))
		case res.Outcome == adapter.OutcomeNoData:
			empty++
		}
	}
	if len(errs) > 0 {
		return adapter.OutcomeFailed, errors.Join(errs...)
	}
	if empty == len(results) {
		return adapter.OutcomeNoData, nil
	}
	return adapter.OutcomeSuccess, nil
}
