package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/maxreport/iox"
	"github.com/justapithecus/maxreport/types"
)

// ReportCommand returns the report command: one inline report request
// capped at --limit rows.
func ReportCommand() *cli.Command {
	return &cli.Command{
		Name:   "report",
		Usage:  "Fetch the inline revenue report in a single request",
		Flags:  withFlags(SharedFlags(), ReportQueryFlags(), []cli.Flag{limitFlag}),
		Action: reportAction,
	}
}

func reportAction(c *cli.Context) error {
	q, err := reportQueryFromFlags(c)
	if err != nil {
		return invalid(err)
	}
	q.Limit = c.Int("limit")

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

	res := s.run(ctx, fetchJob{
		report: types.ReportRevenue,
		day:    q.End,
		fetch: func(ctx context.Context, env fetchEnv) (*types.Table, error) {
			return env.client.Report(ctx, q)
		},
	})

	if res.Err == nil {
		if err := s.emit(res.Table, summaryOf(res)); err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), exitFailed)
		}
	}
	return exitFor(res.Err, res.Outcome)
}

// reportQueryFromFlags reads the shared report query flags.
func reportQueryFromFlags(c *cli.Context) (types.ReportQuery, error) {
	filters, err := parseFilters(c.StringSlice("filter"))
	if err != nil {
		return types.ReportQuery{}, err
	}
	return types.ReportQuery{
		Start:   c.String("start"),
		End:     c.String("end"),
		Columns: nonEmpty(c.StringSlice("columns")),
		Filters: filters,
	}, nil
}

// parseFilters turns key=value pairs into query filters. Values stay
// strings and are sent verbatim.
func parseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", pair)
		}
		filters[k] = v
	}
	return filters, nil
}
