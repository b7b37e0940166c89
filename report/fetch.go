package report

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/justapithecus/maxreport/retry"
	"github.com/justapithecus/maxreport/types"
)

// request is one logical request driven through the retry policy.
type request struct {
	endpoint string
	// params builds the query for a key. nil sends the endpoint as is
	// without consuming a key.
	params          func(key string) url.Values
	policy          retry.Policy
	notFoundIsEmpty bool
	fields          map[string]any
}

// fetchOnce runs req until it succeeds, fails terminally, or exhausts
// the policy. The initial try is attempt 0, so a persistently retryable
// request is sent MaxRetries+1 times.
func (c *Client) fetchOnce(ctx context.Context, req request) (Attempt, error) {
	var last Attempt
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Attempt{}, err
		}

		var params url.Values
		if req.params != nil {
			key, err := c.keys.Next()
			if err != nil {
				return Attempt{}, err
			}
			params = req.params(key)
		}

		last = c.exec.Execute(ctx, req.endpoint, params, req.policy, req.notFoundIsEmpty)
		c.collector.RecordAttempt(last.Status)

		fields := c.attemptFields(req, attempt, last)
		c.logger.Debug("attempt finished", fields)

		decision, delay := req.policy.Decide(attempt, last.Outcome)
		// A response that arrived is kept even if ctx ended meanwhile.
		if decision != retry.StopSuccess {
			if err := ctx.Err(); err != nil {
				return Attempt{}, err
			}
		}
		switch decision {
		case retry.StopSuccess:
			return last, nil

		case retry.Continue:
			c.collector.IncRetry()
			fields["delay_ms"] = delay.Milliseconds()
			c.logger.Warn("retrying request", fields)
			if err := c.sleep(ctx, delay); err != nil {
				return Attempt{}, fmt.Errorf("retry wait: %w", err)
			}

		default:
			if last.Outcome == retry.Terminal {
				c.collector.IncTerminalFailure()
				c.logger.Error("request failed", fields)
				if last.Status == 0 {
					return last, last.Err
				}
				return last, &StatusError{Code: last.Status, Body: bodyPrefix(last.Body)}
			}
			c.collector.IncExhausted()
			c.logger.Error("retries exhausted", fields)
			return last, &ExhaustedRetriesError{
				Attempts:   attempt + 1,
				LastStatus: last.Status,
				LastErr:    last.Err,
			}
		}
	}
}

func (c *Client) attemptFields(req request, attempt int, a Attempt) map[string]any {
	fields := make(map[string]any, len(req.fields)+5)
	for k, v := range req.fields {
		fields[k] = v
	}
	fields["attempt"] = attempt
	fields["max_retries"] = req.policy.MaxRetries
	fields["outcome"] = a.Outcome.String()
	if a.Status != 0 {
		fields["status"] = a.Status
	}
	if a.Err != nil {
		fields["error"] = a.Err.Error()
	}
	return fields
}

// Report fetches the inline report in one request capped at q.Limit rows.
// Missing dates default to two days ago through yesterday.
func (c *Client) Report(ctx context.Context, q types.ReportQuery) (*types.Table, error) {
	q = q.WithDefaults(c.now())
	if err := q.Validate(); err != nil {
		return nil, err
	}

	c.collector.IncFetchStarted()
	table, err := c.fetchReport(ctx, q, nil)
	if err != nil {
		c.collector.IncFetchFailed()
		return nil, err
	}
	c.collector.AddPage(table.Len())
	c.finish(table)
	return table, nil
}

// fetchReport performs one retried inline report request, paginated
// when page is non-nil.
func (c *Client) fetchReport(ctx context.Context, q types.ReportQuery, page *PageRequest) (*types.Table, error) {
	fields := map[string]any{"start": q.Start, "end": q.End}
	if page != nil {
		fields["offset"] = page.Offset
		fields["page_size"] = page.Size
	}

	a, err := c.fetchOnce(ctx, request{
		endpoint: c.cfg.ReportEndpoint,
		params: func(key string) url.Values {
			return BuildReportParams(q, key, page)
		},
		policy: c.reportPolicy,
		fields: fields,
	})
	if err != nil {
		return nil, err
	}
	return TableFromResults(a.Body)
}

// UserRevenue fetches the user-level ad revenue report for one date and
// application. The endpoint answers with a URL to a CSV file, which is
// downloaded under the same retry budget. A 404 from the endpoint means
// there is nothing to report: the result is an empty table, not an error.
func (c *Client) UserRevenue(ctx context.Context, q types.UserRevenueQuery) (*types.Table, error) {
	q = q.WithDefaults(c.now())
	if err := q.Validate(); err != nil {
		return nil, err
	}

	fields := map[string]any{
		"date":     q.Date,
		"platform": string(q.Platform),
		"app_id":   q.AppID(),
	}
	for _, w := range q.Warnings() {
		c.logger.Warn(w, fields)
	}

	c.collector.IncFetchStarted()
	a, err := c.fetchOnce(ctx, request{
		endpoint: c.cfg.UserRevenueEndpoint,
		params: func(key string) url.Values {
			return BuildUserRevenueParams(q, key)
		},
		policy:          c.userPolicy,
		notFoundIsEmpty: true,
		fields:          fields,
	})
	if err != nil {
		c.collector.IncFetchFailed()
		return nil, err
	}

	if a.NoData() {
		fields["response"] = bodyPrefix(a.Body)
		c.logger.Warn("no data for report, skipped", fields)
		c.collector.IncFetchEmpty()
		return types.NewTable(), nil
	}

	table, err := c.download(ctx, a.Body, fields)
	if err != nil {
		c.collector.IncFetchFailed()
		return nil, err
	}

	c.collector.AddPage(table.Len())
	fields["rows"] = table.Len()
	c.logger.Info("collected user ad revenue report", fields)
	c.finish(table)
	return table, nil
}

func (c *Client) download(ctx context.Context, body []byte, fields map[string]any) (*types.Table, error) {
	link, err := ReportURLFromBody(body)
	if err != nil {
		return nil, err
	}

	dl := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		dl[k] = v
	}
	dl["phase"] = "download"

	a, err := c.fetchOnce(ctx, request{
		endpoint: link,
		policy:   c.userPolicy,
		fields:   dl,
	})
	if err != nil {
		return nil, fmt.Errorf("download report: %w", err)
	}
	return TableFromCSV(bytes.NewReader(a.Body))
}

func (c *Client) finish(t *types.Table) {
	if t.Empty() {
		c.collector.IncFetchEmpty()
		return
	}
	c.collector.IncFetchSucceeded()
}

// NoData reports whether a successful fetch came back empty, which is
// how the "nothing to report" signal reaches callers.
func NoData(t *types.Table) bool {
	return t != nil && t.Empty()
}
