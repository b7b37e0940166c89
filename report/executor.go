package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/justapithecus/maxreport/iox"
	"github.com/justapithecus/maxreport/retry"
	"github.com/justapithecus/maxreport/types"
)

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxErrorBody bounds how much of an error body is kept for diagnostics.
const maxErrorBody = 512

// Attempt is the classified result of one round trip.
type Attempt struct {
	Outcome retry.Outcome
	// Status is 0 when no response arrived.
	Status int
	Body   []byte
	Err    error
}

// NoData reports whether the attempt is the "nothing to report" signal.
func (a Attempt) NoData() bool {
	return a.Outcome == retry.Success && a.Status == http.StatusNotFound
}

// Executor performs one GET and classifies the outcome. It never sleeps
// or loops; retry decisions belong to the caller.
type Executor struct {
	doer    Doer
	limiter *rate.Limiter
}

// NewExecutor creates an executor. A nil limiter disables pacing.
func NewExecutor(doer Doer, limiter *rate.Limiter) *Executor {
	return &Executor{doer: doer, limiter: limiter}
}

// Execute issues GET endpoint?params and classifies the response:
// 200 is Success; 404 is Success when notFoundIsEmpty is set; statuses in
// the policy's retry set and transport errors are Retryable; everything
// else is Terminal. A nil params leaves the endpoint's query untouched.
func (e *Executor) Execute(ctx context.Context, endpoint string, params url.Values, policy retry.Policy, notFoundIsEmpty bool) Attempt {
	target, err := buildURL(endpoint, params)
	if err != nil {
		return Attempt{Outcome: retry.Terminal, Err: err}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return Attempt{Outcome: retry.Terminal, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Attempt{Outcome: retry.Terminal, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := e.doer.Do(req)
	if err != nil {
		return Attempt{Outcome: retry.Retryable, Err: redact(err)}
	}
	defer iox.DrainClose(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// Truncated bodies are transport failures.
		return Attempt{Outcome: retry.Retryable, Status: 0, Err: fmt.Errorf("read body: %w", redact(err))}
	}

	a := Attempt{Status: resp.StatusCode, Body: body}
	switch {
	case resp.StatusCode == http.StatusOK:
		a.Outcome = retry.Success
	case resp.StatusCode == http.StatusNotFound && notFoundIsEmpty:
		a.Outcome = retry.Success
	case policy.Retryable(resp.StatusCode):
		a.Outcome = retry.Retryable
	default:
		a.Outcome = retry.Terminal
	}
	return a
}

func buildURL(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid endpoint %q: scheme must be http or https", u.Redacted())
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	return u.String(), nil
}

// redact strips the query string from URLs embedded in transport errors
// so API keys never reach logs or callers.
func redact(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	cp := *ue
	if i := strings.IndexByte(cp.URL, '?'); i >= 0 {
		cp.URL = cp.URL[:i]
	}
	return &cp
}

// Protected parameters are always computed, never taken from filters.
var (
	reportIdentity      = []string{"api_key", "start", "end"}
	pageIdentity        = []string{"api_key", "start", "end", "offset", "limit"}
	userRevenueIdentity = []string{"api_key", "date"}
)

// PageRequest selects one page of a paginated report.
type PageRequest struct {
	Offset int
	Size   int
}

// BuildReportParams builds the query for the inline report. A nil page
// requests a single-shot report capped at q.Limit.
func BuildReportParams(q types.ReportQuery, key string, page *PageRequest) url.Values {
	v := url.Values{}
	v.Set("columns", strings.Join(q.Columns, ","))
	v.Set("format", "json")

	protected := reportIdentity
	if page != nil {
		protected = pageIdentity
	} else {
		v.Set("limit", strconv.Itoa(q.Limit))
	}

	mergeFilters(v, q.Filters, protected)

	v.Set("api_key", key)
	v.Set("start", q.Start)
	v.Set("end", q.End)
	if page != nil {
		v.Set("offset", strconv.Itoa(page.Offset))
		v.Set("limit", strconv.Itoa(page.Size))
	}
	return v
}

// BuildUserRevenueParams builds the query for the user revenue report.
// The application identifier is sent as application on android and
// store_id on ios.
func BuildUserRevenueParams(q types.UserRevenueQuery, key string) url.Values {
	v := url.Values{}
	v.Set("aggregated", strconv.FormatBool(!q.PerImpression))
	v.Set("platform", string(q.Platform))
	switch q.Platform {
	case types.PlatformAndroid:
		v.Set("application", q.Application)
	case types.PlatformIOS:
		v.Set("store_id", q.StoreID)
	}

	mergeFilters(v, q.Filters, userRevenueIdentity)

	v.Set("api_key", key)
	v.Set("date", q.Date)
	return v
}

func mergeFilters(v url.Values, filters map[string]any, protected []string) {
	for k, val := range filters {
		if slices.Contains(protected, k) {
			continue
		}
		v.Set(k, formatValue(val))
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}

func bodyPrefix(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return strings.TrimSpace(string(b))
}
