package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the calendar date format the reporting service accepts.
const DateLayout = "2006-01-02"

// Defaults applied by WithDefaults.
const (
	DefaultLimit    = 100000
	DefaultPageSize = 100000
)

// ErrInvalidQuery is returned for queries that fail validation.
var ErrInvalidQuery = errors.New("invalid query")

var validate = sync.OnceValue(func() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
})

// ReportQuery describes one inline revenue report request.
// Filters are passed through verbatim as extra query parameters.
type ReportQuery struct {
	Start    string         `json:"start" yaml:"start" validate:"required,datetime=2006-01-02"`
	End      string         `json:"end" yaml:"end" validate:"required,datetime=2006-01-02"`
	Columns  []string       `json:"columns" yaml:"columns" validate:"required,min=1,dive,required"`
	Filters  map[string]any `json:"filters,omitempty" yaml:"filters,omitempty"`
	Limit    int            `json:"limit" yaml:"limit" validate:"gte=0"`
	PageSize int            `json:"page_size" yaml:"page_size" validate:"gte=0"`
}

// DefaultRange returns the report window used when no dates are given:
// two days ago through yesterday.
func DefaultRange(now time.Time) (start, end string) {
	return now.AddDate(0, 0, -2).Format(DateLayout), now.AddDate(0, 0, -1).Format(DateLayout)
}

// WithDefaults returns a copy with the date window, limit and page size
// filled in. The window is replaced as a whole when either bound is missing.
func (q ReportQuery) WithDefaults(now time.Time) ReportQuery {
	if q.Start == "" || q.End == "" {
		q.Start, q.End = DefaultRange(now)
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	return q
}

// Validate checks dates, columns and filter value types.
func (q ReportQuery) Validate() error {
	if err := validate().Struct(q); err != nil {
		return invalid(err)
	}
	start, _ := time.Parse(DateLayout, q.Start)
	end, _ := time.Parse(DateLayout, q.End)
	if end.Before(start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidQuery, q.End, q.Start)
	}
	return validateFilters(q.Filters)
}

// Platform identifies the store an application is published on.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// UserRevenueQuery describes one user-level ad revenue report request.
// Android applications are identified by package name, iOS ones by store id.
type UserRevenueQuery struct {
	Date          string         `json:"date" yaml:"date" validate:"required,datetime=2006-01-02"`
	PerImpression bool           `json:"per_impression" yaml:"per_impression"`
	Application   string         `json:"application,omitempty" yaml:"application,omitempty"`
	StoreID       string         `json:"store_id,omitempty" yaml:"store_id,omitempty"`
	Platform      Platform       `json:"platform" yaml:"platform" validate:"omitempty,oneof=android ios"`
	Filters       map[string]any `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// WithDefaults fills Date with yesterday when empty.
func (q UserRevenueQuery) WithDefaults(now time.Time) UserRevenueQuery {
	if q.Date == "" {
		q.Date = now.AddDate(0, 0, -1).Format(DateLayout)
	}
	return q
}

// AppID returns the identifier sent for the query's platform, or "" when
// the platform is unknown.
func (q UserRevenueQuery) AppID() string {
	switch q.Platform {
	case PlatformAndroid:
		return q.Application
	case PlatformIOS:
		return q.StoreID
	default:
		return ""
	}
}

// Validate checks the date, platform and filter value types.
func (q UserRevenueQuery) Validate() error {
	if err := validate().Struct(q); err != nil {
		return invalid(err)
	}
	return validateFilters(q.Filters)
}

// Warnings returns non-fatal issues worth surfacing to the operator.
func (q UserRevenueQuery) Warnings() []string {
	var warnings []string
	if q.Platform == "" {
		warnings = append(warnings, "no platform given; request carries no application identifier")
	} else if q.AppID() == "" {
		warnings = append(warnings, fmt.Sprintf("platform %s given without an application identifier", q.Platform))
	}
	return warnings
}

func validateFilters(filters map[string]any) error {
	for k, v := range filters {
		if k == "" {
			return fmt.Errorf("%w: empty filter name", ErrInvalidQuery)
		}
		switch v.(type) {
		case string, bool, json.Number,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		default:
			return fmt.Errorf("%w: filter %q has unsupported type %T", ErrInvalidQuery, k, v)
		}
	}
	return nil
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidQuery, strings.Join(msgs, "; "))
}
