package report

import (
	"errors"
	"fmt"

	"github.com/justapithecus/maxreport/types"
)

// Sentinel errors for fetch failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrExhaustedRetries indicates every attempt was consumed without success.
	ErrExhaustedRetries = errors.New("retries exhausted")

	// ErrTerminalStatus indicates a non-retryable HTTP status.
	ErrTerminalStatus = errors.New("terminal status")

	// ErrMalformedResponse indicates a 200 response whose body could not be read as a report.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrInvalidQuery indicates the query failed validation before any request was sent.
	ErrInvalidQuery = types.ErrInvalidQuery
)

// StatusError is returned for a non-retryable, non-200 response.
// No further attempts are made after it.
type StatusError struct {
	Code int
	// Body is a prefix of the response body, for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Is reports whether target is ErrTerminalStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrTerminalStatus
}

// ExhaustedRetriesError is returned when all attempts failed with
// retryable outcomes. It carries the last observed status or error.
type ExhaustedRetriesError struct {
	Attempts int
	// LastStatus is 0 when the last attempt got no response.
	LastStatus int
	LastErr    error
}

func (e *ExhaustedRetriesError) Error() string {
	if e.LastStatus != 0 {
		return fmt.Sprintf("retries exhausted after %d attempts: last status %d", e.Attempts, e.LastStatus)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

// Unwrap returns the last transport error, if any.
func (e *ExhaustedRetriesError) Unwrap() error {
	return e.LastErr
}

// Is reports whether target is ErrExhaustedRetries.
func (e *ExhaustedRetriesError) Is(target error) bool {
	return target == ErrExhaustedRetries
}

// PageError wraps a failure of one page of a paginated fetch with the
// position it happened at. Pages yielded before it stay valid.
type PageError struct {
	Offset   int
	PageSize int
	Err      error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page at offset %d (page size %d): %v", e.Offset, e.PageSize, e.Err)
}

// Unwrap returns the underlying fetch error.
func (e *PageError) Unwrap() error {
	return e.Err
}

// LastStatus extracts the HTTP status carried by err, if any.
func LastStatus(err error) (int, bool) {
	var exhausted *ExhaustedRetriesError
	if errors.As(err, &exhausted) && exhausted.LastStatus != 0 {
		return exhausted.LastStatus, true
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code, true
	}
	return 0, false
}
