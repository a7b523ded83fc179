package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the acquisition and enrichment failure modes.
var (
	ErrFetchBlocked        = errors.New("bulk fetch blocked")
	ErrFetchMalformed      = errors.New("bulk response is not valid tabular data")
	ErrFallbackUnavailable = errors.New("download control not found")
	ErrFallbackTimeout     = errors.New("download did not complete")
	ErrFallbackDisabled    = errors.New("fallback fetcher disabled")
	ErrPageFetchFailed     = errors.New("listing page fetch failed")
	ErrParseSkipped        = errors.New("extraction strategy skipped")
	ErrNoData              = errors.New("no rows returned")
	ErrInvalidQuery        = errors.New("invalid query")
	ErrBodyTooLarge        = errors.New("response body exceeds size limit")
)

// FetchKind classifies a bulk fetch failure.
type FetchKind int

const (
	FetchBlocked FetchKind = iota
	FetchMalformed
)

func (k FetchKind) String() string {
	switch k {
	case FetchBlocked:
		return "blocked"
	case FetchMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// FetchError wraps failures of the bulk tabular fetch.
type FetchError struct {
	Kind       FetchKind
	URL        string
	StatusCode int
	Excerpt    string // leading slice of the response body, if any
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s for %s", e.Kind, e.URL)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Excerpt != "" {
		msg += fmt.Sprintf(" [body: %q]", e.Excerpt)
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	sentinel := ErrFetchBlocked
	if e.Kind == FetchMalformed {
		sentinel = ErrFetchMalformed
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// FallbackKind classifies a render-path failure.
type FallbackKind int

const (
	FallbackUnavailable FallbackKind = iota
	FallbackTimeout
)

func (k FallbackKind) String() string {
	if k == FallbackTimeout {
		return "timeout"
	}
	return "unavailable"
}

// FallbackError wraps failures of the browser download path.
type FallbackError struct {
	Kind     FallbackKind
	URL      string
	Selector string
	Err      error
}

func (e *FallbackError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("fallback %s for %s (selector=%q): %v", e.Kind, e.URL, e.Selector, e.Err)
	}
	return fmt.Sprintf("fallback %s for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FallbackError) Unwrap() []error {
	sentinel := ErrFallbackUnavailable
	if e.Kind == FallbackTimeout {
		sentinel = ErrFallbackTimeout
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// PageError is a per-listing fetch failure. It never aborts a run.
type PageError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *PageError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("page fetch failed for %s (status %d)", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("page fetch failed for %s: %v", e.URL, e.Err)
}

func (e *PageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPageFetchFailed}
	}
	return []error{ErrPageFetchFailed, e.Err}
}

// StorageError wraps errors that occur while persisting artifacts.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsFetchFailure reports whether err is one of the bulk fetch failures that
// should trigger the fallback path.
func IsFetchFailure(err error) bool {
	return errors.Is(err, ErrFetchBlocked) || errors.Is(err, ErrFetchMalformed)
}
