package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when the marketplace keeps answering 429/503
	ErrRateLimited = errors.New("marketplace rate limit exceeded")

	// ErrBlocked is returned when the marketplace serves an anti-automation wall
	ErrBlocked = errors.New("marketplace blocked the request")

	// ErrNetwork is returned when the transport fails before a response is received
	ErrNetwork = errors.New("network error")

	// ErrBadStatus is returned for non-retryable HTTP status codes
	ErrBadStatus = errors.New("unexpected marketplace status")

	// ErrParseMiss marks a search record that lacked a title or price. Never surfaced.
	ErrParseMiss = errors.New("record could not be parsed")

	// ErrConfiguration is returned when an operation lacks required configuration
	ErrConfiguration = errors.New("missing configuration")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrNotFound is returned when a stored entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnknownRegion is returned for region codes outside the fixed set
	ErrUnknownRegion = errors.New("unknown marketplace region")
)

// SearchErrorKind classifies the terminal state of a failed search
type SearchErrorKind string

const (
	KindRateLimited SearchErrorKind = "RateLimited"
	KindBlocked     SearchErrorKind = "Blocked"
	KindNetwork     SearchErrorKind = "NetworkError"
	KindBadStatus   SearchErrorKind = "BadStatus"
)

// SearchError is the Failed state of the query client
type SearchError struct {
	Kind       SearchErrorKind
	StatusCode int
	Attempts   int
	Err        error
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search failed (%s) after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("search failed (%s) after %d attempt(s)", e.Kind, e.Attempts)
}

// Unwrap maps the failure kind onto its sentinel so errors.Is works
func (e *SearchError) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case KindRateLimited:
		sentinel = ErrRateLimited
	case KindBlocked:
		sentinel = ErrBlocked
	case KindNetwork:
		sentinel = ErrNetwork
	default:
		sentinel = ErrBadStatus
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// Reason is the human-readable failure shown by the shell
func (e *SearchError) Reason() string {
	switch e.Kind {
	case KindRateLimited:
		return "The marketplace is rate limiting requests. Please try again in a few minutes."
	case KindBlocked:
		return "The marketplace asked for a CAPTCHA. Open the marketplace in a tab, solve it, then retry."
	case KindNetwork:
		return "Could not reach the marketplace. Check your connection and retry."
	default:
		return fmt.Sprintf("The marketplace returned status %d.", e.StatusCode)
	}
}
