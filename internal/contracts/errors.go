package contracts

import (
	"errors"
	"fmt"
)

// ⭐ SSOT: error taxonomy shared by every task

var (
	// ErrInvalidRange is a start/end date that violates ordering or bounds. Never retried.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrRemoteFetch is a non-200 status or malformed payload from a remote source
	ErrRemoteFetch = errors.New("remote fetch failed")

	// ErrRateLimited is an explicit "query too frequent" marker in a response body
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrRemoteFetch)

	// ErrMissingDimension is an absent lookup row that an invariant requires. Fatal to the task.
	ErrMissingDimension = errors.New("missing dimension row")

	// ErrNotFound is an absent row requested by a caller that cannot proceed without it
	ErrNotFound = errors.New("not found")
)

// RangeError wraps ErrInvalidRange with the offending bounds
func RangeError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRange, fmt.Sprintf(format, args...))
}

// FetchError wraps ErrRemoteFetch with the source and cause
func FetchError(source string, err error) error {
	if errors.Is(err, ErrRemoteFetch) {
		return fmt.Errorf("%s: %w", source, err)
	}
	return fmt.Errorf("%s: %w: %v", source, ErrRemoteFetch, err)
}
