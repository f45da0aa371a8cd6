package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/histcache/internal/ir"
)

var (
	// ErrFetchFailed matches every error returned because the source failed.
	ErrFetchFailed = errors.New("history fetch failed")

	// ErrMalformedEntry matches every error caused by an entry the cache
	// cannot order, whether pushed through Set or returned by the source.
	ErrMalformedEntry = errors.New("malformed history entry")
)

// FetchError describes a failed source round trip.
//
// errors.Is(err, ErrFetchFailed) matches any FetchError; the source's own
// error stays reachable through errors.Is and errors.As as well.
type FetchError struct {
	// ReportID identifies the report being fetched.
	ReportID ir.ReportID

	// Offset is the request offset; 0 for a full fetch.
	Offset int64

	// RequestID correlates the failure with source-side logs.
	RequestID string

	// Err is the error the source returned.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	kind := "full"
	if e.Offset > 0 {
		kind = "incremental"
	}
	return fmt.Sprintf("%s: %s fetch of report %d (offset=%d, request=%s): %v",
		ErrFetchFailed, kind, e.ReportID, e.Offset, e.RequestID, e.Err)
}

// Unwrap exposes both ErrFetchFailed and the source error.
func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}

// IsFetchError returns true if err was caused by a failed fetch.
// Uses errors.As to handle wrapped errors.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsMalformedError returns true if err was caused by a malformed entry.
func IsMalformedError(err error) bool {
	return errors.Is(err, ErrMalformedEntry)
}

func malformed(where string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformedEntry, where, err)
}
