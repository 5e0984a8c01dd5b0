package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch matches any *FetchError.
	ErrFetch = errors.New("feed fetch failed")

	// ErrStore matches any *StoreError.
	ErrStore = errors.New("destination store failed")

	// ErrNoFeedURL is returned when the settings carry no feed URL.
	ErrNoFeedURL = errors.New("no feed URL configured")

	// ErrInvalidBatch is returned for a non-positive batch size or negative offset.
	ErrInvalidBatch = errors.New("invalid batch parameters")
)

// FetchError reports that the feed could not be fetched or parsed.
// It aborts the whole run.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("error fetching feed %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// StoreError reports a failed destination call for a single record.
type StoreError struct {
	Op      string
	LocalID int64
	Err     error
}

func (e *StoreError) Error() string {
	if e.LocalID > 0 {
		return fmt.Sprintf("failed to %s record %d: %v", e.Op, e.LocalID, e.Err)
	}
	return fmt.Sprintf("failed to %s record: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }
