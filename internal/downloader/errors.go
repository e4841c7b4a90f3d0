package downloader

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by StartBatch when the owner already has a
// batch in flight.
var ErrAlreadyRunning = errors.New("a batch is already running for this user")

// BatchFatalError means the batch as a whole could not run.
type BatchFatalError struct {
	OwnerID string
	Err     error
}

func (e *BatchFatalError) Error() string {
	return fmt.Sprintf("batch for %s failed: %v", e.OwnerID, e.Err)
}

func (e *BatchFatalError) Unwrap() error { return e.Err }

// ItemFetchError is the failure of a single item. It is recorded on the
// item's progress record and never aborts the batch.
type ItemFetchError struct {
	URL string
	Err error
}

func (e *ItemFetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e *ItemFetchError) Unwrap() error { return e.Err }
