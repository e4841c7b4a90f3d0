// Package fetcher defines the collaborator that actually retrieves a queued
// URL. The batch processor only sees these interfaces.
package fetcher

import (
	"context"

	"github.com/vrsandeep/tunedl/internal/models"
)

// ProgressFunc receives byte counters while a fetch is running. total is 0
// when the size is unknown.
type ProgressFunc func(downloaded, total int64)

// Result is what a successful fetch yields.
type Result struct {
	Title      string
	Artist     string
	ExternalID string
	Path       string
	Bytes      int64
}

// Fetcher retrieves one item. Implementations own their timeouts; any error
// is treated as a failure of that item only.
type Fetcher interface {
	Fetch(ctx context.Context, item models.WorkItem, onProgress ProgressFunc) (*Result, error)
}

// Finalizer is implemented by fetchers that need a post-download step such
// as tagging. It runs while the item is in the processing state.
type Finalizer interface {
	Finalize(ctx context.Context, item models.WorkItem, res *Result) error
}

// Func adapts a plain function to Fetcher.
type Func func(ctx context.Context, item models.WorkItem, onProgress ProgressFunc) (*Result, error)

func (f Func) Fetch(ctx context.Context, item models.WorkItem, onProgress ProgressFunc) (*Result, error) {
	return f(ctx, item, onProgress)
}
