// Package store provides persistence for solve runs and cached line counts.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/springtally/internal/model"
)

// ErrNotFound is returned when a run does not exist or was deleted.
var ErrNotFound = errors.New("not found")

// ErrCountMismatch is returned when an imported line count disagrees with
// the engine.
var ErrCountMismatch = errors.New("line count mismatch")

// PutRunParams holds parameters for recording a solve run.
type PutRunParams struct {
	Source        string
	Lines         int
	Factor        int
	DirectTotal   uint64
	UnfoldedTotal uint64
	Workers       int
	DurationMS    int64
}

// ListRunsParams holds parameters for listing runs.
type ListRunsParams struct {
	Source string
	Limit  int
}

// RmRunParams holds parameters for deleting a run.
type RmRunParams struct {
	ID   string
	Hard bool
}

// Store defines the run and line count storage interface.
type Store interface {
	// PutRun records a finished solve. Returns the created run.
	PutRun(ctx context.Context, p PutRunParams) (*model.Run, error)

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*model.Run, error)

	// ListRuns lists runs, newest first.
	ListRuns(ctx context.Context, p ListRunsParams) ([]model.Run, error)

	// RmRun soft-deletes (or hard-deletes) a run.
	RmRun(ctx context.Context, p RmRunParams) error

	// LookupCount returns the cached count of a canonical line, if any.
	LookupCount(ctx context.Context, line string, factor int) (uint64, bool, error)

	// SaveCount caches the count of a canonical line. Existing entries are kept.
	SaveCount(ctx context.Context, line string, factor int, count uint64) error

	// Close closes the store.
	Close() error
}
