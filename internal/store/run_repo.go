package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the translation_runs status column.
type RunStatus string

// Run statuses persisted in translation_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunSuccess, RunError:
		return true
	default:
		return false
	}
}

// Run models one row of translation_runs.
type Run struct {
	ID         uuid.UUID
	Input      string
	SourceLang string
	TargetLang string
	Status     RunStatus
	StartedAt  time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// StartLines is the cursor the run resumed from.
	StartLines    int64
	HistoryLines  int64
	ChunksWritten int64
	ChunksSkipped int64
	BytesWritten  int64
	ErrorMessage  *string
}

// ProgressDelta is a batch of counter increments for one run.
type ProgressDelta struct {
	ChunksWritten int64
	ChunksSkipped int64
	BytesWritten  int64
	// HistoryLines is absolute; zero leaves the stored value untouched.
	HistoryLines int64
	At           time.Time
}

// Empty reports whether applying d would change nothing.
func (d ProgressDelta) Empty() bool {
	return d.ChunksWritten == 0 && d.ChunksSkipped == 0 && d.BytesWritten == 0 && d.HistoryLines == 0
}

// RunRepository persists run bookkeeping.
type RunRepository interface {
	// StartRun inserts the run row in the running state. Repeated calls are idempotent.
	StartRun(ctx context.Context, run Run) error
	// RecordProgress applies counter deltas to a run.
	RecordProgress(ctx context.Context, runID uuid.UUID, delta ProgressDelta) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset, newest first.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
