// Package storage persists completed review runs so that results and their
// telemetry can be inspected, exported, and compared after the fact.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redlinehq/redline/internal/telemetry"
	"github.com/redlinehq/redline/internal/types"
)

// ErrNotFound is returned when the requested run does not exist
var ErrNotFound = errors.New("run not found")

// SavedRun is one persisted review run: the user-facing result plus the
// sealed telemetry record it was produced under.
type SavedRun struct {
	RunID        string                     `json:"run_id"`
	DocumentName string                     `json:"document_name"`
	State        string                     `json:"state"`
	Summary      string                     `json:"summary"`
	Analysis     string                     `json:"analysis"`
	Comments     []types.Comment            `json:"comments"`
	Record       *telemetry.ExecutionRecord `json:"record"`
}

// RunSummary is the lightweight listing row for one saved run
type RunSummary struct {
	RunID        string    `json:"run_id"`
	DocumentName string    `json:"document_name"`
	State        string    `json:"state"`
	Summary      string    `json:"summary"`
	CommentCount int       `json:"comment_count"`
	StartedAt    time.Time `json:"started_at"`
}

// RunStore is the persistence contract for review runs
type RunStore interface {
	// SaveRun persists a completed run. Saving an existing run ID replaces
	// the stored run.
	SaveRun(ctx context.Context, run *SavedRun) error

	// GetRun loads one run by ID. Returns ErrNotFound if it does not exist.
	GetRun(ctx context.Context, runID string) (*SavedRun, error)

	// ListRuns returns the most recent runs, newest first. limit <= 0 means
	// no limit.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// DeleteRun removes one run by ID. Returns ErrNotFound if it does not
	// exist.
	DeleteRun(ctx context.Context, runID string) error

	// PruneRuns deletes runs that started before the cutoff and reports how
	// many were removed.
	PruneRuns(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases the underlying resources
	Close() error
}
