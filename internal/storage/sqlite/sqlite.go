// Package sqlite is the SQLite-backed run store. One database file holds the
// full history of review runs for a working directory.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/redlinehq/redline/internal/storage"
	"github.com/redlinehq/redline/internal/telemetry"
	"github.com/redlinehq/redline/internal/types"
)

// Store implements storage.RunStore on a local SQLite database
type Store struct {
	db *sql.DB
}

var _ storage.RunStore = (*Store)(nil)

// New opens (or creates) the run database at path and initializes the schema
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode for concurrent readers while a run is being saved.
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveRun persists a completed run, replacing any previous run with the same ID
func (s *Store) SaveRun(ctx context.Context, run *storage.SavedRun) error {
	if run == nil || run.Record == nil {
		return fmt.Errorf("run and its execution record are required")
	}
	if err := run.Record.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid execution record: %w", err)
	}

	recordJSON, err := json.Marshal(run.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution record: %w", err)
	}
	commentsJSON, err := json.Marshal(run.Comments)
	if err != nil {
		return fmt.Errorf("failed to marshal comments: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, document_name, state, summary, analysis,
			comment_count, started_at, completed_at, success, record_version,
			comments, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			document_name = excluded.document_name,
			state = excluded.state,
			summary = excluded.summary,
			analysis = excluded.analysis,
			comment_count = excluded.comment_count,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			success = excluded.success,
			record_version = excluded.record_version,
			comments = excluded.comments,
			record = excluded.record
	`, run.RunID, run.DocumentName, run.State, run.Summary, run.Analysis,
		len(run.Comments), run.Record.StartedAt.UTC(), run.Record.CompletedAt.UTC(),
		boolToInt(run.Record.Success), run.Record.Version,
		string(commentsJSON), string(recordJSON))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	return nil
}

// GetRun loads one run by ID
func (s *Store) GetRun(ctx context.Context, runID string) (*storage.SavedRun, error) {
	var (
		run          storage.SavedRun
		commentsJSON string
		recordJSON   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, document_name, state, summary, analysis, comments, record
		FROM runs WHERE run_id = ?
	`, runID).Scan(&run.RunID, &run.DocumentName, &run.State, &run.Summary,
		&run.Analysis, &commentsJSON, &recordJSON)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	if err := json.Unmarshal([]byte(commentsJSON), &run.Comments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal comments for run %s: %w", runID, err)
	}
	var record telemetry.ExecutionRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution record for run %s: %w", runID, err)
	}
	if !telemetry.CompatibleVersion(record.Version) {
		return nil, fmt.Errorf("run %s was recorded at incompatible version %s", runID, record.Version)
	}
	run.Record = &record
	if run.Comments == nil {
		run.Comments = []types.Comment{}
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]storage.RunSummary, error) {
	query := `
		SELECT run_id, document_name, state, summary, comment_count, started_at
		FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []storage.RunSummary
	for rows.Next() {
		var rs storage.RunSummary
		if err := rows.Scan(&rs.RunID, &rs.DocumentName, &rs.State, &rs.Summary,
			&rs.CommentCount, &rs.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		summaries = append(summaries, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return summaries, nil
}

// DeleteRun removes one run by ID
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PruneRuns deletes runs older than the cutoff and reports how many were removed
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	return int(n), nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
