package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redlinehq/redline/internal/storage"
	"github.com/redlinehq/redline/internal/telemetry"
	"github.com/redlinehq/redline/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(startedAt time.Time) *telemetry.ExecutionRecord {
	return &telemetry.ExecutionRecord{
		RunID:       uuid.NewString(),
		Version:     telemetry.RecordVersion,
		StartedAt:   startedAt,
		CompletedAt: startedAt.Add(2 * time.Second),
		Stages: []telemetry.StageRecord{
			{StageName: telemetry.StageExtraction, InputCount: 1, OutputCount: 3},
			{StageName: telemetry.StageDeduplication, InputCount: 3, OutputCount: 2},
		},
		FinalCounts: telemetry.FinalCounts{
			Extracted: 3, AfterDedup: 2, AfterFiltering: 2, Generated: 2, Kept: 2,
		},
		Success: true,
	}
}

func testRun(startedAt time.Time) *storage.SavedRun {
	rec := testRecord(startedAt)
	return &storage.SavedRun{
		RunID:        rec.RunID,
		DocumentName: "draft.md",
		State:        "succeeded",
		Summary:      "Found 2 issues (1 critical, 1 warning).",
		Analysis:     "Two factual problems in the opening section.",
		Comments: []types.Comment{
			{
				Header:      "Accuracy (critical)",
				Level:       types.LevelCritical,
				Description: "This claim contradicts the cited source.",
				IssueType:   types.IssueAccuracy,
				Importance:  90,
				StartOffset: 4,
				EndOffset:   15,
				QuotedText:  "sky is blue",
			},
			{
				Header:      "Clarity (warning)",
				Level:       types.LevelWarning,
				Description: "Ambiguous referent.",
				IssueType:   types.IssueClarity,
				Importance:  60,
				StartOffset: 17,
				EndOffset:   31,
				QuotedText:  "Grass is green",
			},
		},
		Record: rec,
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := testRun(time.Now().UTC().Truncate(time.Second))
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, "draft.md", got.DocumentName)
	assert.Equal(t, "succeeded", got.State)
	assert.Equal(t, run.Summary, got.Summary)
	assert.Equal(t, run.Comments, got.Comments)
	require.NotNil(t, got.Record)
	assert.Equal(t, run.Record.FinalCounts, got.Record.FinalCounts)
	assert.Len(t, got.Record.Stages, 2)
	assert.NoError(t, got.Record.Validate())
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetRun(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSaveRunReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := testRun(time.Now().UTC().Truncate(time.Second))
	require.NoError(t, store.SaveRun(ctx, run))

	run.Summary = "Revised summary."
	run.Comments = run.Comments[:1]
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "Revised summary.", got.Summary)
	assert.Len(t, got.Comments, 1)

	summaries, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestSaveRunRejectsInvalidRecord(t *testing.T) {
	store := newTestStore(t)

	run := testRun(time.Now().UTC())
	run.Record.FinalCounts.AfterDedup = run.Record.FinalCounts.Extracted + 5
	err := store.SaveRun(context.Background(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid execution record")

	assert.Error(t, store.SaveRun(context.Background(), nil))
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		run := testRun(base.Add(time.Duration(i) * time.Minute))
		run.DocumentName = fmt.Sprintf("doc-%d.md", i)
		require.NoError(t, store.SaveRun(ctx, run))
		ids = append(ids, run.RunID)
	}

	summaries, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 5)
	for i, s := range summaries {
		assert.Equal(t, ids[4-i], s.RunID)
		assert.Equal(t, 2, s.CommentCount)
	}

	limited, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, ids[4], limited[0].RunID)
	assert.Equal(t, ids[3], limited[1].RunID)
}

func TestDeleteRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := testRun(time.Now().UTC())
	require.NoError(t, store.SaveRun(ctx, run))
	require.NoError(t, store.DeleteRun(ctx, run.RunID))

	_, err := store.GetRun(ctx, run.RunID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteRun(ctx, run.RunID), storage.ErrNotFound)
}

func TestPruneRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	old := testRun(base.Add(-48 * time.Hour))
	recent := testRun(base.Add(-time.Hour))
	require.NoError(t, store.SaveRun(ctx, old))
	require.NoError(t, store.SaveRun(ctx, recent))

	pruned, err := store.PruneRuns(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = store.GetRun(ctx, old.RunID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetRun(ctx, recent.RunID)
	assert.NoError(t, err)
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")
	ctx := context.Background()

	store, err := New(path)
	require.NoError(t, err)
	run := testRun(time.Now().UTC().Truncate(time.Second))
	require.NoError(t, store.SaveRun(ctx, run))
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.Summary, got.Summary)
}
