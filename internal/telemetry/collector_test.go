package telemetry

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorStageLifecycle(t *testing.T) {
	c := NewCollector()

	c.StartStage(StageExtraction, 0)
	c.EndStage(12)

	c.StartStage(StageDeduplication, 12)
	c.EndStage(9)

	rec := c.Finalize(true, nil)
	require.Len(t, rec.Stages, 2)

	assert.Equal(t, StageExtraction, rec.Stages[0].StageName)
	assert.Equal(t, 0, rec.Stages[0].InputCount)
	assert.Equal(t, 12, rec.Stages[0].OutputCount)
	assert.Equal(t, 0, rec.Stages[0].FilteredCount) // max(0, 0-12)

	assert.Equal(t, StageDeduplication, rec.Stages[1].StageName)
	assert.Equal(t, 3, rec.Stages[1].FilteredCount)

	assert.True(t, rec.Success)
	assert.NotEmpty(t, rec.RunID)
	assert.Equal(t, RecordVersion, rec.Version)
	assert.False(t, rec.CompletedAt.Before(rec.StartedAt))
}

func TestCollectorStageError(t *testing.T) {
	c := NewCollector()

	c.StartStage(StageSupportFilter, 10)
	c.EndStage(10, EndOptions{
		Error:    errors.New("oracle call failed"),
		Metadata: map[string]any{"fallback": true},
	})

	rec := c.Finalize(true, nil)
	require.Len(t, rec.Stages, 1)
	assert.Equal(t, "oracle call failed", rec.Stages[0].Error)
	assert.Equal(t, true, rec.Stages[0].Metadata["fallback"])
}

// TestCollectorAutoClose: starting a stage while another is open closes the
// open one with a synthetic error, so every opened stage is recorded.
func TestCollectorAutoClose(t *testing.T) {
	c := NewCollector()

	c.StartStage(StageExtraction, 5)
	c.StartStage(StageDeduplication, 5) // extraction never ended

	c.EndStage(4)
	rec := c.Finalize(true, nil)

	require.Len(t, rec.Stages, 2)
	assert.Equal(t, StageExtraction, rec.Stages[0].StageName)
	assert.Contains(t, rec.Stages[0].Error, "auto-closed")
	assert.Equal(t, StageDeduplication, rec.Stages[1].StageName)
	assert.Empty(t, rec.Stages[1].Error)
}

func TestCollectorFinalizeClosesOrphan(t *testing.T) {
	c := NewCollector()
	c.StartStage(StageReview, 3)

	rec := c.Finalize(false, errors.New("run aborted"))
	require.Len(t, rec.Stages, 1)
	assert.Contains(t, rec.Stages[0].Error, "auto-closed")
	assert.False(t, rec.Success)
	assert.Equal(t, "run aborted", rec.Error)
}

func TestCollectorEndWithoutStart(t *testing.T) {
	c := NewCollector()
	c.EndStage(7) // no-op, must not panic

	rec := c.Finalize(true, nil)
	assert.Empty(t, rec.Stages)
}

func TestCollectorItemRecords(t *testing.T) {
	c := NewCollector()

	c.RecordFilteredItems(ItemRecord{
		Stage:         StageExtraction,
		QuotedText:    "unanchorable quote",
		Reason:        "anchor not found",
		OriginalIndex: 2,
	})
	c.RecordPassedItems(ItemRecord{
		Stage:         StageSupportFilter,
		QuotedText:    "kept quote",
		Reason:        "not supported elsewhere",
		OriginalIndex: 0,
	})

	rec := c.Finalize(true, nil)
	require.Len(t, rec.FilteredItems, 1)
	require.Len(t, rec.PassedItems, 1)
	assert.Equal(t, "anchor not found", rec.FilteredItems[0].Reason)
	assert.Equal(t, "kept quote", rec.PassedItems[0].QuotedText)
}

// TestCollectorConcurrentItemAppends: fan-out tasks append decisions
// concurrently; every append must land.
func TestCollectorConcurrentItemAppends(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.RecordFilteredItems(ItemRecord{
				Stage:         StageCommentGeneration,
				QuotedText:    fmt.Sprintf("item %d", i),
				Reason:        "task failed",
				OriginalIndex: i,
			})
		}(i)
	}
	wg.Wait()

	rec := c.Finalize(true, nil)
	assert.Len(t, rec.FilteredItems, 50)
}

func TestCollectorFinalCountsMerge(t *testing.T) {
	c := NewCollector()

	c.SetFinalCounts(FinalCounts{Extracted: 10, AfterDedup: -1, AfterFiltering: -1, Generated: -1, Kept: -1})
	c.SetFinalCounts(FinalCounts{Extracted: -1, AfterDedup: 8, AfterFiltering: 8, Generated: -1, Kept: -1})
	c.SetFinalCounts(FinalCounts{Extracted: -1, AfterDedup: -1, AfterFiltering: -1, Generated: 6, Kept: 5})

	rec := c.Finalize(true, nil)
	assert.Equal(t, FinalCounts{Extracted: 10, AfterDedup: 8, AfterFiltering: 8, Generated: 6, Kept: 5}, rec.FinalCounts)

	// Monotonic shrinkage holds for well-formed runs.
	assert.LessOrEqual(t, rec.FinalCounts.AfterDedup, rec.FinalCounts.Extracted)
	assert.LessOrEqual(t, rec.FinalCounts.AfterFiltering, rec.FinalCounts.AfterDedup)
}

// TestRecordSealedSnapshot: mutating the collector after Finalize must not
// change an already-returned record.
func TestRecordSealedSnapshot(t *testing.T) {
	c := NewCollector()
	c.StartStage(StageExtraction, 1)
	c.EndStage(1)

	rec := c.Finalize(true, nil)
	require.Len(t, rec.Stages, 1)

	c.StartStage(StageReview, 9)
	c.EndStage(9)
	c.RecordFilteredItems(ItemRecord{Stage: StageReview, Reason: "late"})

	assert.Len(t, rec.Stages, 1)
	assert.Empty(t, rec.FilteredItems)
}

func TestExecutionRecordValidate(t *testing.T) {
	c := NewCollector()
	c.SetFinalCounts(FinalCounts{Extracted: 5, AfterDedup: 4, AfterFiltering: 3, Generated: 3, Kept: 2})
	rec := c.Finalize(true, nil)
	assert.NoError(t, rec.Validate())

	bad := *rec
	bad.FinalCounts.AfterDedup = 99
	assert.Error(t, bad.Validate())

	bad = *rec
	bad.RunID = ""
	assert.Error(t, bad.Validate())

	bad = *rec
	bad.Version = "not-a-version"
	assert.Error(t, bad.Validate())
}

func TestCompatibleVersion(t *testing.T) {
	assert.True(t, CompatibleVersion(RecordVersion))
	assert.True(t, CompatibleVersion("1.9.3"))
	assert.False(t, CompatibleVersion("2.0.0"))
	assert.False(t, CompatibleVersion("garbage"))
	assert.False(t, CompatibleVersion(""))
}

func TestExportImportRoundTrip(t *testing.T) {
	c := NewCollector()
	c.StartStage(StageExtraction, 0)
	c.EndStage(3)
	c.SetFinalCounts(FinalCounts{Extracted: 3, AfterDedup: 3, AfterFiltering: 2, Generated: 2, Kept: 2})
	rec := c.Finalize(true, nil)

	for _, format := range []ExportFormat{FormatJSON, FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Export(&buf, rec, format))

			got, err := Import(&buf, format)
			require.NoError(t, err)
			assert.Equal(t, rec.RunID, got.RunID)
			assert.Equal(t, rec.FinalCounts, got.FinalCounts)
			require.Len(t, got.Stages, 1)
			assert.Equal(t, StageExtraction, got.Stages[0].StageName)
		})
	}

	t.Run("unknown format", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Error(t, Export(&buf, rec, "xml"))
	})
}
