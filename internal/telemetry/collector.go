package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Collector accumulates the telemetry for one pipeline run. One collector per
// run; pass it explicitly into every stage call.
//
// Invariants:
//   - every StartStage is matched by exactly one EndStage; starting a new
//     stage while one is open closes the open one with a synthetic error
//   - stage records append in strict execution order and are immutable after
//     append
//   - Finalize is the only way to obtain a sealed snapshot
//
// Item appends are mutex-protected so concurrent tasks within a stage can
// record decisions without coordination.
type Collector struct {
	mu sync.Mutex

	runID     string
	startedAt time.Time

	stages        []StageRecord
	filteredItems []ItemRecord
	passedItems   []ItemRecord
	finalCounts   FinalCounts

	open      *StageRecord
	openStart time.Time

	finalized bool
}

// EndOptions carries the optional outcome details of a stage
type EndOptions struct {
	Error    error
	Metadata map[string]any
}

// NewCollector creates a collector for a new run
func NewCollector() *Collector {
	return &Collector{
		runID:     uuid.New().String(),
		startedAt: time.Now(),
	}
}

// RunID returns the run's unique identifier
func (c *Collector) RunID() string {
	return c.runID
}

// StartStage opens a stage record. If a prior stage is still open it is
// auto-closed with a synthetic error; that guards against caller bugs and
// guarantees every opened stage is eventually recorded.
func (c *Collector) StartStage(name StageName, inputCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open != nil {
		slog.Warn("stage auto-closed by next StartStage",
			"stage", c.open.StageName,
			"next", name)
		c.closeOpenLocked(0, "stage auto-closed: next stage started before EndStage", nil)
	}

	c.open = &StageRecord{
		StageName:  name,
		InputCount: inputCount,
	}
	c.openStart = time.Now()
}

// EndStage closes the currently open stage with its output count. Calling
// EndStage with no open stage is a no-op.
func (c *Collector) EndStage(outputCount int, opts ...EndOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open == nil {
		slog.Warn("EndStage called with no open stage")
		return
	}

	errMsg := ""
	var meta map[string]any
	if len(opts) > 0 {
		if opts[0].Error != nil {
			errMsg = opts[0].Error.Error()
		}
		meta = opts[0].Metadata
	}
	c.closeOpenLocked(outputCount, errMsg, meta)
}

// closeOpenLocked seals the open stage record. Caller must hold c.mu.
func (c *Collector) closeOpenLocked(outputCount int, errMsg string, meta map[string]any) {
	rec := c.open
	rec.DurationMs = time.Since(c.openStart).Milliseconds()
	rec.OutputCount = outputCount
	rec.FilteredCount = rec.InputCount - outputCount
	if rec.FilteredCount < 0 {
		rec.FilteredCount = 0
	}
	rec.Error = errMsg
	rec.Metadata = meta

	c.stages = append(c.stages, *rec)
	c.open = nil
}

// RecordFilteredItems appends explanations for items that left a stage.
// Safe for concurrent use by fan-out tasks.
func (c *Collector) RecordFilteredItems(items ...ItemRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filteredItems = append(c.filteredItems, items...)
}

// RecordPassedItems appends explanations for items that survived a stage.
// Safe for concurrent use by fan-out tasks.
func (c *Collector) RecordPassedItems(items ...ItemRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passedItems = append(c.passedItems, items...)
}

// SetFinalCounts merges non-negative fields into the run's final counts.
// Negative fields mean "leave unchanged" so stages can report incrementally.
func (c *Collector) SetFinalCounts(counts FinalCounts) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counts.Extracted >= 0 {
		c.finalCounts.Extracted = counts.Extracted
	}
	if counts.AfterDedup >= 0 {
		c.finalCounts.AfterDedup = counts.AfterDedup
	}
	if counts.AfterFiltering >= 0 {
		c.finalCounts.AfterFiltering = counts.AfterFiltering
	}
	if counts.Generated >= 0 {
		c.finalCounts.Generated = counts.Generated
	}
	if counts.Kept >= 0 {
		c.finalCounts.Kept = counts.Kept
	}
}

// Finalize seals the run and returns the immutable execution record. An
// orphaned open stage is auto-closed first. Calling Finalize twice returns a
// fresh snapshot of the same sealed state.
func (c *Collector) Finalize(success bool, runErr error) *ExecutionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open != nil {
		c.closeOpenLocked(0, "stage auto-closed: run finalized before EndStage", nil)
	}
	c.finalized = true

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}

	rec := &ExecutionRecord{
		RunID:       c.runID,
		Version:     RecordVersion,
		StartedAt:   c.startedAt,
		CompletedAt: time.Now(),
		Stages:      make([]StageRecord, len(c.stages)),
		FinalCounts: c.finalCounts,
		Success:     success,
		Error:       errMsg,
	}
	copy(rec.Stages, c.stages)

	if len(c.filteredItems) > 0 {
		rec.FilteredItems = make([]ItemRecord, len(c.filteredItems))
		copy(rec.FilteredItems, c.filteredItems)
	}
	if len(c.passedItems) > 0 {
		rec.PassedItems = make([]ItemRecord, len(c.passedItems))
		copy(rec.PassedItems, c.passedItems)
	}
	return rec
}
