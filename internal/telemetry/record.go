// Package telemetry records what happened during one pipeline run: per-stage
// metrics, per-item filter and pass decisions, and the final counts. The
// collector is an explicit value threaded through a run, never a process-wide
// singleton, so concurrent runs cannot cross-contaminate each other's records.
package telemetry

import (
	"fmt"
	"time"

	"golang.org/x/mod/semver"
)

// RecordVersion is the wire-contract version of the exported execution
// record. Bump the minor version when adding fields; downstream regression
// tooling compares records across versions.
const RecordVersion = "1.0.0"

// StageName identifies one of the fixed pipeline stages
type StageName string

const (
	StageExtraction        StageName = "extraction"
	StageDeduplication     StageName = "deduplication"
	StageSupportFilter     StageName = "support_filter"
	StageCommentGeneration StageName = "comment_generation"
	StageReview            StageName = "review"
)

// StageRecord captures the outcome of one executed stage. Records are
// appended in execution order and never mutated after append.
type StageRecord struct {
	StageName     StageName      `json:"stage_name" msgpack:"stage_name"`
	DurationMs    int64          `json:"duration_ms" msgpack:"duration_ms"`
	InputCount    int            `json:"input_count" msgpack:"input_count"`
	OutputCount   int            `json:"output_count" msgpack:"output_count"`
	FilteredCount int            `json:"filtered_count" msgpack:"filtered_count"`
	Error         string         `json:"error,omitempty" msgpack:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// ItemRecord annotates why a single item left or survived a stage. These may
// be appended independent of stage boundaries.
type ItemRecord struct {
	Stage         StageName `json:"stage" msgpack:"stage"`
	QuotedText    string    `json:"quoted_text" msgpack:"quoted_text"`
	Reason        string    `json:"reason" msgpack:"reason"`
	OriginalIndex int       `json:"original_index" msgpack:"original_index"`
}

// FinalCounts tracks the working-set size after each stage. The working set
// shrinks monotonically: each count is bounded by the one before it.
type FinalCounts struct {
	Extracted      int `json:"extracted" msgpack:"extracted"`
	AfterDedup     int `json:"after_dedup" msgpack:"after_dedup"`
	AfterFiltering int `json:"after_filtering" msgpack:"after_filtering"`
	Generated      int `json:"generated" msgpack:"generated"`
	Kept           int `json:"kept" msgpack:"kept"`
}

// ExecutionRecord is the sealed, immutable snapshot of one pipeline run.
// It is the durable observability artifact: its field set is the wire
// contract for downstream regression tooling.
type ExecutionRecord struct {
	RunID         string        `json:"run_id" msgpack:"run_id"`
	Version       string        `json:"version" msgpack:"version"`
	StartedAt     time.Time     `json:"started_at" msgpack:"started_at"`
	CompletedAt   time.Time     `json:"completed_at" msgpack:"completed_at"`
	Stages        []StageRecord `json:"stages" msgpack:"stages"`
	FilteredItems []ItemRecord  `json:"filtered_items,omitempty" msgpack:"filtered_items,omitempty"`
	PassedItems   []ItemRecord  `json:"passed_items,omitempty" msgpack:"passed_items,omitempty"`
	FinalCounts   FinalCounts   `json:"final_counts" msgpack:"final_counts"`
	Success       bool          `json:"success" msgpack:"success"`
	Error         string        `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Validate checks the structural invariants of a sealed record. Used when
// records are read back from storage or an export.
func (r *ExecutionRecord) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if !semver.IsValid("v" + r.Version) {
		return fmt.Errorf("invalid record version: %q", r.Version)
	}
	if r.CompletedAt.Before(r.StartedAt) {
		return fmt.Errorf("completed_at precedes started_at")
	}
	for i, s := range r.Stages {
		if s.StageName == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if s.FilteredCount < 0 {
			return fmt.Errorf("stage %s has negative filtered count", s.StageName)
		}
	}
	fc := r.FinalCounts
	if fc.AfterDedup > fc.Extracted || fc.AfterFiltering > fc.AfterDedup {
		return fmt.Errorf("final counts are not monotonically non-increasing: %+v", fc)
	}
	return nil
}

// CompatibleVersion reports whether a record written at version v can be
// consumed by this build. Records are compatible within the same major
// version.
func CompatibleVersion(v string) bool {
	if !semver.IsValid("v" + v) {
		return false
	}
	return semver.Major("v"+v) == semver.Major("v"+RecordVersion)
}
