// Package oracle is the boundary to the external text-analysis engine. The
// engine is opaque and fallible: every method can return an error, and the
// pipeline treats those errors as ordinary per-stage or per-task failures.
// Responses are validated here, at the boundary, before they enter the typed
// data model.
package oracle

import (
	"context"
	"fmt"

	"github.com/redlinehq/redline/internal/types"
)

// Oracle is the contract the pipeline consumes. Implementations wrap a
// specific model provider; tests substitute fakes.
type Oracle interface {
	// Extract asks the oracle to report issues in the document text.
	Extract(ctx context.Context, documentText string) ([]types.RawIssue, error)

	// FilterSupported asks which issues are already supported elsewhere in
	// the document and should be dropped.
	FilterSupported(ctx context.Context, documentText string, issues []types.AnchoredIssue) (*SupportFilterResult, error)

	// Annotate synthesizes the user-facing description for one issue.
	Annotate(ctx context.Context, documentText string, issue *types.AnchoredIssue) (string, error)

	// Review performs the final pass over generated comments.
	Review(ctx context.Context, documentText string, comments []types.Comment) (*ReviewResult, error)
}

// SupportFilterResult reports which issues the support-filter call decided to
// drop. Indices refer to the issue slice passed to FilterSupported.
type SupportFilterResult struct {
	UnsupportedIndices    []int          `json:"unsupported_indices"`
	SupportedExplanations map[int]string `json:"supported_explanations,omitempty"`
}

// Validate rejects malformed filter results before they reach the pipeline
func (r *SupportFilterResult) Validate(issueCount int) error {
	seen := make(map[int]bool, len(r.UnsupportedIndices))
	for _, idx := range r.UnsupportedIndices {
		if idx < 0 || idx >= issueCount {
			return fmt.Errorf("unsupported index %d out of range [0,%d)", idx, issueCount)
		}
		if seen[idx] {
			return fmt.Errorf("duplicate unsupported index %d", idx)
		}
		seen[idx] = true
	}
	for idx := range r.SupportedExplanations {
		if idx < 0 || idx >= issueCount {
			return fmt.Errorf("explanation index %d out of range [0,%d)", idx, issueCount)
		}
	}
	return nil
}

// ReviewResult is the final-review decision: which comments to keep plus the
// run's summaries.
type ReviewResult struct {
	KeptIndices     []int  `json:"kept_indices"`
	OneLineSummary  string `json:"one_line_summary"`
	DocumentSummary string `json:"document_summary"`
}

// Validate rejects malformed review results before they reach the pipeline
func (r *ReviewResult) Validate(commentCount int) error {
	seen := make(map[int]bool, len(r.KeptIndices))
	for _, idx := range r.KeptIndices {
		if idx < 0 || idx >= commentCount {
			return fmt.Errorf("kept index %d out of range [0,%d)", idx, commentCount)
		}
		if seen[idx] {
			return fmt.Errorf("duplicate kept index %d", idx)
		}
		seen[idx] = true
	}
	return nil
}
