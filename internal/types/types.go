// Package types defines the core data model shared across the review pipeline.
package types

import (
	"fmt"
	"strings"
)

// IssueType classifies the kind of problem the oracle reported
type IssueType string

const (
	IssueAccuracy     IssueType = "accuracy"
	IssueClarity      IssueType = "clarity"
	IssueConsistency  IssueType = "consistency"
	IssueCompleteness IssueType = "completeness"
	IssueLogic        IssueType = "logic"
	IssueStyle        IssueType = "style"
)

// IsValid checks if the issue type is a known value
func (t IssueType) IsValid() bool {
	switch t {
	case IssueAccuracy, IssueClarity, IssueConsistency, IssueCompleteness, IssueLogic, IssueStyle:
		return true
	}
	return false
}

// Level is the user-facing severity bucket of a comment
type Level string

const (
	LevelCritical   Level = "critical"
	LevelWarning    Level = "warning"
	LevelSuggestion Level = "suggestion"
	LevelNote       Level = "note"
)

// LevelForSeverity maps a 0-100 severity score onto a display level
func LevelForSeverity(severity int) Level {
	switch {
	case severity >= 80:
		return LevelCritical
	case severity >= 55:
		return LevelWarning
	case severity >= 30:
		return LevelSuggestion
	default:
		return LevelNote
	}
}

// Document is the immutable text snapshot for one pipeline run.
// It is created once at run start and shared read-only across all
// concurrent tasks in the run.
type Document struct {
	Content string `json:"content"`
	Length  int    `json:"length"`
}

// NewDocument creates a document snapshot from raw text
func NewDocument(content string) *Document {
	return &Document{
		Content: content,
		Length:  len(content),
	}
}

// Lines splits the document into lines without dropping empty ones.
// Line indices used by line-based anchor hints are 0-based.
func (d *Document) Lines() []string {
	return strings.Split(d.Content, "\n")
}

// OffsetHint is an explicit character range claimed by the oracle
type OffsetHint struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// LineHint locates a quote by line index and boundary snippets.
// StartLine and EndLine are 0-based; EndLine may equal StartLine for
// single-line spans.
type LineHint struct {
	StartLine    int    `json:"start_line"`
	StartSnippet string `json:"start_snippet"`
	EndLine      int    `json:"end_line"`
	EndSnippet   string `json:"end_snippet"`
}

// RawIssue is one issue report as produced by the extraction oracle.
// It is immutable once created; anchoring never edits its content.
type RawIssue struct {
	QuotedText  string    `json:"quoted_text"`
	Reasoning   string    `json:"reasoning"`
	IssueType   IssueType `json:"issue_type"`
	Severity    int       `json:"severity"`   // 0-100
	Confidence  int       `json:"confidence"` // 0-100
	Importance  int       `json:"importance"` // 0-100
	StartMarker string    `json:"start_marker,omitempty"`

	// Optional location hints. When both are absent the quoted text
	// itself is the only search key.
	Offsets *OffsetHint `json:"offsets,omitempty"`
	Line    *LineHint   `json:"line,omitempty"`
}

// Validate checks that the raw issue is well-formed enough to enter the pipeline
func (r *RawIssue) Validate() error {
	if strings.TrimSpace(r.QuotedText) == "" {
		return fmt.Errorf("quoted_text is required")
	}
	if !r.IssueType.IsValid() {
		return fmt.Errorf("invalid issue type: %q", r.IssueType)
	}
	if r.Severity < 0 || r.Severity > 100 {
		return fmt.Errorf("severity must be 0-100 (got %d)", r.Severity)
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		return fmt.Errorf("confidence must be 0-100 (got %d)", r.Confidence)
	}
	if r.Importance < 0 || r.Importance > 100 {
		return fmt.Errorf("importance must be 0-100 (got %d)", r.Importance)
	}
	if r.Offsets != nil && (r.Offsets.Start < 0 || r.Offsets.End <= r.Offsets.Start) {
		return fmt.Errorf("offset hint must satisfy 0 <= start < end (got [%d,%d))", r.Offsets.Start, r.Offsets.End)
	}
	return nil
}

// AnchoredIssue is a raw issue pinned to a verified character range.
// Invariant: 0 <= StartOffset < EndOffset <= Document.Length and
// Document.Content[StartOffset:EndOffset] == ResolvedText.
// Anchored issues are never mutated after creation; later stages only
// remove them from the working set.
type AnchoredIssue struct {
	RawIssue
	StartOffset  int    `json:"start_offset"`
	EndOffset    int    `json:"end_offset"` // half-open
	ResolvedText string `json:"resolved_text"`
}

// Validate checks the anchoring invariant against the source document
func (a *AnchoredIssue) Validate(doc *Document) error {
	if a.StartOffset < 0 || a.StartOffset >= a.EndOffset || a.EndOffset > doc.Length {
		return fmt.Errorf("range [%d,%d) out of bounds for document of length %d",
			a.StartOffset, a.EndOffset, doc.Length)
	}
	if got := doc.Content[a.StartOffset:a.EndOffset]; got != a.ResolvedText {
		return fmt.Errorf("resolved text does not match document slice at [%d,%d)",
			a.StartOffset, a.EndOffset)
	}
	return nil
}

// Comment is the user-facing rendering of a surviving anchored issue
type Comment struct {
	Header      string    `json:"header"`
	Level       Level     `json:"level"`
	Description string    `json:"description"`
	IssueType   IssueType `json:"issue_type"`
	Importance  int       `json:"importance"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	QuotedText  string    `json:"quoted_text"`
}
