package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/redlinehq/redline/internal/anchor"
	"github.com/redlinehq/redline/internal/dedup"
	"github.com/redlinehq/redline/internal/oracle"
	"github.com/redlinehq/redline/internal/telemetry"
	"github.com/redlinehq/redline/internal/types"
)

// State is the run-level state machine
type State string

const (
	StateNotStarted        State = "not_started"
	StateRunning           State = "running"
	StateSucceeded         State = "succeeded"
	StatePartiallyDegraded State = "partially_degraded"
	StateFailed            State = "failed"
)

// StageStatus is the per-stage state machine
type StageStatus string

const (
	StagePending               StageStatus = "pending"
	StageRunning               StageStatus = "running"
	StageCompleted             StageStatus = "completed"
	StageCompletedWithFallback StageStatus = "completed_with_fallback"
	StageFailed                StageStatus = "failed"
)

// Config tunes one orchestrator. Zero values take the documented defaults.
type Config struct {
	// MaxComments caps the working set after deduplication (default: 25).
	MaxComments int

	// MaxConcurrentTasks bounds fan-out parallelism within a stage
	// (default: 4).
	MaxConcurrentTasks int

	// Dedup holds the priority weights (default: dedup.DefaultConfig()).
	Dedup dedup.Config

	// Resolver overrides the anchor resolver (default: anchor.NewResolver()).
	Resolver *anchor.Resolver
}

// DefaultMaxComments bounds the user-facing annotation count per run
const DefaultMaxComments = 25

const defaultMaxConcurrentTasks = 4

// Result is what a run always produces, no matter how the oracle behaved
type Result struct {
	Summary     string                              `json:"summary"`
	Analysis    string                              `json:"analysis"`
	Comments    []types.Comment                     `json:"comments"`
	State       State                               `json:"state"`
	StageStates map[telemetry.StageName]StageStatus `json:"stage_states"`
	Telemetry   *telemetry.ExecutionRecord          `json:"telemetry"`
}

// Orchestrator drives the five-stage review pipeline. One orchestrator can
// serve many runs; all per-run state lives in the run struct so concurrent
// runs never share mutable state.
type Orchestrator struct {
	oracle   oracle.Oracle
	resolver *anchor.Resolver
	cfg      Config
}

// New creates an orchestrator for the given oracle
func New(o oracle.Oracle, cfg Config) *Orchestrator {
	if cfg.MaxComments == 0 {
		cfg.MaxComments = DefaultMaxComments
	}
	if cfg.MaxConcurrentTasks == 0 {
		cfg.MaxConcurrentTasks = defaultMaxConcurrentTasks
	}
	if cfg.Dedup == (dedup.Config{}) {
		cfg.Dedup = dedup.DefaultConfig()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = anchor.NewResolver()
	}
	return &Orchestrator{
		oracle:   o,
		resolver: resolver,
		cfg:      cfg,
	}
}

// run is the per-run working state: the document, the collector, and the
// stage status table. Exclusively owned by one Run call.
type run struct {
	doc       *types.Document
	canonical *anchor.CanonicalDocument
	collector *telemetry.Collector
	states    map[telemetry.StageName]StageStatus
	degraded  bool
}

// Run executes the full pipeline over the document. chunks is the legacy
// multi-chunk extraction mode: each chunk gets its own extraction task. An
// empty chunk list means single-pass extraction over the whole document.
//
// Run never returns an error and never panics outward: any internal defect is
// converted into a degraded, well-formed result carrying the telemetry
// collected so far.
func (o *Orchestrator) Run(ctx context.Context, doc *types.Document, chunks []string) (result *Result) {
	r := &run{
		doc:       doc,
		canonical: anchor.NewCanonicalDocument(doc),
		collector: telemetry.NewCollector(),
		states: map[telemetry.StageName]StageStatus{
			telemetry.StageExtraction:        StagePending,
			telemetry.StageDeduplication:     StagePending,
			telemetry.StageSupportFilter:     StagePending,
			telemetry.StageCommentGeneration: StagePending,
			telemetry.StageReview:            StagePending,
		},
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("pipeline run panicked", "run", r.collector.RunID(), "panic", rec)
			err := fmt.Errorf("internal pipeline defect: %v", rec)
			result = &Result{
				Summary:     "Review could not be completed due to an internal error.",
				Analysis:    err.Error(),
				Comments:    []types.Comment{},
				State:       StateFailed,
				StageStates: r.states,
				Telemetry:   r.collector.Finalize(false, err),
			}
		}
	}()

	anchored := o.runExtraction(ctx, r, chunks)
	deduped := o.runDeduplication(r, anchored)
	filtered := o.runSupportFilter(ctx, r, deduped)
	comments := o.runCommentGeneration(ctx, r, filtered)
	kept, summary, analysis := o.runReview(ctx, r, comments)

	state := StateSucceeded
	if r.degraded {
		state = StatePartiallyDegraded
	}

	return &Result{
		Summary:     summary,
		Analysis:    analysis,
		Comments:    kept,
		State:       state,
		StageStates: r.states,
		Telemetry:   r.collector.Finalize(true, nil),
	}
}

// runExtraction fans out one oracle extraction task per chunk, joins, then
// anchors the reported issues in document order. Anchoring failures and
// overlap conflicts are normal, non-fatal outcomes recorded per item.
func (o *Orchestrator) runExtraction(ctx context.Context, r *run, chunks []string) []types.AnchoredIssue {
	if len(chunks) == 0 {
		chunks = []string{r.doc.Content}
	}

	r.states[telemetry.StageExtraction] = StageRunning
	r.collector.StartStage(telemetry.StageExtraction, len(chunks))

	// One independent task per chunk; a failed task contributes nothing and
	// never cancels its siblings.
	perChunk := make([][]types.RawIssue, len(chunks))
	errs := runTasks(ctx, len(chunks), o.cfg.MaxConcurrentTasks, func(taskCtx context.Context, i int) error {
		issues, err := o.oracle.Extract(taskCtx, chunks[i])
		if err != nil {
			return err
		}
		perChunk[i] = issues
		return nil
	})

	failedChunks := 0
	var firstErr error
	for _, err := range errs {
		if err != nil {
			failedChunks++
			if firstErr == nil {
				firstErr = err
			}
			slog.Warn("extraction task failed", "error", err)
		}
	}

	// Deterministic flatten: chunk order, then the oracle's issue order.
	var raw []types.RawIssue
	for _, issues := range perChunk {
		raw = append(raw, issues...)
	}

	// Anchor in batch order with a left-to-right cursor; first anchor wins
	// overlap conflicts.
	acceptor := anchor.NewOverlapAcceptor()
	cursor := 0
	var anchored []types.AnchoredIssue
	for i := range raw {
		rng, ok := o.resolver.Resolve(r.canonical, anchor.HintFromIssue(&raw[i]), cursor)
		if !ok {
			r.collector.RecordFilteredItems(telemetry.ItemRecord{
				Stage:         telemetry.StageExtraction,
				QuotedText:    raw[i].QuotedText,
				Reason:        "anchor not found",
				OriginalIndex: i,
			})
			continue
		}
		if !acceptor.Accept(rng) {
			r.collector.RecordFilteredItems(telemetry.ItemRecord{
				Stage:         telemetry.StageExtraction,
				QuotedText:    raw[i].QuotedText,
				Reason:        "overlaps an earlier anchor",
				OriginalIndex: i,
			})
			continue
		}
		cursor = rng.End
		anchored = append(anchored, types.AnchoredIssue{
			RawIssue:     raw[i],
			StartOffset:  rng.Start,
			EndOffset:    rng.End,
			ResolvedText: r.doc.Content[rng.Start:rng.End],
		})
	}

	// Canonical working-set order from here on is document order.
	sort.SliceStable(anchored, func(a, b int) bool {
		return anchored[a].StartOffset < anchored[b].StartOffset
	})

	var stageErr error
	status := StageCompleted
	if failedChunks == len(chunks) && len(chunks) > 0 && firstErr != nil {
		// Total extraction failure: zero issues, error recorded, pipeline
		// continues with nothing to process downstream.
		stageErr = fmt.Errorf("all %d extraction tasks failed: %w", len(chunks), firstErr)
		status = StageFailed
		r.degraded = true
	} else if failedChunks > 0 {
		stageErr = fmt.Errorf("%d of %d extraction tasks failed: %w", failedChunks, len(chunks), firstErr)
		status = StageCompletedWithFallback
		r.degraded = true
	}

	r.states[telemetry.StageExtraction] = status
	r.collector.EndStage(len(anchored), telemetry.EndOptions{
		Error: stageErr,
		Metadata: map[string]any{
			"chunks":        len(chunks),
			"failed_chunks": failedChunks,
			"raw_issues":    len(raw),
		},
	})
	r.collector.SetFinalCounts(telemetry.FinalCounts{
		Extracted: len(anchored), AfterDedup: -1, AfterFiltering: -1, Generated: -1, Kept: -1,
	})
	return anchored
}

// runDeduplication is the one stage that cannot fail: pure and synchronous
func (o *Orchestrator) runDeduplication(r *run, issues []types.AnchoredIssue) []types.AnchoredIssue {
	r.states[telemetry.StageDeduplication] = StageRunning
	r.collector.StartStage(telemetry.StageDeduplication, len(issues))

	out, stats := dedup.DedupeAndCap(issues, o.cfg.MaxComments, o.cfg.Dedup)

	r.states[telemetry.StageDeduplication] = StageCompleted
	r.collector.EndStage(len(out), telemetry.EndOptions{
		Metadata: map[string]any{
			"duplicates_removed":      stats.DuplicatesRemoved,
			"capped":                  stats.Capped,
			"kept_mean_priority":      stats.KeptMeanPriority,
			"discarded_mean_priority": stats.DiscardedMeanPriority,
		},
	})
	r.collector.SetFinalCounts(telemetry.FinalCounts{
		Extracted: -1, AfterDedup: len(out), AfterFiltering: -1, Generated: -1, Kept: -1,
	})
	return out
}

// runSupportFilter asks the oracle which issues are already addressed
// elsewhere in the document. Oracle failure activates the pass-through
// fallback: every input issue survives.
func (o *Orchestrator) runSupportFilter(ctx context.Context, r *run, issues []types.AnchoredIssue) []types.AnchoredIssue {
	r.states[telemetry.StageSupportFilter] = StageRunning
	r.collector.StartStage(telemetry.StageSupportFilter, len(issues))

	if len(issues) == 0 {
		r.states[telemetry.StageSupportFilter] = StageCompleted
		r.collector.EndStage(0)
		r.collector.SetFinalCounts(telemetry.FinalCounts{
			Extracted: -1, AfterDedup: -1, AfterFiltering: 0, Generated: -1, Kept: -1,
		})
		return issues
	}

	result, err := o.oracle.FilterSupported(ctx, r.doc.Content, issues)
	if err != nil {
		// Fallback: pass everything through unfiltered.
		slog.Warn("support filter failed, passing all issues through", "error", err)
		r.degraded = true
		r.states[telemetry.StageSupportFilter] = StageCompletedWithFallback
		r.collector.EndStage(len(issues), telemetry.EndOptions{
			Error:    err,
			Metadata: map[string]any{"fallback": "pass_through"},
		})
		r.collector.SetFinalCounts(telemetry.FinalCounts{
			Extracted: -1, AfterDedup: -1, AfterFiltering: len(issues), Generated: -1, Kept: -1,
		})
		return issues
	}

	standing := make(map[int]bool, len(result.UnsupportedIndices))
	for _, idx := range result.UnsupportedIndices {
		standing[idx] = true
	}

	kept := make([]types.AnchoredIssue, 0, len(result.UnsupportedIndices))
	for i := range issues {
		if standing[i] {
			kept = append(kept, issues[i])
			r.collector.RecordPassedItems(telemetry.ItemRecord{
				Stage:         telemetry.StageSupportFilter,
				QuotedText:    issues[i].QuotedText,
				Reason:        "not supported elsewhere in document",
				OriginalIndex: i,
			})
			continue
		}
		reason := "supported elsewhere in document"
		if expl, ok := result.SupportedExplanations[i]; ok && expl != "" {
			reason = expl
		}
		r.collector.RecordFilteredItems(telemetry.ItemRecord{
			Stage:         telemetry.StageSupportFilter,
			QuotedText:    issues[i].QuotedText,
			Reason:        reason,
			OriginalIndex: i,
		})
	}

	r.states[telemetry.StageSupportFilter] = StageCompleted
	r.collector.EndStage(len(kept))
	r.collector.SetFinalCounts(telemetry.FinalCounts{
		Extracted: -1, AfterDedup: -1, AfterFiltering: len(kept), Generated: -1, Kept: -1,
	})
	return kept
}

// runCommentGeneration fans out one annotation task per surviving issue.
// There is no stage-level fallback: a failed task just drops its comment.
func (o *Orchestrator) runCommentGeneration(ctx context.Context, r *run, issues []types.AnchoredIssue) []types.Comment {
	r.states[telemetry.StageCommentGeneration] = StageRunning
	r.collector.StartStage(telemetry.StageCommentGeneration, len(issues))

	slots := make([]*types.Comment, len(issues))
	errs := runTasks(ctx, len(issues), o.cfg.MaxConcurrentTasks, func(taskCtx context.Context, i int) error {
		description, err := o.oracle.Annotate(taskCtx, r.doc.Content, &issues[i])
		if err != nil {
			return err
		}
		slots[i] = &types.Comment{
			Header:      commentHeader(&issues[i]),
			Level:       types.LevelForSeverity(issues[i].Severity),
			Description: description,
			IssueType:   issues[i].IssueType,
			Importance:  issues[i].Importance,
			StartOffset: issues[i].StartOffset,
			EndOffset:   issues[i].EndOffset,
			QuotedText:  issues[i].ResolvedText,
		}
		return nil
	})

	// Join is complete; compact by original index so parallel completion
	// order never shows in the output.
	var comments []types.Comment
	for i, slot := range slots {
		if errs[i] != nil {
			slog.Warn("comment generation task dropped", "index", i, "error", errs[i])
			r.collector.RecordFilteredItems(telemetry.ItemRecord{
				Stage:         telemetry.StageCommentGeneration,
				QuotedText:    issues[i].QuotedText,
				Reason:        fmt.Sprintf("annotation failed: %v", errs[i]),
				OriginalIndex: i,
			})
			continue
		}
		if slot != nil {
			comments = append(comments, *slot)
		}
	}

	r.states[telemetry.StageCommentGeneration] = StageCompleted
	r.collector.EndStage(len(comments))
	r.collector.SetFinalCounts(telemetry.FinalCounts{
		Extracted: -1, AfterDedup: -1, AfterFiltering: -1, Generated: len(comments), Kept: -1,
	})
	return comments
}

// runReview performs the final oracle pass. Oracle failure activates the
// deterministic local fallback: all comments kept, rule-based summary.
func (o *Orchestrator) runReview(ctx context.Context, r *run, comments []types.Comment) ([]types.Comment, string, string) {
	r.states[telemetry.StageReview] = StageRunning
	r.collector.StartStage(telemetry.StageReview, len(comments))

	if len(comments) == 0 {
		summary, analysis := localReviewSummary(comments)
		r.states[telemetry.StageReview] = StageCompleted
		r.collector.EndStage(0)
		r.collector.SetFinalCounts(telemetry.FinalCounts{
			Extracted: -1, AfterDedup: -1, AfterFiltering: -1, Generated: -1, Kept: 0,
		})
		return comments, summary, analysis
	}

	review, err := o.oracle.Review(ctx, r.doc.Content, comments)
	if err != nil {
		slog.Warn("review failed, using local summary fallback", "error", err)
		summary, analysis := localReviewSummary(comments)
		r.degraded = true
		r.states[telemetry.StageReview] = StageCompletedWithFallback
		r.collector.EndStage(len(comments), telemetry.EndOptions{
			Error:    err,
			Metadata: map[string]any{"fallback": "local_summary"},
		})
		r.collector.SetFinalCounts(telemetry.FinalCounts{
			Extracted: -1, AfterDedup: -1, AfterFiltering: -1, Generated: -1, Kept: len(comments),
		})
		return comments, summary, analysis
	}

	keep := make(map[int]bool, len(review.KeptIndices))
	for _, idx := range review.KeptIndices {
		keep[idx] = true
	}

	var kept []types.Comment
	for i := range comments {
		if keep[i] {
			kept = append(kept, comments[i])
			continue
		}
		r.collector.RecordFilteredItems(telemetry.ItemRecord{
			Stage:         telemetry.StageReview,
			QuotedText:    comments[i].QuotedText,
			Reason:        "dropped by final review",
			OriginalIndex: i,
		})
	}

	r.states[telemetry.StageReview] = StageCompleted
	r.collector.EndStage(len(kept))
	r.collector.SetFinalCounts(telemetry.FinalCounts{
		Extracted: -1, AfterDedup: -1, AfterFiltering: -1, Generated: -1, Kept: len(kept),
	})
	return kept, review.OneLineSummary, review.DocumentSummary
}

// commentHeader renders the short plain-text header for one comment
func commentHeader(issue *types.AnchoredIssue) string {
	label := strings.ToUpper(string(issue.IssueType)[:1]) + string(issue.IssueType)[1:]
	return fmt.Sprintf("%s (%s)", label, types.LevelForSeverity(issue.Severity))
}
