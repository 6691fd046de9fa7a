package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/redlinehq/redline/internal/types"
)

// localReviewSummary is the deterministic fallback used when the review
// oracle is unavailable: a rule-based severity tally over the generated
// comments. All comments are kept.
func localReviewSummary(comments []types.Comment) (oneLine, analysis string) {
	if len(comments) == 0 {
		return "No issues found.", "The review completed without generating any annotations."
	}

	byLevel := map[types.Level]int{}
	byType := map[types.IssueType]int{}
	for _, c := range comments {
		byLevel[c.Level]++
		byType[c.IssueType]++
	}

	var parts []string
	for _, lvl := range []types.Level{types.LevelCritical, types.LevelWarning, types.LevelSuggestion, types.LevelNote} {
		if n := byLevel[lvl]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, lvl))
		}
	}
	oneLine = fmt.Sprintf("Found %d issues (%s).", len(comments), strings.Join(parts, ", "))

	// Stable type ordering for a deterministic paragraph.
	kinds := make([]string, 0, len(byType))
	for t := range byType {
		kinds = append(kinds, string(t))
	}
	sort.Strings(kinds)

	var b strings.Builder
	b.WriteString("Automated tally (external reviewer unavailable): ")
	b.WriteString(oneLine)
	b.WriteString(" Issue types: ")
	for i, k := range kinds {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s (%d)", k, byType[types.IssueType(k)])
	}
	b.WriteString(".")
	return oneLine, b.String()
}
