package dedup

import (
	"sort"
	"strings"

	"github.com/redlinehq/redline/internal/types"
)

// Config holds the ranking weights for priority scoring. The defaults weight
// severity over importance.
type Config struct {
	SeverityWeight   float64
	ImportanceWeight float64
}

// DefaultConfig returns the standard priority weighting
func DefaultConfig() Config {
	return Config{
		SeverityWeight:   0.6,
		ImportanceWeight: 0.4,
	}
}

// Priority computes the ranking score for one issue
func (c Config) Priority(issue *types.AnchoredIssue) float64 {
	return float64(issue.Severity)*c.SeverityWeight + float64(issue.Importance)*c.ImportanceWeight
}

// Stats describes what DedupeAndCap did, for telemetry
type Stats struct {
	DuplicatesRemoved     int     `json:"duplicates_removed"`
	Capped                int     `json:"capped"`
	KeptMeanPriority      float64 `json:"kept_mean_priority"`
	DiscardedMeanPriority float64 `json:"discarded_mean_priority"`
}

// ranked pairs an issue with its original input index for stable tie-breaking
type ranked struct {
	issue types.AnchoredIssue
	index int
}

// DedupeAndCap collapses duplicate issues, ranks survivors by priority, and
// truncates to maxCount.
//
// The dedup key is the lowercased, whitespace-collapsed quoted text; the first
// occurrence per key wins, stable with respect to input order. Survivors are
// sorted descending by priority = severity*SeverityWeight +
// importance*ImportanceWeight, ties broken by original input order. A negative
// maxCount means no cap.
func DedupeAndCap(issues []types.AnchoredIssue, maxCount int, cfg Config) ([]types.AnchoredIssue, Stats) {
	var stats Stats

	// Collapse by canonical key, keeping first occurrence and its input index.
	seen := make(map[string]bool, len(issues))
	var unique []ranked
	for i, issue := range issues {
		key := DedupKey(issue.QuotedText)
		if seen[key] {
			stats.DuplicatesRemoved++
			continue
		}
		seen[key] = true
		unique = append(unique, ranked{issue: issue, index: i})
	}

	// Rank by priority, ties by original input order.
	sort.SliceStable(unique, func(a, b int) bool {
		pa := cfg.Priority(&unique[a].issue)
		pb := cfg.Priority(&unique[b].issue)
		if pa != pb {
			return pa > pb
		}
		return unique[a].index < unique[b].index
	})

	kept := unique
	var discarded []ranked
	if maxCount >= 0 && len(unique) > maxCount {
		kept = unique[:maxCount]
		discarded = unique[maxCount:]
		stats.Capped = len(discarded)
	}

	out := make([]types.AnchoredIssue, 0, len(kept))
	for _, r := range kept {
		out = append(out, r.issue)
	}

	stats.KeptMeanPriority = meanPriority(kept, cfg)
	stats.DiscardedMeanPriority = meanPriority(discarded, cfg)
	return out, stats
}

// DedupKey canonicalizes quoted text for duplicate detection: lowercased with
// whitespace runs collapsed to single spaces.
func DedupKey(quotedText string) string {
	return strings.Join(strings.Fields(strings.ToLower(quotedText)), " ")
}

func meanPriority(items []ranked, cfg Config) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for i := range items {
		sum += cfg.Priority(&items[i].issue)
	}
	return sum / float64(len(items))
}
