package anchor

import (
	"log/slog"
	"strings"

	"github.com/redlinehq/redline/internal/types"
)

// DefaultTokenOverlapThreshold is the fraction of significant quote tokens
// that must appear in the candidate document window for lenient acceptance.
// The 0.7 value is a heuristic with no derivation behind it; it is kept
// configurable so it can be recalibrated against real oracle output.
const DefaultTokenOverlapThreshold = 0.7

// DefaultWindowRadius bounds the fallback scan, in canonical runes, around
// the first significant token of the quote.
const DefaultWindowRadius = 100

// defaultMinTokenLength: tokens must be strictly longer than this to count
// as significant.
const defaultMinTokenLength = 3

// Range is a half-open raw byte range [Start, End) in the source document
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Intersects reports whether two half-open ranges overlap
func (r Range) Intersects(other Range) bool {
	return r.Start < other.End && other.Start < r.End
}

// Hint carries the oracle's location claim for one issue. QuotedText is
// always present; the other fields are optional refinements.
type Hint struct {
	QuotedText  string
	StartMarker string
	Offsets     *types.OffsetHint
	Line        *types.LineHint
}

// HintFromIssue builds a resolution hint from a raw issue
func HintFromIssue(issue *types.RawIssue) Hint {
	return Hint{
		QuotedText:  issue.QuotedText,
		StartMarker: issue.StartMarker,
		Offsets:     issue.Offsets,
		Line:        issue.Line,
	}
}

// Resolver turns hints into verified ranges. The zero value is not usable;
// construct with NewResolver.
type Resolver struct {
	// TokenOverlapThreshold is the lenient-acceptance ratio in (0, 1].
	TokenOverlapThreshold float64

	// WindowRadius is the fallback scan radius in canonical runes.
	WindowRadius int

	// MinTokenLength: tokens longer than this are significant.
	MinTokenLength int
}

// NewResolver creates a resolver with the default heuristics
func NewResolver() *Resolver {
	return &Resolver{
		TokenOverlapThreshold: DefaultTokenOverlapThreshold,
		WindowRadius:          DefaultWindowRadius,
		MinTokenLength:        defaultMinTokenLength,
	}
}

// Resolve maps a hint to a verified raw byte range. searchCursor is a raw
// offset; searching prefers matches at or after it so that a batch resolved
// in document order disambiguates repeated phrases left to right. A miss at
// the cursor retries from the top of the document to tolerate out-of-order
// batches.
//
// Resolution failure is a normal outcome: ok=false, never an error.
func (r *Resolver) Resolve(cd *CanonicalDocument, hint Hint, searchCursor int) (Range, bool) {
	if cd == nil || cd.doc.Length == 0 {
		return Range{}, false
	}

	// Strategy 1: explicit offsets, verified against bounds only.
	if hint.Offsets != nil {
		if rng, ok := r.resolveExplicit(cd, hint.Offsets); ok {
			return rng, true
		}
		// A bad explicit hint falls through to text search.
	}

	// Strategy 2: line-based hints.
	if hint.Line != nil {
		return r.resolveLine(cd, hint.Line)
	}

	return r.resolveText(cd, hint, searchCursor)
}

// resolveExplicit accepts an oracle-claimed range when it is in bounds
func (r *Resolver) resolveExplicit(cd *CanonicalDocument, off *types.OffsetHint) (Range, bool) {
	if off.Start < 0 || off.End <= off.Start || off.End > cd.doc.Length {
		return Range{}, false
	}
	return Range{Start: off.Start, End: off.End}, true
}

// resolveText implements quote-mode resolution: exact canonical match at the
// start marker, then lenient token overlap, then a bounded window scan.
func (r *Resolver) resolveText(cd *CanonicalDocument, hint Hint, searchCursor int) (Range, bool) {
	quote := []rune(Canonicalize(hint.QuotedText))
	if len(quote) == 0 {
		return Range{}, false
	}

	marker := quote
	if hint.StartMarker != "" {
		if m := []rune(Canonicalize(hint.StartMarker)); len(m) > 0 {
			marker = m
		}
	}

	cursor := cd.canonicalIndexAt(searchCursor)

	// Find the marker at or after the cursor, then from the top.
	pos := indexRunes(cd.runes, marker, cursor)
	if pos < 0 && cursor > 0 {
		pos = indexRunes(cd.runes, marker, 0)
	}

	if pos >= 0 {
		end := pos + len(quote)
		if end > len(cd.runes) {
			end = len(cd.runes)
		}

		// Exact canonical comparison of the quote-length span.
		if end-pos == len(quote) && runesEqual(cd.runes[pos:end], quote) {
			return cd.rawRange(pos, end)
		}

		// Lenient acceptance: enough significant tokens survive.
		if r.tokenOverlapOK(string(quote), string(cd.runes[pos:end])) {
			return cd.rawRange(pos, end)
		}
	}

	// Fallback: scan a bounded window around the first significant token.
	if rng, ok := r.resolveWindow(cd, quote, cursor); ok {
		return rng, ok
	}

	slog.Debug("anchor resolution failed",
		"quotePreview", previewRunes(quote, 60),
		"cursor", searchCursor)
	return Range{}, false
}

// tokenOverlapOK applies the lenient acceptance rule: at least
// TokenOverlapThreshold of the quote's significant tokens must appear among
// the candidate's significant tokens.
func (r *Resolver) tokenOverlapOK(quote, candidate string) bool {
	quoteToks := significantTokens(quote, r.MinTokenLength)
	if len(quoteToks) == 0 {
		return false
	}

	have := make(map[string]bool)
	for _, tok := range significantTokens(candidate, r.MinTokenLength) {
		have[tok] = true
	}

	matched := 0
	for _, tok := range quoteToks {
		if have[tok] {
			matched++
		}
	}
	return float64(matched)/float64(len(quoteToks)) >= r.TokenOverlapThreshold
}

// resolveWindow locates the quote's first significant token anywhere at or
// after the cursor and scans ±WindowRadius canonical runes around it for the
// full canonical quote.
func (r *Resolver) resolveWindow(cd *CanonicalDocument, quote []rune, cursor int) (Range, bool) {
	toks := significantTokens(string(quote), r.MinTokenLength)
	if len(toks) == 0 {
		return Range{}, false
	}
	first := []rune(toks[0])

	tokPos := indexRunes(cd.runes, first, cursor)
	if tokPos < 0 && cursor > 0 {
		tokPos = indexRunes(cd.runes, first, 0)
	}
	if tokPos < 0 {
		return Range{}, false
	}

	winStart := tokPos - r.WindowRadius
	if winStart < 0 {
		winStart = 0
	}
	winEnd := tokPos + r.WindowRadius + len(quote)
	if winEnd > len(cd.runes) {
		winEnd = len(cd.runes)
	}

	rel := indexRunes(cd.runes[winStart:winEnd], quote, 0)
	if rel < 0 {
		return Range{}, false
	}
	return cd.rawRange(winStart+rel, winStart+rel+len(quote))
}

// resolveLine implements line-based resolution: locate the 0-based start line,
// find the start snippet within it, and for multi-line spans find the end
// snippet within the end line. The resolved range concatenates across all
// spanned lines. Invalid line indices and unmatched snippets resolve to
// nothing.
func (r *Resolver) resolveLine(cd *CanonicalDocument, hint *types.LineHint) (Range, bool) {
	lines := cd.doc.Lines()
	if hint.StartLine < 0 || hint.StartLine >= len(lines) {
		return Range{}, false
	}

	endLine := hint.EndLine
	if endLine < hint.StartLine {
		endLine = hint.StartLine
	}
	if endLine >= len(lines) {
		return Range{}, false
	}

	startIdx := findInLine(lines[hint.StartLine], hint.StartSnippet)
	if startIdx < 0 {
		return Range{}, false
	}
	start := cd.lineStarts[hint.StartLine] + startIdx

	var end int
	if endLine == hint.StartLine && hint.EndSnippet == "" {
		end = start + len(hint.StartSnippet)
	} else {
		snippet := hint.EndSnippet
		if snippet == "" {
			// Multi-line span with no end snippet: take the whole end line.
			end = cd.lineStarts[endLine] + len(lines[endLine])
			if end <= start {
				return Range{}, false
			}
			return Range{Start: start, End: end}, true
		}
		endIdx := findInLine(lines[endLine], snippet)
		if endIdx < 0 {
			return Range{}, false
		}
		end = cd.lineStarts[endLine] + endIdx + len(snippet)
	}

	if end <= start || end > cd.doc.Length {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

// findInLine locates a snippet within one line, exact first, then
// case-insensitive.
func findInLine(line, snippet string) int {
	if snippet == "" {
		return -1
	}
	if idx := strings.Index(line, snippet); idx >= 0 {
		return idx
	}
	return strings.Index(strings.ToLower(line), strings.ToLower(snippet))
}

func previewRunes(rs []rune, max int) string {
	if len(rs) <= max {
		return string(rs)
	}
	return string(rs[:max]) + "..."
}
