package anchor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/redlinehq/redline/internal/types"
)

// CanonicalDocument is a document prepared for anchor resolution. It holds the
// canonical rune stream plus, for every canonical rune, the raw byte range it
// was derived from. Built once per run and shared read-only across lookups.
type CanonicalDocument struct {
	doc        *types.Document
	runes      []rune
	rawStart   []int // raw byte offset where canonical rune i begins
	rawEnd     []int // raw byte offset just past canonical rune i
	lineStarts []int // raw byte offset of each line start
}

// NewCanonicalDocument canonicalizes a document for repeated resolution
func NewCanonicalDocument(doc *types.Document) *CanonicalDocument {
	runes, starts, ends := canonicalizeMapped(doc.Content)

	lineStarts := []int{0}
	for i := 0; i < len(doc.Content); i++ {
		if doc.Content[i] == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}

	return &CanonicalDocument{
		doc:        doc,
		runes:      runes,
		rawStart:   starts,
		rawEnd:     ends,
		lineStarts: lineStarts,
	}
}

// Document returns the underlying immutable document
func (c *CanonicalDocument) Document() *types.Document {
	return c.doc
}

// canonicalIndexAt converts a raw byte offset into the index of the first
// canonical rune at or after that offset. Used to translate the caller's
// search cursor (a raw offset) into canonical space.
func (c *CanonicalDocument) canonicalIndexAt(rawOffset int) int {
	if rawOffset <= 0 {
		return 0
	}
	// rawStart is non-decreasing, so a linear scan from a binary search
	// split point would work too; batches are small enough that plain
	// binary search on the lower bound is all we need.
	lo, hi := 0, len(c.rawStart)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.rawStart[mid] < rawOffset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// rawRange maps a half-open canonical rune span back to raw byte offsets
func (c *CanonicalDocument) rawRange(start, end int) (Range, bool) {
	if start < 0 || end <= start || end > len(c.runes) {
		return Range{}, false
	}
	return Range{Start: c.rawStart[start], End: c.rawEnd[end-1]}, true
}

// Canonicalize normalizes text for matching: whitespace runs collapse to one
// space, markdown emphasis markers and punctuation are stripped, and letters
// are lowercased. Only letters, digits, and single spaces survive.
func Canonicalize(s string) string {
	runes, _, _ := canonicalizeMapped(s)
	return string(runes)
}

// canonicalizeMapped canonicalizes s and records, per canonical rune, the raw
// byte range it came from. A collapsed whitespace run maps to the full raw
// extent of the run so that spans beginning or ending on a space still round-
// trip to sensible raw offsets.
func canonicalizeMapped(s string) (runes []rune, rawStart, rawEnd []int) {
	pendingSpace := false
	spaceStart := 0

	for i, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && len(runes) > 0 {
				runes = append(runes, ' ')
				rawStart = append(rawStart, spaceStart)
				rawEnd = append(rawEnd, i)
			}
			pendingSpace = false
			runes = append(runes, unicode.ToLower(r))
			rawStart = append(rawStart, i)
			rawEnd = append(rawEnd, i+utf8.RuneLen(r))
		case unicode.IsSpace(r):
			if !pendingSpace {
				pendingSpace = true
				spaceStart = i
			}
		default:
			// Emphasis markers, quotes, and other punctuation are
			// dropped entirely so "sky-blue" matches "skyblue".
		}
	}
	return runes, rawStart, rawEnd
}

// significantTokens splits canonical text into tokens longer than minLen runes
func significantTokens(canonical string, minLen int) []string {
	var out []string
	for _, tok := range strings.Fields(canonical) {
		if utf8.RuneCountInString(tok) > minLen {
			out = append(out, tok)
		}
	}
	return out
}

// indexRunes finds the first occurrence of needle in haystack at or after from.
// Naive scan; documents are small enough that this beats maintaining a more
// clever index.
func indexRunes(haystack, needle []rune, from int) int {
	if from < 0 {
		from = 0
	}
	if len(needle) == 0 || from+len(needle) > len(haystack) {
		return -1
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		if runesEqual(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
