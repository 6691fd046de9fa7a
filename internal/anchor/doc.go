// Package anchor resolves oracle-supplied text hints to verified character
// ranges in a source document.
//
// # Overview
//
// The oracle quotes passages it believes exist in the document, but its quotes
// are noisy: whitespace gets collapsed, markdown emphasis gets dropped, and
// punctuation drifts. The resolver canonicalizes both sides, searches the
// canonical document, and maps accepted matches back to raw byte offsets so
// every anchored issue points at an exact slice of the original text.
//
// # Resolution strategies
//
// Strategies are tried in order, cheapest first:
//
//  1. Explicit offsets claimed by the oracle, verified against bounds
//  2. Line-based hints (0-based line index plus boundary snippets)
//  3. Exact canonical match at the start marker, searched from a cursor
//  4. Lenient token-overlap acceptance at the marker position
//  5. Bounded window scan around the first significant token
//
// Resolution failure is a normal outcome and is reported as ok=false, never as
// an error. Overlap between anchors in one batch is resolved first-come: later
// candidates that intersect an accepted range are dropped, not retried.
package anchor
