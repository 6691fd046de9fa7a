package oracle

import (
	"fmt"
	"strings"

	"github.com/redlinehq/redline/internal/types"
)

// Prompt construction for the four oracle calls. Each prompt pins the
// response to a strict JSON schema; the resilient parser copes with the
// formatting the model adds anyway.

func buildExtractionPrompt(documentText string) string {
	return fmt.Sprintf(`You are reviewing a document for problems. Identify passages with issues of these types: accuracy, clarity, consistency, completeness, logic, style.

Document:
---
%s
---

Respond with JSON only, in this exact schema:
{
  "issues": [
    {
      "quoted_text": "<exact passage copied verbatim from the document>",
      "start_marker": "<first few words of the passage, verbatim>",
      "reasoning": "<why this passage is a problem>",
      "issue_type": "<accuracy|clarity|consistency|completeness|logic|style>",
      "severity": <0-100>,
      "confidence": <0-100>,
      "importance": <0-100>
    }
  ]
}

Rules:
- quoted_text must be copied exactly from the document, including punctuation.
- Report each distinct problem once.
- Return {"issues": []} if the document is clean.`, documentText)
}

func buildSupportFilterPrompt(documentText string, issues []types.AnchoredIssue) string {
	var list strings.Builder
	for i, issue := range issues {
		fmt.Fprintf(&list, "%d. [%s] %q — %s\n", i, issue.IssueType, issue.QuotedText, issue.Reasoning)
	}

	return fmt.Sprintf(`A reviewer flagged the issues below in the document. Some of them are actually addressed or supported elsewhere in the same document and should be withdrawn.

Document:
---
%s
---

Flagged issues (indexed from 0):
%s
Respond with JSON only:
{
  "unsupported_indices": [<indices of issues that STAND because nothing elsewhere addresses them>],
  "supported_explanations": {"<index>": "<where in the document the concern is already addressed>"}
}

Every index must appear in exactly one of the two fields.`, documentText, list.String())
}

func buildAnnotationPrompt(documentText string, issue *types.AnchoredIssue) string {
	return fmt.Sprintf(`Write a concise review annotation for one issue found in a document.

Document context (the flagged passage is quoted below):
---
%s
---

Flagged passage: %q
Issue type: %s
Reviewer reasoning: %s

Respond with JSON only:
{
  "description": "<2-4 sentences: what is wrong and how to fix it, addressed to the document author>"
}

Do not restate the passage; the reader sees it highlighted.`,
		excerptAround(documentText, issue.StartOffset, issue.EndOffset, 400),
		issue.ResolvedText, issue.IssueType, issue.Reasoning)
}

func buildReviewPrompt(documentText string, comments []types.Comment) string {
	var list strings.Builder
	for i, c := range comments {
		fmt.Fprintf(&list, "%d. [%s/%s] %q: %s\n", i, c.Level, c.IssueType, c.QuotedText, c.Description)
	}

	return fmt.Sprintf(`You are the final reviewer for a set of document annotations. Drop annotations that are wrong, trivial, or redundant; keep the rest.

Document:
---
%s
---

Candidate annotations (indexed from 0):
%s
Respond with JSON only:
{
  "kept_indices": [<indices of annotations to keep>],
  "one_line_summary": "<one sentence describing the overall state of the document>",
  "document_summary": "<one short paragraph summarizing the main problems found>"
}`, documentText, list.String())
}

// excerptAround returns the document text surrounding a range, bounded to
// radius bytes each side, so annotation prompts stay small on large
// documents.
func excerptAround(text string, start, end, radius int) string {
	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	hi := end + radius
	if hi > len(text) {
		hi = len(text)
	}
	excerpt := text[lo:hi]
	if lo > 0 {
		excerpt = "..." + excerpt
	}
	if hi < len(text) {
		excerpt += "..."
	}
	return excerpt
}
