package oracle

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// The oracle's JSON arrives wrapped in whatever the model felt like today:
// code fences, trailing commas, prose before and after the payload. The
// parser works through progressively more aggressive cleanup strategies
// instead of failing on the first quirk.

// Pre-compiled patterns; compiling per parse is an order of magnitude slower.
var (
	fenceRegex         = regexp.MustCompile("(?s)`{3}(?:json)?\\s*\n?([\\s\\S]*?)\n?`{3}")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	lineCommentRegex   = regexp.MustCompile(`(?m)//.*$`)
	blockCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex         = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// maxParseInput caps parser input to keep a runaway response from exhausting
// memory.
const maxParseInput = 10 * 1024 * 1024

// parseResponse decodes an oracle response into T, trying in order:
//
//  1. direct JSON parse
//  2. strip markdown code fences
//  3. fix trailing commas and strip comments
//  4. extract the first JSON object or array from mixed content
func parseResponse[T any](text, what string) (T, error) {
	var zero T

	if len(text) > maxParseInput {
		return zero, fmt.Errorf("%s: response exceeds %d bytes", what, maxParseInput)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return zero, fmt.Errorf("%s: empty response", what)
	}

	if out, err := tryParse[T](trimmed); err == nil {
		return out, nil
	}

	unfenced := stripFences(trimmed)
	if unfenced != trimmed {
		if out, err := tryParse[T](unfenced); err == nil {
			return out, nil
		}
	}

	cleaned := cleanJSON(unfenced)
	if out, err := tryParse[T](cleaned); err == nil {
		return out, nil
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if out, err := tryParse[T](extracted); err == nil {
			return out, nil
		}
	}

	slog.Debug("all oracle response parse strategies failed",
		"context", what,
		"preview", preview(text, 120))
	return zero, fmt.Errorf("%s: no parse strategy succeeded", what)
}

func tryParse[T any](text string) (T, error) {
	var out T
	err := json.Unmarshal([]byte(text), &out)
	return out, err
}

// stripFences removes markdown code fences wrapping or embedded in the text
func stripFences(text string) string {
	cleaned := fenceRegex.ReplaceAllString(text, "$1")
	cleaned = strings.TrimSpace(cleaned)
	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") && len(cleaned) > 1 {
		cleaned = strings.TrimSpace(cleaned[1 : len(cleaned)-1])
	}
	return cleaned
}

// cleanJSON fixes trailing commas and strips JS-style comments. Single quotes
// are left alone: rewriting them would corrupt valid JSON containing
// apostrophes.
func cleanJSON(text string) string {
	cleaned := trailingCommaRegex.ReplaceAllString(text, "$1")
	cleaned = lineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = blockCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractJSON pulls the first JSON object or array out of mixed prose. The
// first-character check keeps an array response from being truncated to its
// first element.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if m := arrayRegex.FindString(trimmed); m != "" {
			return m
		}
	}
	if m := objectRegex.FindString(text); m != "" {
		return m
	}
	return arrayRegex.FindString(text)
}

func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
