package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestParseResponseStrategies(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "clean JSON",
			input: `{"name": "alpha", "count": 3}`,
		},
		{
			name:  "json code fence",
			input: "```json\n{\"name\": \"alpha\", \"count\": 3}\n```",
		},
		{
			name:  "bare code fence",
			input: "```\n{\"name\": \"alpha\", \"count\": 3}\n```",
		},
		{
			name:  "trailing comma",
			input: `{"name": "alpha", "count": 3,}`,
		},
		{
			name:  "line comment",
			input: "{\"name\": \"alpha\", // model commentary\n\"count\": 3}",
		},
		{
			name:  "prose around the payload",
			input: `Here is the result you asked for:` + "\n" + `{"name": "alpha", "count": 3}` + "\n" + `Let me know if you need anything else!`,
		},
		{
			name:  "fenced with prose",
			input: "Sure! The analysis:\n```json\n{\"name\": \"alpha\", \"count\": 3}\n```\nDone.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := parseResponse[testPayload](tt.input, "test")
			require.NoError(t, err)
			assert.Equal(t, testPayload{Name: "alpha", Count: 3}, out)
		})
	}
}

func TestParseResponseArray(t *testing.T) {
	input := "```json\n[{\"name\": \"a\", \"count\": 1}, {\"name\": \"b\", \"count\": 2}]\n```"

	out, err := parseResponse[[]testPayload](input, "test")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[1].Name)
}

func TestParseResponseFailures(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t  "},
		{"no JSON at all", "I could not find any issues in this document."},
		{"truncated JSON", `{"name": "alpha", "cou`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseResponse[testPayload](tt.input, "test")
			assert.Error(t, err)
		})
	}
}

func TestParseResponsePreservesApostrophes(t *testing.T) {
	out, err := parseResponse[testPayload](`{"name": "it's fine", "count": 1}`, "test")
	require.NoError(t, err)
	assert.Equal(t, "it's fine", out.Name)
}

func TestExtractJSONFirstCharCheck(t *testing.T) {
	// An array response must not be truncated to its first object.
	got := extractJSON(`[{"a": 1}, {"a": 2}]`)
	assert.Equal(t, `[{"a": 1}, {"a": 2}]`, got)

	got = extractJSON(`prefix {"a": 1} suffix`)
	assert.Equal(t, `{"a": 1}`, got)

	assert.Empty(t, extractJSON("no json here"))
}
