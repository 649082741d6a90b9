package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "json code block", input: "```json\n{\"prediction\": \"Yes\"}\n```", expected: `{"prediction": "Yes"}`},
		{name: "generic code block", input: "```\n{\"prediction\": \"No\"}\n```", expected: `{"prediction": "No"}`},
		{name: "plain JSON", input: `{"confidence": 80}`, expected: `{"confidence": 80}`},
		{name: "preamble", input: "Here is my assessment:\n{\"prediction\": \"Yes\"}", expected: `{"prediction": "Yes"}`},
		{name: "trailing text", input: "{\"prediction\": \"No\"}\n\nLet me know if you need more.", expected: `{"prediction": "No"}`},
		{name: "braces inside strings", input: `Result: {"reasoning": "mentions {lot 2} only"}`, expected: `{"reasoning": "mentions {lot 2} only"}`},
		{name: "escaped quotes", input: "Result: {\"reasoning\": \"the \\\"study\\\" part\"}", expected: `{"reasoning": "the \"study\" part"}`},
		{name: "array untouched", input: `["a", "b"]`, expected: `["a", "b"]`},
		{name: "no JSON", input: "I cannot help with that", expected: "I cannot help with that"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanJSONBlock(tt.input))
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a": {"b": 1}}`, extractJSONObject(`x {"a": {"b": 1}} y`))
	assert.Equal(t, "", extractJSONObject("no braces"))
	assert.Equal(t, "", extractJSONObject(`{"unterminated": 1`))
}
