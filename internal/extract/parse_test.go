package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContent_Repairs(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"plain", `{"a":1}`},
		{"surrounding whitespace", "\n\t {\"a\":1}  \n"},
		{"json fence", "```json\n{\"a\":1}\n```"},
		{"bare fence", "```\n{\"a\":1}\n```"},
		{"prose around object", "Here you go:\n{\"a\":1}\nHope that helps!"},
		{"fence inside prose", "Sure!\n```json\n{\"a\":1}\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, failure := parseContent(tt.content)
			require.Nil(t, failure)
			obj, ok := doc.(map[string]any)
			require.True(t, ok, "doc = %#v", doc)
			assert.Contains(t, obj, "a")
		})
	}
}

func TestParseContent_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		offset  int64
		line    int
		column  int
	}{
		{
			name:    "prose",
			content: "Sure! Here are some cities: Paris, Tokyo",
			offset:  0,
			line:    1,
			column:  1,
		},
		{
			name:    "leading whitespace counted",
			content: "\n\n  nope",
			offset:  4,
			line:    3,
			column:  3,
		},
		{
			name:    "trailing comma",
			content: "{\n  \"cities\": [\n    {\"name\": \"Paris\",}\n  ]\n}",
			offset:  37,
			line:    3,
			column:  22,
		},
		{
			name:    "truncated",
			content: `{"cities":[`,
			offset:  11,
			line:    1,
			column:  12,
		},
		{
			name:    "empty",
			content: "   ",
			offset:  0,
			line:    1,
			column:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, failure := parseContent(tt.content)
			require.NotNil(t, failure)
			assert.Nil(t, doc)
			assert.Equal(t, KindParse, failure.Kind)
			assert.False(t, failure.Retryable)
			assert.Equal(t, tt.content, failure.Raw)
			assert.Equal(t, tt.offset, failure.Offset)
			assert.Equal(t, tt.line, failure.Line)
			assert.Equal(t, tt.column, failure.Column)
		})
	}
}

func TestPosition(t *testing.T) {
	line, col := position("ab\ncd\nef", 4)
	assert.Equal(t, 2, line)
	assert.Equal(t, 2, col)

	line, col = position("héllo", 3)
	assert.Equal(t, 1, line)
	assert.Equal(t, 3, col, "columns count runes")

	line, col = position("abc", 99)
	assert.Equal(t, 1, line)
	assert.Equal(t, 4, col)
}
