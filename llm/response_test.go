package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare json object",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "json fence",
			in:   "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "anonymous fence",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "fence with surrounding whitespace",
			in:   "  ```json\n  {\"a\": 1}\n```  ",
			want: `{"a": 1}`,
		},
		{
			name: "prose around object",
			in:   "Here is the JSON you asked for: {\"a\": 1} hope that helps!",
			want: `{"a": 1}`,
		},
		{
			name: "prose around array",
			in:   "Sure! [1, 2, 3] is the result.",
			want: `[1, 2, 3]`,
		},
		{
			name: "fenced array",
			in:   "```json\n[{\"subject\": \"x\"}]\n```",
			want: `[{"subject": "x"}]`,
		},
		{
			name: "no json at all",
			in:   "  plain text  ",
			want: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}
