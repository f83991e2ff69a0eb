package llm

import (
	"regexp"
	"strings"
)

// fencePattern matches a response wrapped in a markdown code fence with
// arbitrary surrounding whitespace, optionally tagged "json".
var fencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// StripCodeFences removes a leading/trailing markdown code fence from a
// model response. When no fence is present but the text contains a JSON
// object, the outermost brace span is returned; otherwise the trimmed text
// is returned unchanged.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		return s[start : end+1]
	}
	if start, end := strings.Index(s, "["), strings.LastIndex(s, "]"); start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
