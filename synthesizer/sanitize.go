package synthesizer

import (
	"regexp"
	"strings"
)

// Matches a code fence with its optional language tag, such as "```json".
var codeFencePattern = regexp.MustCompile("```[A-Za-z0-9_+-]*")

// Sanitize repairs common formatting defects in model output before it is parsed: code fence
// markers are removed, and the text from the first '{' to the last '}' is extracted. Applying it to
// its own output returns the same text.
func Sanitize(raw string) string {
	text := strings.TrimSpace(codeFencePattern.ReplaceAllString(raw, ""))

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
