package generation

import (
	"strings"
	"unicode"
)

const fence = "```"

// Normalize strips Markdown code-fence wrapping from raw generation output.
// A leading fence may carry a "json" language tag; the trailing fence is
// optional. Nested wrappings are peeled until none is left, so
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	s := strings.TrimSpace(text)
	for {
		next := stripFence(s)
		if next == s {
			return s
		}
		s = next
	}
}

func stripFence(s string) string {
	if strings.HasPrefix(s, fence) {
		s = s[len(fence):]
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
	}
	if strings.HasSuffix(s, fence) {
		s = s[:len(s)-len(fence)]
	}
	return strings.TrimSpace(s)
}
