package rendering

import "strings"

// EscapeMarkdown escapes characters that Markdown would treat as inline markup.
// Special characters: \ ` * _ [ ] < > | #
func EscapeMarkdown(text string) string {
	if text == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(text) * 2) // Pre-allocate space for potential escaping

	for _, r := range text {
		switch r {
		case '\\', '`', '*', '_', '[', ']', '<', '>', '|', '#':
			result.WriteRune('\\')
			result.WriteRune(r)
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}
