package protocol

import "strings"

// Sanitize removes every newline from text so it always travels as one
// protocol line. All other characters are kept in order.
func Sanitize(text string) string {
	if !strings.Contains(text, "\n") {
		return text
	}
	return strings.ReplaceAll(text, "\n", "")
}
