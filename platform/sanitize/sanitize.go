// Package sanitize provides text sanitization for user-provided chat input.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

const maxMessageRunes = 4000

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = html.UnescapeString(result)
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Message cleans a chat message: no tags, no control characters,
// collapsed whitespace, bounded length.
func Message(s string) string {
	result := StripHTML(s)
	result = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' {
			return -1
		}
		return r
	}, result)
	result = whitespaceRegex.ReplaceAllStringFunc(result, func(ws string) string {
		if strings.Contains(ws, "\n") {
			return "\n"
		}
		return " "
	})
	if runes := []rune(result); len(runes) > maxMessageRunes {
		result = string(runes[:maxMessageRunes])
	}
	return strings.TrimSpace(result)
}

// Name cleans a lead display name to a single trimmed line.
func Name(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(StripHTML(s), " "))
}
