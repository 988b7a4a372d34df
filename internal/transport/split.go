package transport

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPartBytes is the largest reply part sent in one message.
const MaxPartBytes = 2000

// Split breaks text into parts of at most max bytes. A part ends at its last
// newline when that newline lies in the second half of the part, otherwise
// at the last rune boundary that fits. Leading whitespace of each following
// part is dropped.
func Split(text string, max int) []string {
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	var parts []string
	rest := text
	for len(rest) > max {
		end := max
		for end > 0 && !utf8.RuneStart(rest[end]) {
			end--
		}
		if end == 0 {
			// A single rune wider than max.
			_, size := utf8.DecodeRuneInString(rest)
			end = size
		}
		if nl := strings.LastIndexByte(rest[:end], '\n'); nl > 0 && nl >= end/2 {
			end = nl
		}
		parts = append(parts, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	if rest != "" {
		parts = append(parts, rest)
	}
	return parts
}
