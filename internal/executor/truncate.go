package executor

import (
	"regexp"
	"unicode/utf8"
)

const (
	MaxResponseBytes = 4000
	TruncationNotice = "\n\n... (response truncated)"
)

// Truncate cuts s to at most max bytes without splitting a rune and appends
// TruncationNotice. Strings already within max are returned unchanged.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return cut(s, max) + TruncationNotice
}

// cut returns the longest prefix of s that fits in max bytes and ends on a
// rune boundary.
func cut(s string, max int) string {
	if len(s) <= max {
		return s
	}
	end := max
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}

var sessionTokenRe = regexp.MustCompile(`(?i)session[:\s]+([a-f0-9-]+)`)

// captureToken scrapes the agent's continuation token from its diagnostic
// output. Only stderr is scanned: the reply itself is free text. The agent
// prints no structured marker, so this breaks silently if its wording
// changes.
func captureToken(stderr string) string {
	if m := sessionTokenRe.FindStringSubmatch(stderr); m != nil {
		return m[1]
	}
	return ""
}
