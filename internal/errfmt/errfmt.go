// Package errfmt provides shared error-content truncation for the CLI
// backend parsers, so a runaway stream-json error payload can't blow up
// canonical logging or a client-visible error message.
package errfmt

import "unicode/utf8"

// MaxLen caps error content to prevent unbounded propagation.
const MaxLen = 4096

// Truncate caps s at MaxLen bytes, backtracking to a valid UTF-8
// boundary rather than splitting a multi-byte rune.
func Truncate(s string) string {
	if len(s) <= MaxLen {
		return s
	}
	end := MaxLen
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}
