package common

import (
	"regexp"
	"strings"
)

// ansiRegex matches ANSI escape sequences (colors, cursor movement, etc.)
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// pagerRegex matches pager prompts left in output when paging could not be disabled
var pagerRegex = regexp.MustCompile(`(?i)[ \t]*-+[ \t]*\(?more\b[^\n]*?-+\)?[ \t]*`)

// StripANSI removes ANSI escape codes from a string.
// Useful for parsing CLI output that may contain terminal formatting.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// NormalizeOutput strips ANSI codes, pager prompts, backspaces and carriage
// returns so callers can split device output on "\n".
func NormalizeOutput(s string) string {
	s = StripANSI(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\b", "")
	s = pagerRegex.ReplaceAllString(s, "")
	return s
}

// Lines splits output into trimmed, non-empty lines.
func Lines(s string) []string {
	raw := strings.Split(NormalizeOutput(s), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// HasField reports whether one of the whitespace separated fields of line
// equals value, optionally behind one of the given prefixes (e.g. "SN:").
func HasField(line, value string, prefixes ...string) bool {
	if value == "" {
		return false
	}
	for _, f := range strings.Fields(line) {
		if f == value {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(f, p) && f[len(p):] == value {
				return true
			}
		}
	}
	return false
}

// FirstMarker returns the first marker found in s, or "" if none.
func FirstMarker(s string, markers []string) string {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return m
		}
	}
	return ""
}
