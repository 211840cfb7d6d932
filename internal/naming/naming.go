// Package naming turns free spreadsheet and Drive text into names that are
// safe to use as file names on every platform.
package naming

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// FallbackName is used when nothing usable survives sanitising.
const FallbackName = "fragment"

const maxNameBytes = 200

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// AsVideoName keeps the text before the first '/', strips unsafe characters,
// trims surrounding whitespace and trailing '.' and ',' and falls back to
// FallbackName. AsVideoName(AsVideoName(s)) == AsVideoName(s).
func AsVideoName(raw string) string {
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	s := stripUnsafe(raw)
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.' || r == ','
	})
	if s == "" {
		return FallbackName
	}
	return avoidReserved(s)
}

// SanitizeFilename makes a Drive title usable as a local file name while
// keeping its extension.
func SanitizeFilename(raw string) string {
	s := stripUnsafe(raw)
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.'
	})
	if s == "" {
		return FallbackName
	}
	return avoidReserved(s)
}

// CleanWhitespace trims each string and collapses inner whitespace runs to
// a single space.
func CleanWhitespace(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = strings.Join(strings.Fields(s), " ")
	}
	return out
}

// stripUnsafe drops unsafe runes and composes the remainder to NFC. The
// filter runs first: a mark left next to its base by a dropped rune must
// compose on this pass, not the next.
func stripUnsafe(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) || isForbiddenRune(r) || r == unicode.ReplacementChar {
			continue
		}
		b.WriteRune(r)
	}
	return truncate(norm.NFC.String(b.String()), maxNameBytes)
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i, r := range s {
		if i+utf8.RuneLen(r) > n {
			break
		}
		cut = i + utf8.RuneLen(r)
	}
	return norm.NFC.String(s[:cut])
}

func isForbiddenRune(r rune) bool {
	switch r {
	case '\\', '/', ':', '*', '?', '"', '<', '>', '|':
		return true
	default:
		return false
	}
}

func avoidReserved(s string) string {
	stem, rest := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		stem, rest = s[:i], s[i:]
	}
	if reservedNames[strings.ToUpper(stem)] {
		return stem + "_" + rest
	}
	return s
}
