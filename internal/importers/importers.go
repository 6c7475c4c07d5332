// Package importers registers the built-in importers with the core registry.
// Import it for its side effects.
package importers

import (
	"strings"
	"unicode"
)

// NormalizeEmail lowercases an address and drops a mailto: prefix.
func NormalizeEmail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 7 && strings.EqualFold(s[:7], "mailto:") {
		s = s[7:]
	}
	return strings.ToLower(s)
}

// NormalizePhone keeps digits and a leading plus sign. Extensions
// ("x123", "ext. 123") are kept after a single space.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	main, ext := s, ""
	lower := strings.ToLower(s)
	for _, sep := range []string{"ext.", "ext", "x"} {
		if i := strings.LastIndex(lower, sep); i > 0 {
			main, ext = s[:i], digitsOnly(s[i+len(sep):])
			break
		}
	}

	var b strings.Builder
	for i, r := range strings.TrimSpace(main) {
		if unicode.IsDigit(r) || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	if ext != "" {
		b.WriteString(" x" + ext)
	}
	return b.String()
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// NormalizeCode uppercases an identifier and collapses inner whitespace to dashes.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), "-"))
}

// NormalizeKeyword lowercases and trims enum-like values.
func NormalizeKeyword(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
