package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	lower = cases.Lower(language.Und)
	fold  = cases.Fold()
)

// SanitizeToken converts a string to a lowercase filesystem-safe token.
// Letters (any script) and digits are kept, hyphens and underscores pass
// through, everything else becomes an underscore. Runs of underscores are
// collapsed. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range lower.String(value) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
			}
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}

// NormalizeLabel lower-cases value, trims it and collapses internal runs of
// whitespace to a single space.
func NormalizeLabel(value string) string {
	return strings.Join(strings.Fields(lower.String(value)), " ")
}

// Fold returns the case-folded form of value for case-insensitive matching.
func Fold(value string) string {
	return fold.String(value)
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
// An empty needle matches everything.
func ContainsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(fold.String(haystack), fold.String(needle))
}

// HasControl reports whether value contains any control character.
func HasControl(value string) bool {
	return strings.IndexFunc(value, unicode.IsControl) >= 0
}
