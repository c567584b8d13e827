package textutil

import (
	"strings"
	"unicode"
)

// SafeFileName reduces a title to characters that are safe in filenames.
// Letters, digits, spaces, hyphens, and underscores pass through; everything
// else becomes an underscore. The result is trimmed, and a fallback is
// returned when nothing survives.
func SafeFileName(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" {
		return "episode"
	}
	return cleaned
}
