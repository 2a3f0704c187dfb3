package pdf

import (
	"strings"
	"unicode"
)

// Clean drops non-printable characters, collapses runs of spaces and tabs to
// one space, and collapses runs of blank lines to a single paragraph break.
func Clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	newlines := 0
	space := false
	for _, r := range s {
		switch {
		case r == '\n' || r == '\f' || r == '\v':
			newlines++
			space = false
			continue
		case r == '\r':
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		case r == unicode.ReplacementChar || !unicode.IsPrint(r):
			continue
		}

		if b.Len() > 0 {
			switch {
			case newlines >= 2:
				b.WriteString("\n\n")
			case newlines == 1:
				b.WriteByte('\n')
			case space:
				b.WriteByte(' ')
			}
		}
		newlines = 0
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
