// Package normalize holds the text folding shared by lead storage and import
// reconciliation: lowercase, no diacritics, no punctuation, single spaces.
package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Name folds a free-text person or course name.
// "  Àlvaro  D'Angelo-Rossi " -> "alvaro d angelo rossi"
func Name(s string) string {
	folded := stripDiacritics(s)

	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			space = false
		default:
			// punctuation and whitespace both act as separators
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Tokens splits a folded name into its words.
func Tokens(s string) []string {
	return strings.Fields(Name(s))
}

// Key builds the stable identity used to match a person enrolled on a course.
func Key(name string, courseID uint) string {
	var b strings.Builder
	b.WriteString(Name(name))
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(uint64(courseID), 10))
	return b.String()
}

// Header folds a spreadsheet column header into snake_case.
func Header(s string) string {
	return strings.ReplaceAll(Name(s), " ", "_")
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
