// Package reconcile brings spreadsheet exports of leads in line with the
// database. Rows are read, converted into strict candidates and compared with
// stored leads to produce a plan that an operator reviews before applying.
//
// Fuzzy name matches only ever propose a change; they are never applied
// without an explicit approval on the plan item.
package reconcile

import (
	"strings"

	"funnelcrm/normalize"
)

// prefixTolerance is how many leading characters two surnames must share.
const prefixTolerance = 4

// NormalizeName lowercases s, strips diacritics and punctuation and
// collapses whitespace.
func NormalizeName(s string) string {
	return normalize.Name(s)
}

// NamesSimilar reports whether a and b plausibly name the same person.
// The first rule that fires wins: exact normalized equality, containment of
// one name in the other, first and last tokens equal in either order, or
// equal first tokens with last tokens sharing a four-letter prefix.
func NamesSimilar(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	ta, tb := strings.Fields(na), strings.Fields(nb)
	if len(ta) < 2 || len(tb) < 2 {
		return false
	}
	firstA, lastA := ta[0], ta[len(ta)-1]
	firstB, lastB := tb[0], tb[len(tb)-1]

	if firstA == firstB && lastA == lastB {
		return true
	}
	if firstA == lastB && lastA == firstB {
		return true
	}
	return firstA == firstB && sharePrefix(lastA, lastB, prefixTolerance)
}

func sharePrefix(a, b string, n int) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < n || len(rb) < n {
		return false
	}
	return string(ra[:n]) == string(rb[:n])
}
