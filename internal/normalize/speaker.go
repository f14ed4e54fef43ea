// Package normalize cleans up the OCR-derived values that end up in index fields:
// speaker names, session titles and date attribute values.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// PresidentLabel is the canonical form of the presiding officer's speaker label.
const PresidentLabel = "Le Président"

// presidentVariants lists the OCR renderings of PresidentLabel seen in the volumes,
// as they look after the other speaker transformations have run.
var presidentVariants = map[string]bool{
	"Le Président":  true,
	"Le President":  true,
	"Le Présidant":  true,
	"Le Présideut":  true,
	"Le Présidenl":  true,
	"Le Présidenf":  true,
	"Le Présidcnt":  true,
	"Le Prèsident":  true,
	"Le Pésident":   true,
	"Le Préaident":  true,
	"Le Préside nt": true,
	"Le Prési-dent": true,
	"Le Pr ésident": true,
	"Le-Président":  true,
	"Lé Président":  true,
	"Le Présidènt":  true,
	"Le Preésident": true,
	"Président":     true,
	"President":     true,
}

var (
	titleAbbrev  = regexp.MustCompile(`(?i)^[\[(]?mm?(?:\.\s*|[\])]\s*|\s+|$)`)
	hyphenSpaces = regexp.MustCompile(`\s*-\s*`)
	elisionSpace = regexp.MustCompile(`(?i)\b(d['’])\s+`)
)

// Speaker normalizes the raw text of a <speaker> element. It returns "" when nothing
// usable remains.
func Speaker(raw string) string {
	s := trimEdges(raw)
	// Stacked abbreviations ("M M.", "M. [M.]") are stripped until none is left.
	for {
		t := trimEdges(titleAbbrev.ReplaceAllString(s, ""))
		if t == s {
			break
		}
		s = t
	}
	s = hyphenSpaces.ReplaceAllString(s, "-")
	s = elisionSpace.ReplaceAllString(s, "$1")
	s = trimEdges(s)
	s = capitalize(s)

	// Must run last: variants are listed in their fully transformed form.
	if presidentVariants[s] {
		return PresidentLabel
	}
	return s
}

// PresidentVariants returns the OCR variants that collapse to PresidentLabel.
func PresidentVariants() []string {
	out := make([]string, 0, len(presidentVariants))
	for v := range presidentVariants {
		out = append(out, v)
	}
	return out
}

func trimEdges(s string) string {
	return strings.TrimFunc(s, isEdge)
}

func isEdge(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
