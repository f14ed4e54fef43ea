package normalize

import (
	"strings"
	"unicode"
)

var titleOCR = strings.NewReplacer(
	"Seance", "Séance",
	"Séauce", "Séance",
)

// Title normalizes the text captured around a session's date into a display title.
func Title(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	s = strings.TrimFunc(s, isTitleEdge)
	s = strings.ReplaceAll(s, " , ", ", ")
	s = titleOCR.Replace(s)
	if enclosedInParens(s) {
		s = strings.TrimFunc(s[1:len(s)-1], isTitleEdge)
	}
	return s
}

// Heading trims a <head> element's text and strips its edge punctuation.
func Heading(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
}

// isTitleEdge keeps parentheses so an enclosing pair can be detected afterwards.
func isTitleEdge(r rune) bool {
	if r == '(' || r == ')' {
		return false
	}
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

// enclosedInParens reports whether the opening parenthesis at the start of s is
// closed by the one at its end.
func enclosedInParens(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}
