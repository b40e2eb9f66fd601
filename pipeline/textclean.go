package pipeline

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	spaceRunPattern    = regexp.MustCompile(`[ \t]+`)
	newlineTrimPattern = regexp.MustCompile(`\s*\n\s*`)
	blankRunPattern    = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes extracted text before chunking and embedding:
// HTML entities are decoded, unicode is NFC-normalized, non-breaking
// spaces become plain spaces, space runs collapse to one space and
// newline runs to one newline.
func CleanText(s string) string {
	s = html.UnescapeString(s)
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, " ", " ")
	s = spaceRunPattern.ReplaceAllString(s, " ")
	s = newlineTrimPattern.ReplaceAllString(s, "\n")
	s = blankRunPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
