package search

import "strings"

// stopWords are common English words carrying no search signal; they are
// dropped from both queries and documents before matching.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {},
	"was": {}, "to": {}, "of": {}, "and": {}, "in": {}, "that": {},
	"have": {}, "it": {}, "for": {}, "not": {}, "on": {}, "with": {},
	"as": {}, "you": {}, "do": {}, "at": {}, "this": {}, "but": {},
	"by": {}, "from": {},
}

// wordTrimCutset covers sentence punctuation plus the markdown leftovers
// (emphasis, code ticks, headings, quotes) that can survive in item
// content text after extraction.
const wordTrimCutset = ".,!?;:'\"-()[]{}*_`#>|~"

// tokenize lowercases text, strips surrounding punctuation from each word
// and drops stop words.
func tokenize(text string) []string {
	words := strings.Fields(text)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		token := strings.Trim(strings.ToLower(word), wordTrimCutset)
		if token == "" {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// queryMatcher matches documents containing every significant word of a
// query. Built once per search, so the query is tokenized a single time
// however many items and chunks get scanned.
type queryMatcher struct {
	words []string
}

func newQueryMatcher(query string) queryMatcher {
	return queryMatcher{words: tokenize(query)}
}

// empty reports whether the query had no significant words left after
// stop-word filtering.
func (m queryMatcher) empty() bool {
	return len(m.words) == 0
}

// matches reports whether every query word occurs in the document.
// An empty matcher matches nothing.
func (m queryMatcher) matches(document string) bool {
	if m.empty() {
		return false
	}

	seen := make(map[string]struct{})
	for _, token := range tokenize(document) {
		seen[token] = struct{}{}
	}
	for _, word := range m.words {
		if _, ok := seen[word]; !ok {
			return false
		}
	}
	return true
}
