package pipeline

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many model tokens a text consumes.
type TokenCounter func(text string) int

// NewTiktokenCounter returns a TokenCounter backed by the cl100k_base
// encoding. Loading the encoding can fail (it is fetched on first use),
// in which case callers should fall back to ApproximateTokenCounter.
func NewTiktokenCounter() (TokenCounter, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return func(text string) int {
		return len(encoding.Encode(text, nil, nil))
	}, nil
}

// ApproximateTokenCounter estimates tokens as words plus a third, which
// tracks real tokenizers closely enough for budget checks on prose.
func ApproximateTokenCounter(text string) int {
	words := len(strings.Fields(text))
	return words + words/3
}
