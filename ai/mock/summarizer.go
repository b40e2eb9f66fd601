package mock

import (
	"context"
	"strings"

	"github.com/lateralhq/lateral/ai"
)

// MockSummarizer is a test double for ai.Summarizer.
// It allows custom behavior injection via function fields.
type MockSummarizer struct {
	// SummarizeFunc is called by Summarize if set.
	// If nil, uses default behavior built from the document text.
	SummarizeFunc func(ctx context.Context, doc *ai.Document) (*ai.Summary, error)

	callCount int
}

// NewMockSummarizer creates a mock summarizer with default behavior.
// Note: Returns concrete type to allow test assertions via GetMockSummarizer().
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

// Summarize produces a deterministic summary from the document.
// Default behavior: uses the title and the first words of the content.
func (m *MockSummarizer) Summarize(ctx context.Context, doc *ai.Document) (*ai.Summary, error) {
	m.callCount++

	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, doc)
	}

	words := strings.Fields(doc.Markdown)
	if len(words) > 12 {
		words = words[:12]
	}
	text := strings.Join(words, " ")
	if doc.Title != "" {
		text = doc.Title + ": " + text
	}

	return &ai.Summary{
		Text:        text,
		ExpiryScore: 0.5,
	}, nil
}

// CallCount returns the number of times Summarize was called.
func (m *MockSummarizer) CallCount() int {
	return m.callCount
}

// Reset clears the call count and custom functions.
func (m *MockSummarizer) Reset() {
	m.callCount = 0
	m.SummarizeFunc = nil
}
