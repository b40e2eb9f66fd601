package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// defaultVectorWidth matches the width of the vectors produced by the
// default embedding model in ai.DefaultConfig.
const defaultVectorWidth = 768

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, a deterministic vector is derived from the text.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, a deterministic vector is derived from each text.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	callCount int
}

// NewMockEmbedder creates a mock embedder with deterministic default behavior.
// Note: Returns concrete type to allow test assertions via GetMockEmbedder().
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// EmbedText derives a unit vector from the text, so equal texts always
// embed to equal vectors and similarity scores are stable across runs.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.callCount++

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	return vectorFromText(text), nil
}

// EmbedTexts derives one vector per input text, in input order.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount++

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = vectorFromText(text)
	}
	return vectors, nil
}

// CallCount returns the number of times either embed method was called.
func (m *MockEmbedder) CallCount() int {
	return m.callCount
}

// Reset clears the call count and custom functions.
func (m *MockEmbedder) Reset() {
	m.callCount = 0
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

// vectorFromText hashes the text into a seed and expands it into a unit
// vector. Components spread over [-1, 1) before normalization, so
// distinct texts rarely collide and scores cover the full cosine range.
func vectorFromText(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()

	vector := make([]float32, defaultVectorWidth)
	var sumSquares float64
	for i := range vector {
		// xorshift keeps the expansion cheap and repeatable
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		component := float64(int64(state%2000)-1000) / 1000.0
		vector[i] = float32(component)
		sumSquares += component * component
	}

	if sumSquares > 0 {
		scale := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= scale
		}
	}
	return vector
}
