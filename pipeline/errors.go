package pipeline

import "errors"

var (
	// ErrItemRepositoryRequired is returned when an item repository is not provided.
	ErrItemRepositoryRequired = errors.New("item repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrExtractorRequired is returned when an extractor is not provided.
	ErrExtractorRequired = errors.New("extractor required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrInvalidMaxAttempts is returned when a retry budget is not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrEmptyContent indicates an item reached the indexing stage with no
	// extracted text to embed.
	ErrEmptyContent = errors.New("no content to index")

	// ErrNoChunks indicates chunking produced nothing to embed.
	ErrNoChunks = errors.New("content produced no chunks")

	// ErrEmbeddingMismatch indicates the embedder returned a different
	// number of vectors than texts submitted.
	ErrEmbeddingMismatch = errors.New("embedding count mismatch")
)
