// Copyright 2025 Lateral HQ
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/lateralhq/lateral/ai"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/extract"
	"github.com/lateralhq/lateral/storage"
	"github.com/panjf2000/ants/v2"
)

const (
	// EmbedBatchSize is how many chunks one embedding request carries.
	EmbedBatchSize = 16

	// maxEmbedTokens is the provider's context limit for one embedding
	// request; safetyMargin guards against tokenizer undercount.
	maxEmbedTokens = 8192
	safetyMargin   = 256
)

// tokenLimitSignals are substrings of provider errors that mean the
// input was over the token limit despite the pre-check. These trigger
// the pooling fallback instead of failing the run.
var tokenLimitSignals = []string{
	"exceeding max",
	"too many tokens",
	"max tokens",
	"invalid_request_prompt",
}

// Pipeline runs the enrichment stages for items in the background.
type Pipeline struct {
	items     storage.ItemRepository
	chunks    storage.ChunkRepository
	usage     storage.UsageLogRepository
	extractor extract.Extractor
	provider  ai.Provider
	writer    *ChunkWriter
	registry  *Registry
	pool      *ants.Pool
	tokens    TokenCounter

	wordsPerChunk int
	overlapWords  int
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent enrichment runs.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithRegistry sets the task registry the pipeline registers runs in.
// Sharing a registry with the caller lets deletion code cancel and wait
// for runs the pipeline started.
func WithRegistry(registry *Registry) Option {
	return func(p *Pipeline) error {
		if registry == nil {
			registry = NewRegistry()
		}
		p.registry = registry
		return nil
	}
}

// WithChunkWriter replaces the default chunk writer.
func WithChunkWriter(writer *ChunkWriter) Option {
	return func(p *Pipeline) error {
		if writer == nil {
			return ErrChunkRepositoryRequired
		}
		p.writer = writer
		return nil
	}
}

// WithTokenCounter replaces the default token counter.
func WithTokenCounter(counter TokenCounter) Option {
	return func(p *Pipeline) error {
		if counter == nil {
			counter = ApproximateTokenCounter
		}
		p.tokens = counter
		return nil
	}
}

// WithUsageLogs enables usage accounting for model calls.
func WithUsageLogs(usage storage.UsageLogRepository) Option {
	return func(p *Pipeline) error {
		p.usage = usage
		return nil
	}
}

// WithChunking overrides the chunk word budget and overlap.
func WithChunking(wordsPerChunk, overlapWords int) Option {
	return func(p *Pipeline) error {
		if wordsPerChunk < 1 {
			wordsPerChunk = DefaultWordsPerChunk
		}
		if overlapWords < 0 || overlapWords >= wordsPerChunk {
			overlapWords = DefaultOverlapWords
		}
		p.wordsPerChunk = wordsPerChunk
		p.overlapWords = overlapWords
		return nil
	}
}

// NewPipeline creates an enrichment pipeline.
func NewPipeline(
	items storage.ItemRepository,
	chunks storage.ChunkRepository,
	extractor extract.Extractor,
	provider ai.Provider,
	opts ...Option,
) (*Pipeline, error) {
	if items == nil {
		return nil, ErrItemRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	writer, err := NewChunkWriter(chunks)
	if err != nil {
		pool.Release()
		return nil, err
	}

	p := &Pipeline{
		items:         items,
		chunks:        chunks,
		extractor:     extractor,
		provider:      provider,
		writer:        writer,
		registry:      NewRegistry(),
		pool:          pool,
		wordsPerChunk: DefaultWordsPerChunk,
		overlapWords:  DefaultOverlapWords,
		logger:        slog.Default().With("component", "pipeline"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if p.tokens == nil {
		counter, err := NewTiktokenCounter()
		if err != nil {
			p.logger.Warn("token encoding unavailable, using approximate counts", "err", err)
			counter = ApproximateTokenCounter
		}
		p.tokens = counter
	}

	return p, nil
}

// Registry returns the registry the pipeline registers runs in.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// Submit schedules the enrichment run for a freshly added item. The run
// executes on the worker pool with its own lifetime; cancelling the
// caller's context does not cancel the run, only Registry.CancelAndWait
// does.
func (p *Pipeline) Submit(item *core.Item) error {
	runCtx, cancel := context.WithCancel(context.Background())
	finish := p.registry.track(item.Id, cancel)

	id, userID, url := item.Id, item.UserId, item.URL
	err := p.pool.Submit(func() {
		defer finish()
		p.run(runCtx, id, userID, url)
	})
	if err != nil {
		cancel()
		finish()
		return err
	}
	return nil
}

// Release cancels in-flight runs, waits for them to stop, and releases
// the worker pool. The pipeline should not be used after Release.
func (p *Pipeline) Release() {
	if p.registry != nil {
		p.registry.CancelAndWaitAll()
	}
	if p.pool != nil {
		p.pool.Release()
	}
}

// run executes the enrichment stages for one item. It stops silently
// when the item disappears mid-run (a deletion) and marks the item's
// client status as error when a stage fails.
func (p *Pipeline) run(ctx context.Context, id, userID core.ID, url string) {
	logger := p.logger.With("item_id", id, "user_id", userID)

	// Stage 1: extraction
	content, err := p.extractor.Extract(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.markError(ctx, id, userID, "extraction failed", err)
		return
	}

	if !p.alive(ctx, id, userID) {
		return
	}

	now := time.Now().UTC()
	item, err := p.items.UpdateItem(ctx, id, userID, func(i *core.Item) error {
		i.CanonicalURL = content.CanonicalURL
		i.Title = content.Title
		i.SourceSite = content.SourceSite
		i.PublishedAt = content.PublishedAt
		i.FaviconURL = content.FaviconURL
		i.ContentMarkdown = content.Markdown
		i.ContentText = content.Text
		i.SetServerStatus(core.ServerStatusExtracted, now)
		return nil
	})
	if err != nil {
		p.markError(ctx, id, userID, "failed to persist extraction updates", err)
		return
	}
	logger.Debug("extraction stage complete", "title", content.Title)

	if !p.alive(ctx, id, userID) {
		return
	}

	// Stage 2: summary
	doc := &ai.Document{
		Title:       item.Title,
		SourceSite:  item.SourceSite,
		PublishedAt: item.PublishedAt,
		URL:         item.URL,
		Markdown:    item.ContentMarkdown,
	}
	if doc.URL == "" {
		doc.URL = url
	}
	if item.CanonicalURL != "" {
		doc.URL = item.CanonicalURL
	}

	summary, err := p.provider.Summarizer().Summarize(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.markError(ctx, id, userID, "summary generation failed", err)
		return
	}
	p.logUsage(ctx, userID, id, "completion.item_summary", p.tokens(doc.Markdown)+p.tokens(summary.Text))

	now = time.Now().UTC()
	item, err = p.items.UpdateItem(ctx, id, userID, func(i *core.Item) error {
		i.Summary = summary.Text
		i.ExpiryScore = summary.ExpiryScore
		i.SetServerStatus(core.ServerStatusSummarised, now)
		return nil
	})
	if err != nil {
		p.markError(ctx, id, userID, "failed to persist summary updates", err)
		return
	}
	logger.Debug("summary stage complete", "expiry_score", summary.ExpiryScore)

	if !p.alive(ctx, id, userID) {
		return
	}

	// Stage 3: indexing
	if err := p.index(ctx, item); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.markError(ctx, id, userID, "embedding failed", err)
		return
	}
	logger.Info("item enriched")
}

// index chunks, embeds and persists the item's content. The item's
// vector and queued client status land in one storage mutation so
// clients never observe a queued item without its embedding.
func (p *Pipeline) index(ctx context.Context, item *core.Item) error {
	source := item.ContentText
	if strings.TrimSpace(source) == "" {
		source = item.ContentMarkdown
	}
	if strings.TrimSpace(source) == "" {
		return ErrEmptyContent
	}

	cleaned := CleanText(source)
	texts := chunkText(cleaned, p.wordsPerChunk, p.overlapWords)
	if len(texts) == 0 {
		return ErrNoChunks
	}

	embedder := p.provider.Embedder()

	// Embed chunks in bounded batches
	vectors := make([][]float32, 0, len(texts))
	tokenCounts := make([]int, 0, len(texts))
	for start := 0; start < len(texts); start += EmbedBatchSize {
		end := start + EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		batchTokens := 0
		for _, text := range batch {
			count := p.tokens(text)
			tokenCounts = append(tokenCounts, count)
			batchTokens += count
		}

		batchVectors, err := embedder.EmbedTexts(ctx, batch)
		if err != nil {
			return err
		}
		if len(batchVectors) != len(batch) {
			return ErrEmbeddingMismatch
		}
		vectors = append(vectors, batchVectors...)
		p.logUsage(ctx, item.UserId, item.Id, "embedding.item_chunk_batch", batchTokens)
	}

	// Whole-item embedding when the text fits the provider's limit,
	// otherwise pool the chunk vectors
	var itemVector []float32
	contentTokens := p.tokens(cleaned)
	if contentTokens <= maxEmbedTokens-safetyMargin {
		vector, err := embedder.EmbedText(ctx, cleaned)
		switch {
		case err == nil:
			itemVector = vector
			p.logUsage(ctx, item.UserId, item.Id, "embedding.full_item", contentTokens)
		case isTokenLimitError(err):
			// Pre-check undercounted; fall back to pooling
			itemVector = nil
		default:
			return err
		}
	}

	if itemVector == nil {
		effective := effectiveTokenCounts(texts, tokenCounts, p.tokens)
		total := 0
		for _, count := range effective {
			total += count
		}
		var err error
		if total > 0 {
			itemVector, err = weightedMeanPool(vectors, effective)
		} else {
			itemVector, err = meanPool(vectors)
		}
		if err != nil {
			return err
		}
	}

	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{
			ItemId:     item.Id,
			Position:   i,
			Text:       text,
			TokenCount: tokenCounts[i],
			Vector:     NormalizeVector(vectors[i]),
		}
	}

	now := time.Now().UTC()
	normalized := NormalizeVector(itemVector)
	_, err := p.items.UpdateItem(ctx, item.Id, item.UserId, func(i *core.Item) error {
		i.ContentText = cleaned
		i.ContentTokenCount = contentTokens
		i.Vector = normalized
		i.SetServerStatus(core.ServerStatusEmbedded, now)
		i.SetClientStatus(core.ClientStatusQueued, now)
		return nil
	})
	if err != nil {
		return err
	}

	return p.writer.Write(ctx, item.Id, chunks)
}

// alive reports whether the item still exists. Any failure to check is
// treated as gone, stopping the run quietly.
func (p *Pipeline) alive(ctx context.Context, id, userID core.ID) bool {
	exists, err := p.items.ItemExists(ctx, id, userID)
	return err == nil && exists
}

// markError flags the item's client status as error. Best effort: a
// failure to mark is logged and swallowed, and nothing is marked when
// the run was cancelled.
func (p *Pipeline) markError(ctx context.Context, id, userID core.ID, reason string, cause error) {
	logger := p.logger.With("item_id", id, "user_id", userID)
	logger.Error(reason, "err", cause)

	if ctx.Err() != nil {
		return
	}

	now := time.Now().UTC()
	_, err := p.items.UpdateItem(ctx, id, userID, func(i *core.Item) error {
		i.SetClientStatus(core.ClientStatusError, now)
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		// The item was deleted while the run was failing. Expected, so
		// the secondary failure only gets a debug line.
		logger.Debug("item gone before error status could be set")
	default:
		logger.Error("failed to mark item as error", "err", err)
	}
}

// logUsage records model usage. Best effort: accounting never fails a
// run.
func (p *Pipeline) logUsage(ctx context.Context, userID, itemID core.ID, operation string, tokens int) {
	if p.usage == nil {
		return
	}
	_, err := p.usage.AddUsageLog(ctx, &core.UsageLog{
		UserId:    userID,
		ItemId:    itemID,
		Operation: operation,
		Tokens:    tokens,
	})
	if err != nil {
		p.logger.Warn("failed to record usage", "operation", operation, "err", err)
	}
}

// isTokenLimitError reports whether a provider error indicates the
// input exceeded the model's token limit.
func isTokenLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, signal := range tokenLimitSignals {
		if strings.Contains(msg, signal) {
			return true
		}
	}
	return false
}
