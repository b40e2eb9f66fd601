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

package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lateralhq/lateral/ai"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/storage"
)

// Mode selects how candidates are matched against the query.
type Mode string

const (
	// ModeLexical requires every query word to appear in the candidate.
	ModeLexical Mode = "lexical"
	// ModeSemantic matches by embedding similarity.
	ModeSemantic Mode = "semantic"
)

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLexical, ModeSemantic:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Scope selects what the query is matched against.
type Scope string

const (
	// ScopeItems matches against whole items.
	ScopeItems Scope = "items"
	// ScopeChunks matches against chunks, ranked back up to items.
	ScopeChunks Scope = "chunks"
)

// ParseScope converts a string into a Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeItems, ScopeChunks:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
}

const (
	// DefaultLimit is used when a request doesn't cap its results.
	DefaultLimit = 10
	// MaxLimit is the hard cap on results per request.
	MaxLimit = 100

	// defaultMinSimilarity is a light pre-filter on semantic scores.
	defaultMinSimilarity = 0.35
	// defaultFetchMultiplier over-fetches semantic candidates so the
	// per-item ranking still fills the limit.
	defaultFetchMultiplier = 4
)

// Request describes one search.
type Request struct {
	Query string
	Mode  Mode
	Scope Scope
	Limit int
}

// normalized returns a copy with defaults applied and the limit clamped.
func (r Request) normalized() Request {
	if r.Mode == "" {
		r.Mode = ModeLexical
	}
	if r.Scope == "" {
		r.Scope = ScopeItems
	}
	if r.Limit <= 0 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	return r
}

// Searcher finds a user's items by lexical or semantic matching.
type Searcher struct {
	items           storage.ItemRepository
	chunks          storage.ChunkRepository
	embedder        ai.Embedder
	minSimilarity   float32
	fetchMultiplier int
	logger          *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinSimilarity sets the semantic score pre-filter.
func WithMinSimilarity(minSimilarity float32) Option {
	return func(s *Searcher) error {
		s.minSimilarity = minSimilarity
		return nil
	}
}

// WithFetchMultiplier sets how many times the limit is over-fetched for
// semantic candidates. Values below 1 are clamped to 1.
func WithFetchMultiplier(multiplier int) Option {
	return func(s *Searcher) error {
		if multiplier < 1 {
			multiplier = 1
		}
		s.fetchMultiplier = multiplier
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	items storage.ItemRepository,
	chunks storage.ChunkRepository,
	provider ai.Provider,
	opts ...Option,
) (*Searcher, error) {
	if items == nil {
		return nil, ErrItemRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		items:           items,
		chunks:          chunks,
		embedder:        provider.Embedder(),
		minSimilarity:   defaultMinSimilarity,
		fetchMultiplier: defaultFetchMultiplier,
		logger:          slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search runs a search for the user.
// Returns up to Limit results, ranked by relevance score.
func (s *Searcher) Search(ctx context.Context, userID core.ID, req Request) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, userID, req, nil)
}

// SearchWithMonitor runs a search with monitoring. The monitor receives
// callbacks at each stage of the search process.
func (s *Searcher) SearchWithMonitor(ctx context.Context, userID core.ID, req Request, monitor SearchMonitor) ([]*core.SearchResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	matcher := newQueryMatcher(req.Query)
	if matcher.empty() {
		return nil, ErrEmptyQuery
	}
	req = req.normalized()
	monitor.Start(req.Query, req.Mode, req.Scope)

	var results []*core.SearchResult
	var err error
	switch req.Mode {
	case ModeLexical:
		results, err = s.lexical(ctx, userID, req, matcher, monitor)
	case ModeSemantic:
		results, err = s.semantic(ctx, userID, req, matcher, monitor)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	if err != nil {
		return nil, err
	}

	monitor.Finish(results)
	return results, nil
}

// lexical matches every query word against item or chunk text.
func (s *Searcher) lexical(ctx context.Context, userID core.ID, req Request, matcher queryMatcher, monitor SearchMonitor) ([]*core.SearchResult, error) {
	var results []*core.SearchResult
	var err error
	switch req.Scope {
	case ScopeItems:
		results, err = s.lexicalItems(ctx, userID, matcher, req.Limit)
	case ScopeChunks:
		results, err = s.lexicalChunks(ctx, userID, matcher, req.Limit, monitor)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, req.Scope)
	}
	if err != nil {
		return nil, err
	}

	ids := make([]core.ID, 0, len(results))
	for _, result := range results {
		ids = append(ids, result.Item.Id)
	}
	monitor.AfterLexicalScan(ids)

	return results, nil
}

// lexicalItems scans the user's items newest first and keeps those
// containing every query word in title, summary or content.
func (s *Searcher) lexicalItems(ctx context.Context, userID core.ID, matcher queryMatcher, limit int) ([]*core.SearchResult, error) {
	items, err := s.items.ListItems(ctx, userID, storage.ItemFilter{})
	if err != nil {
		s.logger.Error("error listing items for lexical search", "err", err)
		return nil, err
	}

	results := make([]*core.SearchResult, 0, limit)
	for _, item := range items {
		haystack := item.Title + "\n" + item.Summary + "\n" + item.ContentText
		if !matcher.matches(haystack) {
			continue
		}
		results = append(results, &core.SearchResult{
			Item:  item,
			Score: 1.0,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// lexicalChunks matches chunk text and keeps the first matching chunk
// of each item as its preview.
func (s *Searcher) lexicalChunks(ctx context.Context, userID core.ID, matcher queryMatcher, limit int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	items, err := s.items.ListItems(ctx, userID, storage.ItemFilter{})
	if err != nil {
		s.logger.Error("error listing items for lexical search", "err", err)
		return nil, err
	}

	results := make([]*core.SearchResult, 0, limit)
	for _, item := range items {
		chunks, err := s.chunks.GetChunks(ctx, item.Id)
		if err != nil {
			s.logger.Warn("failed to load chunks", "item_id", item.Id, "err", err)
			continue
		}
		for _, chunk := range chunks {
			if !matcher.matches(chunk.Text) {
				continue
			}
			monitor.ChunkRankedHit(item.Id, chunk.Position)
			results = append(results, &core.SearchResult{
				Item:  item,
				Chunk: chunk,
				Score: 1.0,
			})
			break
		}
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// semantic embeds the query, matches stored vectors and tops up any
// remaining slots lexically.
func (s *Searcher) semantic(ctx context.Context, userID core.ID, req Request, matcher queryMatcher, monitor SearchMonitor) ([]*core.SearchResult, error) {
	embedding, err := s.embedder.EmbedText(ctx, req.Query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", req.Query, "err", err)
		return nil, err
	}

	fetchLimit := req.Limit * s.fetchMultiplier

	var results []*core.SearchResult
	switch req.Scope {
	case ScopeItems:
		results, err = s.items.FindSimilarItems(ctx, userID, embedding, s.minSimilarity, fetchLimit)
	case ScopeChunks:
		// Chunks are denser than items, fetch deeper before ranking
		var matches []*core.SearchResult
		matches, err = s.chunks.FindSimilarChunks(ctx, userID, embedding, s.minSimilarity, fetchLimit*3)
		if err == nil {
			results = rankItemsFromChunks(matches, fetchLimit, monitor)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, req.Scope)
	}
	if err != nil {
		s.logger.Error("error querying for similar records", "err", err)
		return nil, err
	}

	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	ids := make([]core.ID, 0, len(results))
	for _, result := range results {
		ids = append(ids, result.Item.Id)
	}
	monitor.AfterSemanticSearch(ids)

	// Lexical fallback for remaining slots
	if len(results) < req.Limit {
		topped, err := s.lexicalTopUp(ctx, userID, req, matcher, results, monitor)
		if err != nil {
			return nil, err
		}
		results = topped
	}

	return results, nil
}

// lexicalTopUp fills remaining result slots lexically, skipping items
// already matched semantically.
func (s *Searcher) lexicalTopUp(ctx context.Context, userID core.ID, req Request, matcher queryMatcher, results []*core.SearchResult, monitor SearchMonitor) ([]*core.SearchResult, error) {
	seen := make(map[core.ID]bool, len(results))
	for _, result := range results {
		seen[result.Item.Id] = true
	}

	var fallback []*core.SearchResult
	var err error
	if req.Scope == ScopeChunks {
		fallback, err = s.lexicalChunks(ctx, userID, matcher, req.Limit, monitor)
	} else {
		fallback, err = s.lexicalItems(ctx, userID, matcher, req.Limit)
	}
	if err != nil {
		return nil, err
	}

	added := 0
	for _, result := range fallback {
		if seen[result.Item.Id] {
			continue
		}
		seen[result.Item.Id] = true
		results = append(results, result)
		added++
		if len(results) >= req.Limit {
			break
		}
	}
	monitor.LexicalFallback(added)

	return results, nil
}

// rankItemsFromChunks keeps the best chunk per item. Matches arrive
// ordered by score, so the first chunk seen for an item is its best.
func rankItemsFromChunks(matches []*core.SearchResult, limit int, monitor SearchMonitor) []*core.SearchResult {
	seen := make(map[core.ID]bool)
	results := make([]*core.SearchResult, 0, limit)

	for _, match := range matches {
		if match.Item == nil || seen[match.Item.Id] {
			continue
		}
		seen[match.Item.Id] = true
		if match.Chunk != nil {
			monitor.ChunkRankedHit(match.Item.Id, match.Chunk.Position)
		}
		results = append(results, match)
		if len(results) >= limit {
			break
		}
	}
	return results
}
