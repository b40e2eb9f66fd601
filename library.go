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

package lateral

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lateralhq/lateral/ai"
	"github.com/lateralhq/lateral/ai/openai"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/extract"
	"github.com/lateralhq/lateral/pipeline"
	"github.com/lateralhq/lateral/search"
	"github.com/lateralhq/lateral/storage"
	"github.com/lateralhq/lateral/storage/badger"
)

// Library is the top-level handle over storage, extraction, enrichment
// and search. One Library owns one badger database.
type Library struct {
	backend   *badger.Backend
	items     storage.ItemRepository
	chunks    storage.ChunkRepository
	users     storage.UserRepository
	usage     storage.UsageLogRepository
	provider  ai.Provider
	extractor extract.Extractor
	pipeline  *pipeline.Pipeline
	registry  *pipeline.Registry
	logger    *slog.Logger
}

// LibraryOption configures a Library.
type LibraryOption func(*libraryOptions)

type libraryOptions struct {
	aiConfig     *ai.Config
	provider     ai.Provider
	extractor    extract.Extractor
	inMemory     bool
	pipelineOpts []pipeline.Option
	logger       *slog.Logger
}

// WithAIConfig sets the AI endpoint configuration used when no provider
// is injected.
func WithAIConfig(config *ai.Config) LibraryOption {
	return func(o *libraryOptions) {
		o.aiConfig = config
	}
}

// WithProvider injects an AI provider, bypassing the openai default.
func WithProvider(provider ai.Provider) LibraryOption {
	return func(o *libraryOptions) {
		o.provider = provider
	}
}

// WithExtractor injects a content extractor, bypassing the web default.
func WithExtractor(extractor extract.Extractor) LibraryOption {
	return func(o *libraryOptions) {
		o.extractor = extractor
	}
}

// WithInMemory opens the backend in memory, for tests and experiments.
func WithInMemory() LibraryOption {
	return func(o *libraryOptions) {
		o.inMemory = true
	}
}

// WithPipelineOptions forwards options to the enrichment pipeline.
func WithPipelineOptions(opts ...pipeline.Option) LibraryOption {
	return func(o *libraryOptions) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

// WithLibraryLogger sets a custom logger.
// Default is slog.Default().
func WithLibraryLogger(logger *slog.Logger) LibraryOption {
	return func(o *libraryOptions) {
		o.logger = logger
	}
}

// Open opens (creating if needed) a library at filePath.
func Open(filePath string, opts ...LibraryOption) (*Library, error) {
	options := &libraryOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	items, err := badger.NewItemRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	chunks, err := badger.NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	users, err := badger.NewUserRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	usage, err := badger.NewUsageLogRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	extractor := options.extractor
	if extractor == nil {
		extractor = extract.NewWebExtractor()
	}

	registry := pipeline.NewRegistry()
	pipelineOpts := append([]pipeline.Option{
		pipeline.WithRegistry(registry),
		pipeline.WithUsageLogs(usage),
		pipeline.WithLogger(options.logger.With("component", "pipeline")),
	}, options.pipelineOpts...)

	pipe, err := pipeline.NewPipeline(items, chunks, extractor, provider, pipelineOpts...)
	if err != nil {
		provider.Close()
		backend.Close()
		return nil, err
	}

	return &Library{
		backend:   backend,
		items:     items,
		chunks:    chunks,
		users:     users,
		usage:     usage,
		provider:  provider,
		extractor: extractor,
		pipeline:  pipe,
		registry:  registry,
		logger:    options.logger,
	}, nil
}

// Close stops in-flight enrichment runs and releases all resources.
func (l *Library) Close() error {
	l.pipeline.Release()

	if err := l.provider.Close(); err != nil {
		l.logger.Error("error closing AI provider", "err", err)
	}
	if err := l.backend.Close(); err != nil {
		l.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// AddItem saves a URL for the user and schedules its enrichment run.
// The returned item is in the adding state; the background run advances
// it to queued, or to error when a stage fails.
func (l *Library) AddItem(ctx context.Context, userID core.ID, rawURL string) (*core.Item, error) {
	prepared, err := extract.PrepareURL(rawURL)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &core.Item{
		UserId: userID,
		URL:    prepared,
	}
	item.SetClientStatus(core.ClientStatusAdding, now)
	item.SetServerStatus(core.ServerStatusSaved, now)

	added, err := l.items.AddItem(ctx, item)
	if err != nil {
		return nil, err
	}

	if err := l.pipeline.Submit(added); err != nil {
		l.logger.Error("failed to schedule enrichment", "item_id", added.Id, "err", err)
		return nil, err
	}
	return added, nil
}

// GetItem retrieves one of the user's items.
func (l *Library) GetItem(ctx context.Context, id, userID core.ID) (*core.Item, error) {
	return l.items.GetItem(ctx, id, userID)
}

// GetItems lists the user's items newest first, honoring the filter.
func (l *Library) GetItems(ctx context.Context, userID core.ID, filter storage.ItemFilter) ([]*core.Item, error) {
	return l.items.ListItems(ctx, userID, filter)
}

// UpdateItem applies a mutation to one of the user's items.
func (l *Library) UpdateItem(ctx context.Context, id, userID core.ID, apply func(*core.Item) error) (*core.Item, error) {
	return l.items.UpdateItem(ctx, id, userID, apply)
}

// DeleteItems removes the user's items and their chunks. A running
// enrichment for an item is cancelled and waited for first, so no
// pipeline write can land after the delete. Missing items are reported
// but the remaining deletes still run.
func (l *Library) DeleteItems(ctx context.Context, userID core.ID, ids ...core.ID) error {
	var errs []error
	for _, id := range ids {
		l.registry.CancelAndWait(id)
		if err := l.items.DeleteItem(ctx, id, userID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Search finds the user's items by query.
func (l *Library) Search(ctx context.Context, userID core.ID, req search.Request) ([]*core.SearchResult, error) {
	searcher, err := l.NewSearcher()
	if err != nil {
		return nil, err
	}
	return searcher.Search(ctx, userID, req)
}

// AddUser creates a user account.
func (l *Library) AddUser(ctx context.Context, username, password string) (*core.User, error) {
	return l.users.AddUser(ctx, username, password)
}

// Authenticate verifies a username/password pair.
func (l *Library) Authenticate(ctx context.Context, username, password string) (*core.User, error) {
	return l.users.Authenticate(ctx, username, password)
}

// UsageLogs lists the user's model usage entries, newest first.
func (l *Library) UsageLogs(ctx context.Context, userID core.ID, limit int) ([]*core.UsageLog, error) {
	return l.usage.ListUsageLogs(ctx, userID, limit)
}

// ItemRepository exposes the item store.
func (l *Library) ItemRepository() storage.ItemRepository {
	return l.items
}

// ChunkRepository exposes the chunk store.
func (l *Library) ChunkRepository() storage.ChunkRepository {
	return l.chunks
}

// UserRepository exposes the user store.
func (l *Library) UserRepository() storage.UserRepository {
	return l.users
}

// UsageLogRepository exposes the usage accounting store.
func (l *Library) UsageLogRepository() storage.UsageLogRepository {
	return l.usage
}

// Pipeline exposes the enrichment pipeline.
func (l *Library) Pipeline() *pipeline.Pipeline {
	return l.pipeline
}

// Provider exposes the AI provider.
func (l *Library) Provider() ai.Provider {
	return l.provider
}

// NewSearcher creates a searcher over this library's stores.
func (l *Library) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(l.items, l.chunks, l.provider, opts...)
}
