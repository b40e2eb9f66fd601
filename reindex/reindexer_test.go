package reindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lateralhq/lateral/ai/mock"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/storage/badger"
)

func newTestRepos(t *testing.T) *badger.Repositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

// addEnrichedItem stores an item that has completed enrichment, with an
// item vector and nChunks chunk vectors all pointing along staleVector.
func addEnrichedItem(t *testing.T, repos *badger.Repositories, userID core.ID, url string, nChunks int, staleVector []float32) *core.Item {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	item := &core.Item{UserId: userID, URL: url}
	item.SetClientStatus(core.ClientStatusAdding, now)
	item.SetServerStatus(core.ServerStatusSaved, now)
	added, err := repos.Items.AddItem(ctx, item)
	require.NoError(t, err)

	added, err = repos.Items.UpdateItem(ctx, added.Id, userID, func(i *core.Item) error {
		i.Title = "An Article"
		i.ContentText = "The article body covers the topic at length."
		i.ContentTokenCount = 9
		i.Vector = staleVector
		i.SetServerStatus(core.ServerStatusEmbedded, now)
		i.SetClientStatus(core.ClientStatusQueued, now)
		return nil
	})
	require.NoError(t, err)

	chunks := make([]*core.Chunk, nChunks)
	for i := range chunks {
		chunks[i] = &core.Chunk{
			ItemId:   added.Id,
			Position: i,
			Text:     fmt.Sprintf("Chunk %d of the article body.", i),
			Vector:   staleVector,
		}
	}
	if nChunks > 0 {
		require.NoError(t, repos.Chunks.UpsertChunks(ctx, chunks...))
	}
	return added
}

func fixedEmbedder(vector []float32) *mock.MockEmbedder {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return append([]float32(nil), vector...), nil
	}
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = append([]float32(nil), vector...)
		}
		return vectors, nil
	}
	return embedder
}

func TestNewReindexerValidation(t *testing.T) {
	repos := newTestRepos(t)
	embedder := mock.NewMockEmbedder()

	_, err := NewReindexer(nil, repos.Chunks, embedder, nil, io.Discard)
	assert.ErrorIs(t, err, ErrItemRepositoryRequired)

	_, err = NewReindexer(repos.Items, nil, embedder, nil, io.Discard)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewReindexer(repos.Items, repos.Chunks, nil, nil, io.Discard)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	r, err := NewReindexer(repos.Items, repos.Chunks, embedder, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().BatchSize, r.config.BatchSize)
}

func TestReindexUpdatesVectors(t *testing.T) {
	repos := newTestRepos(t)
	stale := []float32{1.0, 0.0}
	item := addEnrichedItem(t, repos, 1, "https://example.com/one", 3, stale)

	var out strings.Builder
	r, err := NewReindexer(repos.Items, repos.Chunks, fixedEmbedder([]float32{0.0, 2.0}), nil, &out)
	require.NoError(t, err)

	updated, err := r.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	fresh, err := repos.Items.GetItem(context.Background(), item.Id, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.0, 1.0}, fresh.Vector, "item vector should be re-embedded and normalized")
	assert.Equal(t, core.ServerStatusEmbedded, fresh.ServerStatus)
	assert.Equal(t, core.ClientStatusQueued, fresh.ClientStatus)

	chunks, err := repos.Chunks.GetChunks(context.Background(), item.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.Equal(t, []float32{0.0, 1.0}, chunk.Vector)
	}

	assert.Contains(t, out.String(), "Re-indexing 1 items")
	assert.Contains(t, out.String(), "Re-index complete. Updated 1 of 1 items")
}

func TestReindexSkipsUnenrichedItems(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	now := time.Now()

	pending := &core.Item{UserId: 1, URL: "https://example.com/pending"}
	pending.SetClientStatus(core.ClientStatusAdding, now)
	pending.SetServerStatus(core.ServerStatusSaved, now)
	added, err := repos.Items.AddItem(ctx, pending)
	require.NoError(t, err)

	addEnrichedItem(t, repos, 1, "https://example.com/done", 1, []float32{1.0, 0.0})

	r, err := NewReindexer(repos.Items, repos.Chunks, fixedEmbedder([]float32{0.0, 1.0}), nil, io.Discard)
	require.NoError(t, err)

	updated, err := r.Run(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	fresh, err := repos.Items.GetItem(ctx, added.Id, 1)
	require.NoError(t, err)
	assert.Empty(t, fresh.Vector, "unenriched item should not be touched")
}

func TestReindexScopedToUser(t *testing.T) {
	repos := newTestRepos(t)
	stale := []float32{1.0, 0.0}
	addEnrichedItem(t, repos, 1, "https://example.com/mine", 1, stale)
	other := addEnrichedItem(t, repos, 2, "https://example.com/theirs", 1, stale)

	r, err := NewReindexer(repos.Items, repos.Chunks, fixedEmbedder([]float32{0.0, 1.0}), nil, io.Discard)
	require.NoError(t, err)

	updated, err := r.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	fresh, err := repos.Items.GetItem(context.Background(), other.Id, 2)
	require.NoError(t, err)
	assert.Equal(t, stale, fresh.Vector, "other user's items should be untouched")
}

func TestReindexRetriesTransientFailures(t *testing.T) {
	repos := newTestRepos(t)
	addEnrichedItem(t, repos, 1, "https://example.com/flaky", 2, []float32{1.0, 0.0})

	embedder := fixedEmbedder([]float32{0.0, 1.0})
	batchCalls := 0
	good := embedder.EmbedTextsFunc
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		batchCalls++
		if batchCalls <= 2 {
			return nil, errors.New("connection reset by peer")
		}
		return good(ctx, texts)
	}

	config := DefaultConfig()
	config.RetryDelay = time.Millisecond
	r, err := NewReindexer(repos.Items, repos.Chunks, embedder, config, io.Discard)
	require.NoError(t, err)

	updated, err := r.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 3, batchCalls)
}

func TestReindexStopsOnPersistentFailure(t *testing.T) {
	repos := newTestRepos(t)
	addEnrichedItem(t, repos, 1, "https://example.com/broken", 1, []float32{1.0, 0.0})

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("model not found")
	}

	r, err := NewReindexer(repos.Items, repos.Chunks, embedder, nil, io.Discard)
	require.NoError(t, err)

	updated, err := r.Run(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
	assert.Equal(t, 0, updated)
}

func TestReindexRespectsContext(t *testing.T) {
	repos := newTestRepos(t)
	addEnrichedItem(t, repos, 1, "https://example.com/cancelled", 1, []float32{1.0, 0.0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := NewReindexer(repos.Items, repos.Chunks, mock.NewMockEmbedder(), nil, io.Discard)
	require.NoError(t, err)

	_, err = r.Run(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReindexEmptyLibrary(t *testing.T) {
	repos := newTestRepos(t)

	var out strings.Builder
	r, err := NewReindexer(repos.Items, repos.Chunks, mock.NewMockEmbedder(), nil, &out)
	require.NoError(t, err)

	updated, err := r.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
	assert.Contains(t, out.String(), "No items found")
}

func TestItemIteratorBatches(t *testing.T) {
	repos := newTestRepos(t)
	for i := 0; i < 5; i++ {
		addEnrichedItem(t, repos, 1, fmt.Sprintf("https://example.com/page-%d", i), 0, []float32{1.0, 0.0})
	}

	it := NewItemIterator(repos.Items, 2)
	var sizes []int
	err := it.ForEach(context.Background(), 1, func(page []*core.Item) error {
		sizes = append(sizes, len(page))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestItemIteratorStopsOnError(t *testing.T) {
	repos := newTestRepos(t)
	for i := 0; i < 4; i++ {
		addEnrichedItem(t, repos, 1, fmt.Sprintf("https://example.com/err-%d", i), 0, []float32{1.0, 0.0})
	}

	sentinel := errors.New("stop here")
	it := NewItemIterator(repos.Items, 2)
	calls := 0
	err := it.ForEach(context.Background(), 1, func(page []*core.Item) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestProgressTracker(t *testing.T) {
	var out strings.Builder
	tracker := NewProgressTracker(&out, 10, 5)

	tracker.Increment(5)
	assert.Empty(t, out.String(), "increments before Start should be ignored")

	tracker.Start()
	tracker.Increment(3)
	assert.Empty(t, out.String(), "below the report interval nothing is written")

	tracker.Increment(2)
	assert.Contains(t, out.String(), "5/10")

	tracker.Finish()
	assert.Contains(t, out.String(), "10/10")
	assert.GreaterOrEqual(t, tracker.Elapsed(), time.Duration(0))
}
