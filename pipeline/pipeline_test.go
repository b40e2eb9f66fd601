package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lateralhq/lateral/ai"
	"github.com/lateralhq/lateral/ai/mock"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/extract"
	"github.com/lateralhq/lateral/storage"
	"github.com/lateralhq/lateral/storage/badger"
)

// testExtractor implements extract.Extractor with canned content
type testExtractor struct {
	content *extract.Content
	err     error
	// blockUntilCancel makes Extract hang until the run is cancelled,
	// simulating a slow fetch
	blockUntilCancel bool
}

func (e *testExtractor) Extract(ctx context.Context, rawURL string) (*extract.Content, error) {
	if e.blockUntilCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	content := *e.content
	if content.URL == "" {
		content.URL = rawURL
	}
	return &content, nil
}

func articleText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "Sentence %d talks about reading things later in depth. ", i)
	}
	return strings.TrimSpace(b.String())
}

func testContent() *extract.Content {
	return &extract.Content{
		Title:      "A Long Read",
		SourceSite: "example.com",
		Markdown:   "# A Long Read\n\n" + articleText(30),
		Text:       articleText(30),
	}
}

func newTestPipeline(t *testing.T, extractor extract.Extractor, opts ...Option) (*Pipeline, *badger.Repositories) {
	t.Helper()

	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	base := []Option{
		WithTokenCounter(ApproximateTokenCounter),
		WithChunking(25, 5),
		WithPoolSize(2),
		WithUsageLogs(repos.Usage),
	}
	pipeline, err := NewPipeline(repos.Items, repos.Chunks, extractor, mock.NewMockProvider(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	return pipeline, repos
}

func addTestItem(t *testing.T, repos *badger.Repositories, userID core.ID, url string) *core.Item {
	t.Helper()

	now := time.Now().UTC()
	item := &core.Item{
		UserId: userID,
		URL:    url,
	}
	item.SetClientStatus(core.ClientStatusAdding, now)
	item.SetServerStatus(core.ServerStatusSaved, now)

	added, err := repos.Items.AddItem(context.Background(), item)
	require.NoError(t, err)
	return added
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestPipelineEnrichesItem(t *testing.T) {
	pipeline, repos := newTestPipeline(t, &testExtractor{content: testContent()})
	item := addTestItem(t, repos, core.ID(1), "https://example.com/article")

	require.NoError(t, pipeline.Submit(item))

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		current, err := repos.Items.GetItem(ctx, item.Id, item.UserId)
		return err == nil && current.ClientStatus == core.ClientStatusQueued
	})

	enriched, err := repos.Items.GetItem(ctx, item.Id, item.UserId)
	require.NoError(t, err)

	assert.Equal(t, "A Long Read", enriched.Title)
	assert.Equal(t, "example.com", enriched.SourceSite)
	assert.NotEmpty(t, enriched.Summary)
	assert.NotEmpty(t, enriched.ContentText)
	assert.Greater(t, enriched.ContentTokenCount, 0)
	assert.Equal(t, core.ServerStatusEmbedded, enriched.ServerStatus)
	assert.NotEmpty(t, enriched.Vector)
	assert.InDelta(t, 1.0, vectorLength(enriched.Vector), 1e-4, "item vector should be normalized")

	chunks, err := repos.Chunks.GetChunks(ctx, item.Id)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Position)
		assert.NotEmpty(t, chunk.Text)
		assert.Greater(t, chunk.TokenCount, 0)
		assert.InDelta(t, 1.0, vectorLength(chunk.Vector), 1e-4)
	}
}

func TestPipelineQueuedImpliesVector(t *testing.T) {
	pipeline, repos := newTestPipeline(t, &testExtractor{content: testContent()})
	item := addTestItem(t, repos, core.ID(1), "https://example.com/atomic")

	require.NoError(t, pipeline.Submit(item))

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		current, err := repos.Items.GetItem(ctx, item.Id, item.UserId)
		if err != nil {
			return false
		}
		// The queued status and the vector land in one mutation, so a
		// queued item without a vector must never be observable
		if current.ClientStatus == core.ClientStatusQueued {
			assert.NotEmpty(t, current.Vector)
			assert.Equal(t, core.ServerStatusEmbedded, current.ServerStatus)
			return true
		}
		assert.Empty(t, current.Vector)
		return false
	})
}

func TestPipelineExtractionFailureMarksError(t *testing.T) {
	pipeline, repos := newTestPipeline(t, &testExtractor{err: errors.New("fetch blew up")})
	item := addTestItem(t, repos, core.ID(1), "https://example.com/broken")

	require.NoError(t, pipeline.Submit(item))

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		current, err := repos.Items.GetItem(ctx, item.Id, item.UserId)
		return err == nil && current.ClientStatus == core.ClientStatusError
	})

	current, err := repos.Items.GetItem(ctx, item.Id, item.UserId)
	require.NoError(t, err)
	assert.Equal(t, core.ServerStatusSaved, current.ServerStatus, "no stage should have advanced")
	assert.Empty(t, current.Vector)
}

func TestPipelineSummaryFailureMarksError(t *testing.T) {
	summarizer := mock.NewMockSummarizer()
	summarizer.SummarizeFunc = func(ctx context.Context, doc *ai.Document) (*ai.Summary, error) {
		return nil, errors.New("model unavailable")
	}
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), summarizer)

	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	pipeline, err := NewPipeline(repos.Items, repos.Chunks, &testExtractor{content: testContent()}, provider,
		WithTokenCounter(ApproximateTokenCounter))
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	item := addTestItem(t, repos, core.ID(1), "https://example.com/no-summary")
	require.NoError(t, pipeline.Submit(item))

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		current, getErr := repos.Items.GetItem(ctx, item.Id, item.UserId)
		return getErr == nil && current.ClientStatus == core.ClientStatusError
	})

	current, err := repos.Items.GetItem(ctx, item.Id, item.UserId)
	require.NoError(t, err)
	assert.Equal(t, core.ServerStatusExtracted, current.ServerStatus, "extraction stage persisted before the failure")
}

func TestPipelineDeletionCancelsRun(t *testing.T) {
	extractor := &testExtractor{blockUntilCancel: true}
	pipeline, repos := newTestPipeline(t, extractor)
	item := addTestItem(t, repos, core.ID(1), "https://example.com/deleted")

	require.NoError(t, pipeline.Submit(item))
	registry := pipeline.Registry()
	waitFor(t, 5*time.Second, func() bool {
		return registry.Running(item.Id)
	})

	ctx := context.Background()
	require.NoError(t, repos.Items.DeleteItem(ctx, item.Id, item.UserId))
	registry.CancelAndWait(item.Id)

	assert.False(t, registry.Running(item.Id))

	// The cancelled run must not resurrect the item or flag an error
	_, err := repos.Items.GetItem(ctx, item.Id, item.UserId)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPipelineRecordsUsage(t *testing.T) {
	pipeline, repos := newTestPipeline(t, &testExtractor{content: testContent()})
	item := addTestItem(t, repos, core.ID(3), "https://example.com/usage")

	require.NoError(t, pipeline.Submit(item))

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		current, err := repos.Items.GetItem(ctx, item.Id, item.UserId)
		return err == nil && current.ClientStatus == core.ClientStatusQueued
	})

	logs, err := repos.Usage.ListUsageLogs(ctx, core.ID(3), 100)
	require.NoError(t, err)
	require.NotEmpty(t, logs)

	operations := make(map[string]bool)
	for _, log := range logs {
		assert.Equal(t, core.ID(3), log.UserId)
		assert.Equal(t, item.Id, log.ItemId)
		assert.Greater(t, log.Tokens, 0)
		operations[log.Operation] = true
	}
	assert.True(t, operations["completion.item_summary"])
	assert.True(t, operations["embedding.item_chunk_batch"])
}

func TestPipelineReleaseStopsRuns(t *testing.T) {
	extractor := &testExtractor{blockUntilCancel: true}
	pipeline, repos := newTestPipeline(t, extractor)

	for i := 0; i < 3; i++ {
		item := addTestItem(t, repos, core.ID(1), fmt.Sprintf("https://example.com/p%d", i))
		require.NoError(t, pipeline.Submit(item))
	}

	registry := pipeline.Registry()
	waitFor(t, 5*time.Second, func() bool {
		return registry.Len() > 0
	})

	pipeline.Release()
	assert.Equal(t, 0, registry.Len())
}

// vanishingItemRepo deletes the item right after its first successful
// update, landing a deletion between a stage persisting and the next
// liveness check.
type vanishingItemRepo struct {
	storage.ItemRepository
	once sync.Once
}

func (r *vanishingItemRepo) UpdateItem(ctx context.Context, id, userID core.ID, apply func(*core.Item) error) (*core.Item, error) {
	updated, err := r.ItemRepository.UpdateItem(ctx, id, userID, apply)
	if err != nil {
		return nil, err
	}
	r.once.Do(func() {
		err = r.ItemRepository.DeleteItem(ctx, id, userID)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// rejectingChunkRepo fails every upsert with a persistent storage error.
type rejectingChunkRepo struct {
	storage.ChunkRepository
}

func (r *rejectingChunkRepo) UpsertChunks(ctx context.Context, chunks ...*core.Chunk) error {
	return errors.New("disk quota exceeded")
}

// logRecorder is a slog handler capturing level/message pairs.
type logRecorder struct {
	mu      sync.Mutex
	records []capturedLog
}

type capturedLog struct {
	level   slog.Level
	message string
}

func (r *logRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *logRecorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, capturedLog{level: rec.Level, message: rec.Message})
	return nil
}

func (r *logRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *logRecorder) WithGroup(string) slog.Handler      { return r }

func (r *logRecorder) has(level slog.Level, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.level == level && rec.message == message {
			return true
		}
	}
	return false
}

func TestPipelineStopsWhenItemVanishesBetweenStages(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	items := &vanishingItemRepo{ItemRepository: repos.Items}
	summarizer := mock.NewMockSummarizer()
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), summarizer)

	pipeline, err := NewPipeline(items, repos.Chunks, &testExtractor{content: testContent()}, provider,
		WithTokenCounter(ApproximateTokenCounter), WithChunking(25, 5))
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	item := addTestItem(t, repos, core.ID(1), "https://example.com/vanished")
	require.NoError(t, pipeline.Submit(item))

	registry := pipeline.Registry()
	waitFor(t, 5*time.Second, func() bool {
		return !registry.Running(item.Id)
	})

	// The extraction update persisted, the item vanished, and the
	// liveness check must stop the run before the summary stage.
	ctx := context.Background()
	_, err = repos.Items.GetItem(ctx, item.Id, item.UserId)
	assert.ErrorIs(t, err, storage.ErrNotFound, "run must not resurrect the item or flag an error")
	assert.Equal(t, 0, summarizer.CallCount(), "no stage past the liveness check may run")

	chunks, err := repos.Chunks.GetChunks(ctx, item.Id)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestPipelineDeletionDuringSummaryWritesNothing(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	item := addTestItem(t, repos, core.ID(1), "https://example.com/gone-mid-summary")

	embedder := mock.NewMockEmbedder()
	summarizer := mock.NewMockSummarizer()
	summarizer.SummarizeFunc = func(ctx context.Context, doc *ai.Document) (*ai.Summary, error) {
		// The item disappears while the model call is in flight
		if err := repos.Items.DeleteItem(ctx, item.Id, item.UserId); err != nil {
			return nil, err
		}
		return &ai.Summary{Text: "too late", ExpiryScore: 0.2}, nil
	}
	provider := mock.NewMockProviderWithServices(embedder, summarizer)

	recorder := &logRecorder{}
	pipeline, err := NewPipeline(repos.Items, repos.Chunks, &testExtractor{content: testContent()}, provider,
		WithTokenCounter(ApproximateTokenCounter), WithChunking(25, 5), WithLogger(slog.New(recorder)))
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	require.NoError(t, pipeline.Submit(item))
	registry := pipeline.Registry()
	waitFor(t, 5*time.Second, func() bool {
		return !registry.Running(item.Id)
	})

	ctx := context.Background()
	_, err = repos.Items.GetItem(ctx, item.Id, item.UserId)
	assert.ErrorIs(t, err, storage.ErrNotFound, "the summary must not be written back")
	assert.Equal(t, 0, embedder.CallCount(), "indexing must never start")

	chunks, err := repos.Chunks.GetChunks(ctx, item.Id)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// Failing to flag a deleted item is expected, so it is only noted
	// at debug level
	assert.True(t, recorder.has(slog.LevelDebug, "item gone before error status could be set"))
	assert.False(t, recorder.has(slog.LevelError, "failed to mark item as error"))
}

func TestPipelineChunkWriteFailureMarksError(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	writer, err := NewChunkWriter(&rejectingChunkRepo{ChunkRepository: repos.Chunks},
		WithWriteBaseDelay(time.Millisecond))
	require.NoError(t, err)

	pipeline, err := NewPipeline(repos.Items, repos.Chunks, &testExtractor{content: testContent()}, mock.NewMockProvider(),
		WithTokenCounter(ApproximateTokenCounter), WithChunking(25, 5), WithChunkWriter(writer))
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	item := addTestItem(t, repos, core.ID(1), "https://example.com/full-disk")
	require.NoError(t, pipeline.Submit(item))

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		current, getErr := repos.Items.GetItem(ctx, item.Id, item.UserId)
		return getErr == nil && current.ClientStatus == core.ClientStatusError
	})

	current, err := repos.Items.GetItem(ctx, item.Id, item.UserId)
	require.NoError(t, err)
	assert.Equal(t, core.ClientStatusError, current.ClientStatus)
	// The vector and queued status committed before the chunk write
	// failed, and that update stays committed
	assert.Equal(t, core.ServerStatusEmbedded, current.ServerStatus)
	assert.NotEmpty(t, current.Vector)

	chunks, err := repos.Chunks.GetChunks(ctx, item.Id)
	require.NoError(t, err)
	assert.Empty(t, chunks, "every upsert was rejected")
}

func TestPipelineConstructorValidation(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	extractor := &testExtractor{content: testContent()}
	provider := mock.NewMockProvider()

	_, err = NewPipeline(nil, repos.Chunks, extractor, provider)
	assert.ErrorIs(t, err, ErrItemRepositoryRequired)

	_, err = NewPipeline(repos.Items, nil, extractor, provider)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewPipeline(repos.Items, repos.Chunks, nil, provider)
	assert.ErrorIs(t, err, ErrExtractorRequired)

	_, err = NewPipeline(repos.Items, repos.Chunks, extractor, nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)
}
