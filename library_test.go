package lateral

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lateralhq/lateral/ai/mock"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/extract"
	"github.com/lateralhq/lateral/pipeline"
	"github.com/lateralhq/lateral/search"
	"github.com/lateralhq/lateral/storage"
)

// stubExtractor serves canned content without touching the network
type stubExtractor struct {
	block bool
}

func (e *stubExtractor) Extract(ctx context.Context, rawURL string) (*extract.Content, error) {
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var text strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&text, "Sentence %d covers the saved article in detail. ", i)
	}
	return &extract.Content{
		URL:        rawURL,
		Title:      "Stubbed Article",
		SourceSite: "example.com",
		Markdown:   "# Stubbed Article\n\n" + text.String(),
		Text:       strings.TrimSpace(text.String()),
	}, nil
}

func openTestLibrary(t *testing.T, opts ...LibraryOption) *Library {
	t.Helper()

	base := []LibraryOption{
		WithInMemory(),
		WithProvider(mock.NewMockProvider()),
		WithExtractor(&stubExtractor{}),
		WithPipelineOptions(pipeline.WithTokenCounter(pipeline.ApproximateTokenCounter)),
	}
	library, err := Open("", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { library.Close() })
	return library
}

func waitForStatus(t *testing.T, library *Library, id, userID core.ID, status core.ClientStatus) *core.Item {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		item, err := library.GetItem(context.Background(), id, userID)
		if err == nil && item.ClientStatus == status {
			return item
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("item %d never reached client status %v", id, status)
	return nil
}

func TestOpen(t *testing.T) {
	t.Run("create new library", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		library, err := Open(tmpDir, WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		require.NotNil(t, library)
		defer library.Close()

		// Verify components are initialized
		assert.NotNil(t, library.ItemRepository())
		assert.NotNil(t, library.ChunkRepository())
		assert.NotNil(t, library.UserRepository())
		assert.NotNil(t, library.UsageLogRepository())
		assert.NotNil(t, library.Pipeline())
	})

	t.Run("error with invalid path", func(t *testing.T) {
		// Try to open a library at a file path instead of a directory
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		err := os.WriteFile(tmpFile, []byte("test"), 0644)
		require.NoError(t, err)

		library, err := Open(tmpFile, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, library)
	})
}

func TestLibrary_Close(t *testing.T) {
	tmpDir := t.TempDir()
	library, err := Open(tmpDir, WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	require.NotNil(t, library)

	err = library.Close()
	assert.NoError(t, err)
}

func TestLibrary_NewSearcher(t *testing.T) {
	library := openTestLibrary(t)

	searcher, err := library.NewSearcher()
	require.NoError(t, err)
	require.NotNil(t, searcher)
}

func TestLibrary_AddItemLifecycle(t *testing.T) {
	library := openTestLibrary(t)
	ctx := context.Background()
	user := core.ID(1)

	item, err := library.AddItem(ctx, user, "example.com/article")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/article", item.URL, "bare domains default to https")
	assert.Equal(t, core.ClientStatusAdding, item.ClientStatus)
	assert.Equal(t, core.ServerStatusSaved, item.ServerStatus)

	enriched := waitForStatus(t, library, item.Id, user, core.ClientStatusQueued)
	assert.Equal(t, "Stubbed Article", enriched.Title)
	assert.NotEmpty(t, enriched.Summary)
	assert.NotEmpty(t, enriched.Vector)
	assert.Equal(t, core.ServerStatusEmbedded, enriched.ServerStatus)

	chunks, err := library.ChunkRepository().GetChunks(ctx, item.Id)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestLibrary_AddItemRejectsDuplicates(t *testing.T) {
	library := openTestLibrary(t)
	ctx := context.Background()
	user := core.ID(1)

	_, err := library.AddItem(ctx, user, "https://example.com/once")
	require.NoError(t, err)

	_, err = library.AddItem(ctx, user, "https://example.com/once")
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// A different user may save the same URL
	_, err = library.AddItem(ctx, core.ID(2), "https://example.com/once")
	assert.NoError(t, err)
}

func TestLibrary_AddItemRejectsInvalidURL(t *testing.T) {
	library := openTestLibrary(t)

	_, err := library.AddItem(context.Background(), core.ID(1), "not a url at all")
	assert.Error(t, err)
}

func TestLibrary_DeleteItemsCancelsEnrichment(t *testing.T) {
	library := openTestLibrary(t, WithExtractor(&stubExtractor{block: true}))
	ctx := context.Background()
	user := core.ID(1)

	item, err := library.AddItem(ctx, user, "https://example.com/slow")
	require.NoError(t, err)

	registry := library.Pipeline().Registry()
	deadline := time.Now().Add(5 * time.Second)
	for !registry.Running(item.Id) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, registry.Running(item.Id))

	require.NoError(t, library.DeleteItems(ctx, user, item.Id))
	assert.False(t, registry.Running(item.Id))

	_, err = library.GetItem(ctx, item.Id, user)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLibrary_DeleteItemsReportsMissing(t *testing.T) {
	library := openTestLibrary(t)
	ctx := context.Background()
	user := core.ID(1)

	item, err := library.AddItem(ctx, user, "https://example.com/real")
	require.NoError(t, err)
	waitForStatus(t, library, item.Id, user, core.ClientStatusQueued)

	err = library.DeleteItems(ctx, user, item.Id, core.ID(999999))
	assert.ErrorIs(t, err, storage.ErrNotFound, "missing ids surface as errors")

	_, err = library.GetItem(ctx, item.Id, user)
	assert.ErrorIs(t, err, storage.ErrNotFound, "existing items are still deleted")
}

func TestLibrary_Search(t *testing.T) {
	library := openTestLibrary(t)
	ctx := context.Background()
	user := core.ID(1)

	item, err := library.AddItem(ctx, user, "https://example.com/findme")
	require.NoError(t, err)
	waitForStatus(t, library, item.Id, user, core.ClientStatusQueued)

	results, err := library.Search(ctx, user, search.Request{Query: "saved article"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, item.Id, results[0].Item.Id)
}

func TestLibrary_Users(t *testing.T) {
	library := openTestLibrary(t)
	ctx := context.Background()

	user, err := library.AddUser(ctx, "frances", "correct horse battery staple")
	require.NoError(t, err)
	require.NotNil(t, user)

	authed, err := library.Authenticate(ctx, "frances", "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, user.Id, authed.Id)

	_, err = library.Authenticate(ctx, "frances", "wrong")
	assert.ErrorIs(t, err, storage.ErrInvalidCredentials)
}

func TestLibrary_UsageLogs(t *testing.T) {
	library := openTestLibrary(t)
	ctx := context.Background()
	user := core.ID(4)

	item, err := library.AddItem(ctx, user, "https://example.com/usage")
	require.NoError(t, err)
	waitForStatus(t, library, item.Id, user, core.ClientStatusQueued)

	logs, err := library.UsageLogs(ctx, user, 50)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}
