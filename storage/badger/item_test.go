package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/storage"
)

func newTestItem(userID core.ID, url string) *core.Item {
	return &core.Item{
		UserId:       userID,
		URL:          url,
		Title:        "A test page",
		ClientStatus: core.ClientStatusAdding,
		ServerStatus: core.ServerStatusSaved,
	}
}

func TestItemBasics(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	userID := core.ID(1)

	added, err := repos.Items.AddItem(ctx, newTestItem(userID, "https://example.com/a"))
	if err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}
	if added.Id == 0 {
		t.Fatal("Expected non-zero ID")
	}
	if added.InsertedAt.IsZero() {
		t.Fatal("Expected InsertedAt to be set")
	}

	retrieved, err := repos.Items.GetItem(ctx, added.Id, userID)
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if retrieved.URL != "https://example.com/a" {
		t.Fatalf("Expected URL to round-trip, got %q", retrieved.URL)
	}

	exists, err := repos.Items.ItemExists(ctx, added.Id, userID)
	if err != nil {
		t.Fatalf("ItemExists failed: %v", err)
	}
	if !exists {
		t.Fatal("Expected item to exist")
	}
}

func TestItemDuplicateURL(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	if _, err := repos.Items.AddItem(ctx, newTestItem(1, "https://example.com/a")); err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}

	// Same URL, same user: rejected
	_, err = repos.Items.AddItem(ctx, newTestItem(1, "https://example.com/a"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	// Same URL, different user: fine
	if _, err := repos.Items.AddItem(ctx, newTestItem(2, "https://example.com/a")); err != nil {
		t.Fatalf("Expected cross-user add to succeed, got %v", err)
	}
}

func TestItemOwnerScoping(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	added, err := repos.Items.AddItem(ctx, newTestItem(1, "https://example.com/a"))
	if err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}

	// The wrong owner must see exactly what a missing item looks like
	if _, err := repos.Items.GetItem(ctx, added.Id, 2); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for wrong owner, got %v", err)
	}
	exists, err := repos.Items.ItemExists(ctx, added.Id, 2)
	if err != nil {
		t.Fatalf("ItemExists failed: %v", err)
	}
	if exists {
		t.Fatal("Expected item to be invisible to wrong owner")
	}
	if err := repos.Items.DeleteItem(ctx, added.Id, 2); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound deleting as wrong owner, got %v", err)
	}
	if _, err := repos.Items.UpdateItem(ctx, added.Id, 2, func(i *core.Item) error { return nil }); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound updating as wrong owner, got %v", err)
	}
}

func TestUpdateItemTransitions(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	added, err := repos.Items.AddItem(ctx, newTestItem(1, "https://example.com/a"))
	if err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}

	// Vector and queued status land in one mutation
	updated, err := repos.Items.UpdateItem(ctx, added.Id, 1, func(i *core.Item) error {
		i.Vector = []float32{0.5, 0.5}
		i.SetServerStatus(core.ServerStatusEmbedded, now)
		i.SetClientStatus(core.ClientStatusQueued, now)
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to update item: %v", err)
	}
	if updated.ClientStatus != core.ClientStatusQueued {
		t.Fatalf("Expected queued status, got %v", updated.ClientStatus)
	}
	if len(updated.Vector) != 2 {
		t.Fatalf("Expected vector to persist, got %v", updated.Vector)
	}

	// Moving back to adding is not a legal client transition
	_, err = repos.Items.UpdateItem(ctx, added.Id, 1, func(i *core.Item) error {
		i.ClientStatus = core.ClientStatusAdding
		return nil
	})
	if !errors.Is(err, core.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}

	// A rejected mutation leaves the stored record untouched
	retrieved, err := repos.Items.GetItem(ctx, added.Id, 1)
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if retrieved.ClientStatus != core.ClientStatusQueued {
		t.Fatalf("Expected stored status to remain queued, got %v", retrieved.ClientStatus)
	}

	// An apply error aborts the whole update
	sentinel := errors.New("boom")
	_, err = repos.Items.UpdateItem(ctx, added.Id, 1, func(i *core.Item) error {
		i.Summary = "should not persist"
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected apply error to surface, got %v", err)
	}
	retrieved, _ = repos.Items.GetItem(ctx, added.Id, 1)
	if retrieved.Summary != "" {
		t.Fatal("Expected aborted mutation not to persist")
	}
}

func TestListItems(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	urls := []string{
		"https://example.com/1",
		"https://example.com/2",
		"https://example.com/3",
	}
	var ids []core.ID
	for _, url := range urls {
		added, err := repos.Items.AddItem(ctx, newTestItem(1, url))
		if err != nil {
			t.Fatalf("Failed to add item: %v", err)
		}
		ids = append(ids, added.Id)
		time.Sleep(2 * time.Millisecond)
	}
	// Another user's item must not appear
	if _, err := repos.Items.AddItem(ctx, newTestItem(2, "https://example.com/other")); err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}

	items, err := repos.Items.ListItems(ctx, 1, storage.ItemFilter{})
	if err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	// Newest first
	if items[0].URL != urls[2] || items[2].URL != urls[0] {
		t.Fatalf("Expected newest-first order, got %q .. %q", items[0].URL, items[2].URL)
	}

	// Status filter
	if _, err := repos.Items.UpdateItem(ctx, ids[1], 1, func(i *core.Item) error {
		i.SetClientStatus(core.ClientStatusError, now)
		return nil
	}); err != nil {
		t.Fatalf("Failed to update item: %v", err)
	}
	failed, err := repos.Items.ListItems(ctx, 1, storage.ItemFilter{
		ClientStatuses: []core.ClientStatus{core.ClientStatusError},
	})
	if err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	if len(failed) != 1 || failed[0].Id != ids[1] {
		t.Fatalf("Expected only the failed item, got %d results", len(failed))
	}

	// Limit and offset
	page, err := repos.Items.ListItems(ctx, 1, storage.ItemFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	if len(page) != 1 || page[0].URL != urls[1] {
		t.Fatalf("Expected second-newest item, got %v", page)
	}
}

func TestDeleteItemCascadesChunks(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()

	added, err := repos.Items.AddItem(ctx, newTestItem(1, "https://example.com/a"))
	if err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}
	err = repos.Chunks.UpsertChunks(ctx,
		&core.Chunk{ItemId: added.Id, Position: 0, Text: "first"},
		&core.Chunk{ItemId: added.Id, Position: 1, Text: "second"},
	)
	if err != nil {
		t.Fatalf("Failed to upsert chunks: %v", err)
	}

	if err := repos.Items.DeleteItem(ctx, added.Id, 1); err != nil {
		t.Fatalf("Failed to delete item: %v", err)
	}

	chunks, err := repos.Chunks.GetChunks(ctx, added.Id)
	if err != nil {
		t.Fatalf("Failed to get chunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("Expected chunks to be deleted with the item, got %d", len(chunks))
	}

	// The URL slot is free again after deletion
	if _, err := repos.Items.AddItem(ctx, newTestItem(1, "https://example.com/a")); err != nil {
		t.Fatalf("Expected re-add after delete to succeed, got %v", err)
	}
}

func TestFindSimilarItems(t *testing.T) {
	repos, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer repos.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	vectors := map[string][]float32{
		"https://example.com/near":  {1.0, 0.0},
		"https://example.com/far":   {0.0, 1.0},
		"https://example.com/empty": nil,
	}
	for url, vec := range vectors {
		added, err := repos.Items.AddItem(ctx, newTestItem(1, url))
		if err != nil {
			t.Fatalf("Failed to add item: %v", err)
		}
		if vec == nil {
			continue
		}
		if _, err := repos.Items.UpdateItem(ctx, added.Id, 1, func(i *core.Item) error {
			i.Vector = vec
			i.SetServerStatus(core.ServerStatusEmbedded, now)
			i.SetClientStatus(core.ClientStatusQueued, now)
			return nil
		}); err != nil {
			t.Fatalf("Failed to update item: %v", err)
		}
	}
	// Similar vector, different user
	other, err := repos.Items.AddItem(ctx, newTestItem(2, "https://example.com/near"))
	if err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}
	if _, err := repos.Items.UpdateItem(ctx, other.Id, 2, func(i *core.Item) error {
		i.Vector = []float32{1.0, 0.0}
		i.SetServerStatus(core.ServerStatusEmbedded, now)
		i.SetClientStatus(core.ClientStatusQueued, now)
		return nil
	}); err != nil {
		t.Fatalf("Failed to update item: %v", err)
	}

	results, err := repos.Items.FindSimilarItems(ctx, 1, []float32{1.0, 0.0}, 0.5, 10)
	if err != nil {
		t.Fatalf("FindSimilarItems failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Item.URL != "https://example.com/near" {
		t.Fatalf("Expected the near item, got %q", results[0].Item.URL)
	}
	if results[0].Item.UserId != 1 {
		t.Fatal("Expected results scoped to the querying user")
	}
}
