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

package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/storage"
)

// ItemRepository implements storage.ItemRepository for BadgerDB.
type ItemRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ItemRepository = (*ItemRepository)(nil)

// NewItemRepository creates a new ItemRepository.
func NewItemRepository(backend *Backend) (*ItemRepository, error) {
	idSeq, err := backend.GetSequence(itemSequenceName)
	if err != nil {
		return nil, err
	}

	return &ItemRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *ItemRepository) Close() error {
	return r.idSeq.Release()
}

// AddItem adds an item to storage.
func (r *ItemRepository) AddItem(ctx context.Context, item *core.Item) (*core.Item, error) {
	if err := core.ValidateItem(item); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Enforce (user, URL) uniqueness via the URL index
		urlKey := makeItemURLKey(item.UserId, core.IDFromContent(item.URL))
		_, err := tx.Get(urlKey)
		if err == nil {
			return storage.ErrDuplicateKey
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		// Always generate new ID from sequence
		nextID, err := r.idSeq.Next()
		if err != nil {
			return err
		}
		// BadgerDB sequences can return 0 on first call, so we skip it
		if nextID == 0 {
			nextID, err = r.idSeq.Next()
			if err != nil {
				return err
			}
		}
		item.Id = core.ID(nextID)

		item.InsertedAt = time.Now().UTC()
		item.UpdatedAt = item.InsertedAt

		// Store primary record
		key := makeItemKey(item.Id)
		value := storage.MarshalItem(item)
		if err := tx.Set(key, value); err != nil {
			return err
		}

		// Update URL index
		if err := tx.Set(urlKey, storage.MarshalID(item.Id)); err != nil {
			return err
		}

		// Update date index
		dateKey := makeItemDateKey(item.UserId, item.InsertedAt, item.Id)
		if err := tx.Set(dateKey, storage.MarshalID(item.Id)); err != nil {
			return err
		}

		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateItem re-reads the item, applies the mutation and persists the
// result, all inside one transaction.
func (r *ItemRepository) UpdateItem(ctx context.Context, id, userID core.ID, apply func(*core.Item) error) (*core.Item, error) {
	var result *core.Item
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeItemKey(id)
		stored, err := readItem(tx, key)
		if err != nil {
			return err
		}
		if stored == nil || stored.UserId != userID {
			return storage.ErrNotFound
		}

		updated := *stored
		if err := apply(&updated); err != nil {
			return err
		}

		// Identity fields never change. URL anchors the per-user
		// uniqueness index; InsertedAt anchors the date index.
		updated.Id = stored.Id
		updated.UserId = stored.UserId
		updated.URL = stored.URL
		updated.InsertedAt = stored.InsertedAt

		if err := core.ValidateClientTransition(stored.ClientStatus, updated.ClientStatus); err != nil {
			return err
		}
		if err := core.ValidateServerTransition(stored.ServerStatus, updated.ServerStatus); err != nil {
			return err
		}
		if err := core.ValidateItem(&updated); err != nil {
			return err
		}

		updated.UpdatedAt = time.Now().UTC()

		if err := tx.Set(key, storage.MarshalItem(&updated)); err != nil {
			return err
		}

		result = &updated
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return result, nil
}

// ItemExists reports whether the item exists and belongs to the user.
func (r *ItemRepository) ItemExists(ctx context.Context, id, userID core.ID) (bool, error) {
	var exists bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := readItem(tx, makeItemKey(id))
		if err != nil {
			return err
		}
		exists = item != nil && item.UserId == userID
		return nil
	}, false)
	return exists, err
}

// GetItem retrieves a single item by ID.
func (r *ItemRepository) GetItem(ctx context.Context, id, userID core.ID) (*core.Item, error) {
	var result *core.Item
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := readItem(tx, makeItemKey(id))
		if err != nil {
			return err
		}
		if item == nil || item.UserId != userID {
			return storage.ErrNotFound
		}
		result = item
		return nil
	}, false)
	return result, err
}

// ListItems retrieves the user's items, newest first.
func (r *ItemRepository) ListItems(ctx context.Context, userID core.ID, filter storage.ItemFilter) ([]*core.Item, error) {
	var results []*core.Item
	skipped := 0

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Walk the date index backwards so newest items come first
		prefix := makeItemDatePrefix(userID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// In reverse mode iteration must be seeded past the prefix
		seekKey := append(slices.Clone(prefix), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)

		for iter.Seek(seekKey); iter.ValidForPrefix(prefix); iter.Next() {
			id := itemIDFromDateKey(iter.Item().Key())
			item, err := readItem(tx, makeItemKey(id))
			if err != nil {
				return err
			}
			if item == nil {
				continue
			}
			if !matchesFilter(item, filter) {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			results = append(results, item)
			if filter.Limit > 0 && len(results) >= filter.Limit {
				return nil
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}
	return results, nil
}

func matchesFilter(item *core.Item, filter storage.ItemFilter) bool {
	if len(filter.ClientStatuses) == 0 {
		return true
	}
	return slices.Contains(filter.ClientStatuses, item.ClientStatus)
}

// DeleteItem removes an item, its index entries and all of its chunks.
func (r *ItemRepository) DeleteItem(ctx context.Context, id, userID core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeItemKey(id)
		item, err := readItem(tx, key)
		if err != nil {
			return err
		}
		if item == nil || item.UserId != userID {
			return storage.ErrNotFound
		}

		// Delete index entries
		urlKey := makeItemURLKey(item.UserId, core.IDFromContent(item.URL))
		if err := tx.Delete(urlKey); err != nil {
			return err
		}
		dateKey := makeItemDateKey(item.UserId, item.InsertedAt, item.Id)
		if err := tx.Delete(dateKey); err != nil {
			return err
		}

		// Cascade to chunks
		if err := deleteChunksFrom(tx, id, 0); err != nil {
			return err
		}

		// Delete primary record
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// FindSimilarItems finds the user's items similar to the given vector.
func (r *ItemRepository) FindSimilarItems(ctx context.Context, userID core.ID, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	var results []*core.SearchResult

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeItemScanPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var item *core.Item
			err := iter.Item().Value(func(val []byte) error {
				var err error
				item, err = storage.UnmarshalItem(val)
				return err
			})
			if err != nil {
				return err
			}
			if item == nil || item.UserId != userID {
				continue
			}

			// Skip items without embeddings
			if len(item.Vector) == 0 {
				continue
			}

			similarity := dotProduct(vector, item.Vector)
			if similarity >= minSimilarity {
				results = append(results, &core.SearchResult{
					Item:  item,
					Score: similarity,
				})
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// readItem reads an item from the transaction.
// Returns (nil, nil) if the key doesn't exist.
func readItem(tx *badger.Txn, key []byte) (*core.Item, error) {
	badgerItem, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var item *core.Item
	err = badgerItem.Value(func(val []byte) error {
		var err error
		item, err = storage.UnmarshalItem(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}
