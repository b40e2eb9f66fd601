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

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
// Chunks are keyed by (item ID, position); positions are big-endian in
// the key so prefix iteration yields chunks in order.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	return &ChunkRepository{
		backend: backend,
	}, nil
}

// Close releases resources. ChunkRepository has no resources to release.
func (r *ChunkRepository) Close() error {
	return nil
}

// UpsertChunks writes chunks, overwriting any existing chunk at the same
// (item, position). InsertedAt is preserved on overwrite.
func (r *ChunkRepository) UpsertChunks(ctx context.Context, chunks ...*core.Chunk) error {
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, chunk := range chunks {
			key := makeChunkKey(chunk.ItemId, chunk.Position)

			old, err := readChunk(tx, key)
			if err != nil {
				return err
			}
			if old != nil {
				chunk.InsertedAt = old.InsertedAt
			} else {
				chunk.InsertedAt = now
			}
			chunk.UpdatedAt = now

			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// PruneChunks deletes the item's chunks at positions >= keep.
func (r *ChunkRepository) PruneChunks(ctx context.Context, itemID core.ID, keep int) error {
	if keep < 0 {
		keep = 0
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := deleteChunksFrom(tx, itemID, keep); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetChunks retrieves all chunks of an item ordered by position.
func (r *ChunkRepository) GetChunks(ctx context.Context, itemID core.ID) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeChunkPrefix(itemID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteChunks removes all chunks of an item.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, itemID core.ID) error {
	return r.PruneChunks(ctx, itemID, 0)
}

// FindSimilarChunks finds chunks of the user's items similar to the
// given vector.
func (r *ChunkRepository) FindSimilarChunks(ctx context.Context, userID core.ID, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	var results []*core.SearchResult

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Owning items are resolved lazily and memoized; nil marks an
		// item that is missing or owned by someone else.
		owners := make(map[core.ID]*core.Item)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkScanPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if chunk == nil || len(chunk.Vector) == 0 {
				continue
			}

			owner, seen := owners[chunk.ItemId]
			if !seen {
				item, err := readItem(tx, makeItemKey(chunk.ItemId))
				if err != nil {
					return err
				}
				if item == nil || item.UserId != userID {
					item = nil
				}
				owners[chunk.ItemId] = item
				owner = item
			}
			if owner == nil {
				continue
			}

			similarity := dotProduct(vector, chunk.Vector)
			if similarity >= minSimilarity {
				results = append(results, &core.SearchResult{
					Item:  owner,
					Chunk: chunk,
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

// deleteChunksFrom removes the item's chunk keys at positions >= from
// within the given transaction.
func deleteChunksFrom(tx *badger.Txn, itemID core.ID, from int) error {
	prefix := makeChunkPrefix(itemID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)

	var stale [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		key := iter.Item().KeyCopy(nil)
		if chunkPositionFromKey(key) >= from {
			stale = append(stale, key)
		}
	}
	iter.Close()

	for _, key := range stale {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// readChunk reads a chunk from the transaction.
// Returns (nil, nil) if the key doesn't exist.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	badgerItem, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = badgerItem.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chunk, nil
}
