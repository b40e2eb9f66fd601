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

package reindex

import (
	"context"

	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/storage"
)

const (
	// DefaultBatchSize is the default number of items fetched per page.
	DefaultBatchSize = 100
)

// ItemIterator walks a user's items in pages.
//
// Paging by offset is stable here because re-embedding only rewrites
// vectors: item creation dates, and therefore the listing order, never
// change during a run.
type ItemIterator struct {
	items     storage.ItemRepository
	batchSize int
}

// NewItemIterator creates an iterator fetching batchSize items per page.
// A non-positive batchSize falls back to DefaultBatchSize.
func NewItemIterator(items storage.ItemRepository, batchSize int) *ItemIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ItemIterator{
		items:     items,
		batchSize: batchSize,
	}
}

// ForEach calls fn once per page of the user's items, newest first.
// Iteration stops on the first error from fn. Context cancellation is
// checked between pages.
func (it *ItemIterator) ForEach(ctx context.Context, userID core.ID, fn func([]*core.Item) error) error {
	offset := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		page, err := it.items.ListItems(ctx, userID, storage.ItemFilter{
			Limit:  it.batchSize,
			Offset: offset,
		})
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		if err := fn(page); err != nil {
			return err
		}

		offset += len(page)
		if len(page) < it.batchSize {
			return nil
		}
	}
}
