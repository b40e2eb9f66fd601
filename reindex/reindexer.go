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
	"fmt"
	"io"
	"time"

	"github.com/lateralhq/lateral/ai"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/storage"
)

// Config holds configuration for a re-indexing run.
type Config struct {
	// BatchSize is the number of items to fetch and process per page
	BatchSize int

	// ReportInterval is how often to report progress (number of items)
	ReportInterval int

	// MaxAttempts is the total attempt budget for each embedding call
	MaxAttempts int

	// RetryDelay is the base delay between retry attempts
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxAttempts:    3,
		RetryDelay:     1 * time.Second,
	}
}

// Reindexer drives the re-embedding of a user's library.
type Reindexer struct {
	items     storage.ItemRepository
	config    *Config
	progress  io.Writer
	processor *ItemProcessor
	iterator  *ItemIterator
}

// NewReindexer creates a reindexer. A nil config uses DefaultConfig, and
// progress output (typically os.Stderr) may be discarded with io.Discard.
func NewReindexer(items storage.ItemRepository, chunks storage.ChunkRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reindexer, error) {
	if items == nil {
		return nil, ErrItemRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reindexer{
		items:     items,
		config:    config,
		progress:  progress,
		processor: NewItemProcessor(items, chunks, embedder, config.MaxAttempts, config.RetryDelay),
		iterator:  NewItemIterator(items, config.BatchSize),
	}, nil
}

// Run re-embeds every enriched item belonging to the user, reporting
// progress to the configured writer. Returns the number of items updated.
func (r *Reindexer) Run(ctx context.Context, userID core.ID) (int, error) {
	all, err := r.items.ListItems(ctx, userID, storage.ItemFilter{})
	if err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}

	total := len(all)
	if total == 0 {
		fmt.Fprintf(r.progress, "No items found for user %d\n", userID)
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Re-indexing %d items (batch size: %d)\n",
		total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	updated := 0
	err = r.iterator.ForEach(ctx, userID, func(page []*core.Item) error {
		n, err := r.processor.Process(ctx, page)
		updated += n
		if err != nil {
			return err
		}
		tracker.Increment(len(page))
		return nil
	})
	if err != nil {
		return updated, err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	rate := 0.0
	if elapsed.Seconds() > 0 {
		rate = float64(total) / elapsed.Seconds()
	}
	fmt.Fprintf(r.progress, "Re-index complete. Updated %d of %d items in %v (%.1f items/s)\n",
		updated, total, elapsed.Round(time.Millisecond), rate)

	return updated, nil
}
