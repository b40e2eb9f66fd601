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

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/storage"
)

const (
	// DefaultWriteBatchSize is how many chunks one storage write carries.
	DefaultWriteBatchSize = 16
	// DefaultWriteMaxAttempts bounds retries of one failing batch.
	DefaultWriteMaxAttempts = 3
	// DefaultWriteBaseDelay is the linear backoff unit between attempts.
	DefaultWriteBaseDelay = 100 * time.Millisecond
)

// ChunkWriter persists an item's chunks in bounded batches. Transient
// storage failures are retried per batch with linear backoff; batches
// already written stay written when a later batch exhausts its budget.
// After a successful write it prunes chunk positions left over from a
// previous, longer indexing run.
type ChunkWriter struct {
	repo        storage.ChunkRepository
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// ChunkWriterOption configures a ChunkWriter.
type ChunkWriterOption func(*ChunkWriter)

// WithWriteBatchSize sets how many chunks one write carries. Values
// below 1 are clamped to 1.
func WithWriteBatchSize(size int) ChunkWriterOption {
	return func(w *ChunkWriter) {
		if size < 1 {
			size = 1
		}
		w.batchSize = size
	}
}

// WithWriteMaxAttempts sets the per-batch retry budget.
func WithWriteMaxAttempts(attempts int) ChunkWriterOption {
	return func(w *ChunkWriter) {
		if attempts < 1 {
			attempts = 1
		}
		w.maxAttempts = attempts
	}
}

// WithWriteBaseDelay sets the linear backoff unit.
func WithWriteBaseDelay(delay time.Duration) ChunkWriterOption {
	return func(w *ChunkWriter) {
		w.baseDelay = delay
	}
}

// NewChunkWriter creates a ChunkWriter on top of the given repository.
func NewChunkWriter(repo storage.ChunkRepository, opts ...ChunkWriterOption) (*ChunkWriter, error) {
	if repo == nil {
		return nil, ErrChunkRepositoryRequired
	}

	w := &ChunkWriter{
		repo:        repo,
		batchSize:   DefaultWriteBatchSize,
		maxAttempts: DefaultWriteMaxAttempts,
		baseDelay:   DefaultWriteBaseDelay,
		logger:      slog.Default().With("component", "chunk-writer"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Write upserts the chunks batch by batch, then prunes stale positions
// beyond the new chunk count. Chunk positions are assigned from slice
// order, so a re-index overwrites position by position.
func (w *ChunkWriter) Write(ctx context.Context, itemID core.ID, chunks []*core.Chunk) error {
	for position, chunk := range chunks {
		chunk.ItemId = itemID
		chunk.Position = position
	}

	for start := 0; start < len(chunks); start += w.batchSize {
		end := start + w.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		attempt := 0
		err := RetryLinear(ctx, func() error {
			attempt++
			writeErr := w.repo.UpsertChunks(ctx, batch...)
			if writeErr != nil {
				w.logger.Warn("chunk batch write failed",
					"item_id", itemID,
					"batch_size", len(batch),
					"attempt", attempt,
					"max_attempts", w.maxAttempts,
					"transient", IsTransientError(writeErr),
					"err", writeErr)
			}
			return writeErr
		}, w.maxAttempts, w.baseDelay, IsTransientError)
		if err != nil {
			return fmt.Errorf("failed to persist chunk batch starting at %d: %w", start, err)
		}
	}

	// Drop positions a previous longer run left behind
	if err := w.repo.PruneChunks(ctx, itemID, len(chunks)); err != nil {
		return fmt.Errorf("failed to prune stale chunks: %w", err)
	}

	return nil
}
