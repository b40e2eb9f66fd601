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
	"time"

	"github.com/lateralhq/lateral/ai"
	"github.com/lateralhq/lateral/core"
	"github.com/lateralhq/lateral/pipeline"
	"github.com/lateralhq/lateral/storage"
)

// ItemProcessor regenerates the embeddings of fully enriched items: the
// whole-item vector and every chunk vector. Items that have not reached
// the embedded stage are skipped.
type ItemProcessor struct {
	items          storage.ItemRepository
	chunks         storage.ChunkRepository
	embedder       ai.Embedder
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewItemProcessor creates a processor. Embedding calls are retried up to
// maxAttempts times with linearly growing delays starting at retryBaseDelay.
func NewItemProcessor(items storage.ItemRepository, chunks storage.ChunkRepository, embedder ai.Embedder, maxAttempts int, retryBaseDelay time.Duration) *ItemProcessor {
	return &ItemProcessor{
		items:          items,
		chunks:         chunks,
		embedder:       embedder,
		maxAttempts:    maxAttempts,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process re-embeds a batch of items, returning how many were updated.
// Chunk vectors are written before the item vector, so an interrupted run
// never leaves an item whose own vector is newer than its chunks.
func (ip *ItemProcessor) Process(ctx context.Context, items []*core.Item) (int, error) {
	updated := 0
	for _, item := range items {
		if item.ServerStatus != core.ServerStatusEmbedded {
			continue
		}

		if err := ip.reembedChunks(ctx, item); err != nil {
			return updated, fmt.Errorf("item %d chunks: %w", item.Id, err)
		}
		if err := ip.reembedItem(ctx, item); err != nil {
			return updated, fmt.Errorf("item %d: %w", item.Id, err)
		}
		updated++
	}
	return updated, nil
}

func (ip *ItemProcessor) reembedChunks(ctx context.Context, item *core.Item) error {
	chunks, err := ip.chunks.GetChunks(ctx, item.Id)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var embeddings [][]float32
	err = pipeline.RetryLinear(ctx, func() error {
		var embedErr error
		embeddings, embedErr = ip.embedder.EmbedTexts(ctx, texts)
		return embedErr
	}, ip.maxAttempts, ip.retryBaseDelay, pipeline.IsTransientError)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}

	for i := range chunks {
		chunks[i].Vector = pipeline.NormalizeVector(embeddings[i])
	}
	return ip.chunks.UpsertChunks(ctx, chunks...)
}

func (ip *ItemProcessor) reembedItem(ctx context.Context, item *core.Item) error {
	if item.ContentText == "" {
		return nil
	}

	var vector []float32
	err := pipeline.RetryLinear(ctx, func() error {
		var embedErr error
		vector, embedErr = ip.embedder.EmbedText(ctx, item.ContentText)
		return embedErr
	}, ip.maxAttempts, ip.retryBaseDelay, pipeline.IsTransientError)
	if err != nil {
		return fmt.Errorf("embedding content: %w", err)
	}

	normalized := pipeline.NormalizeVector(vector)
	_, err = ip.items.UpdateItem(ctx, item.Id, item.UserId, func(i *core.Item) error {
		i.Vector = normalized
		return nil
	})
	return err
}
