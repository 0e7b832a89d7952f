// Copyright 2025 Quarry AI
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


// Package embedding turns ordered lists of text into equal-length,
// order-preserving lists of fixed-dimension vectors. It owns provider
// batching, bounded batch concurrency, per-batch retry with exponential
// backoff, and usage accounting. Batch retry here is local and bounded;
// job-level retry lives in the ingest orchestrator.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/quarryai/quarry/ai"
	"github.com/quarryai/quarry/config"
	"github.com/quarryai/quarry/core"
)

// Usage reports per-call consumption for observability.
type Usage struct {
	Texts      int // texts embedded
	Characters int // total characters submitted
	Batches    int // provider calls issued (excluding retries)
	Retries    int // extra attempts beyond the first, summed over batches
}

// ProgressFunc receives batch completion updates: done of total batches.
type ProgressFunc func(done, total int)

// Generator wraps an ai.Embedder with batching, retry, and bounded
// concurrency. It never returns partial results: if any batch ultimately
// fails, the whole call fails.
type Generator struct {
	embedder    ai.Embedder
	dimension   int
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
	pool        *ants.Pool
	logger      *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger.With("component", "embedding-generator")
		}
	}
}

// NewGenerator creates a generator over the given embedder.
func NewGenerator(embedder ai.Embedder, cfg config.EmbeddingConfig, opts ...Option) (*Generator, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	concurrency := cfg.MaxConcurrentBatches
	if concurrency < 1 {
		concurrency = 1
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, err
	}

	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	g := &Generator{
		embedder:    embedder,
		dimension:   cfg.Dimension,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		pool:        pool,
		logger:      slog.Default().With("component", "embedding-generator"),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Dimension returns the deployment-wide embedding dimension.
func (g *Generator) Dimension() int {
	return g.dimension
}

// Release releases the internal worker pool.
// The generator should not be used after calling Release.
func (g *Generator) Release() {
	g.pool.Release()
}

// Embed generates one vector per input text, order-preserving.
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, *Usage, error) {
	return g.EmbedWithProgress(ctx, texts, nil)
}

// EmbedWithProgress is Embed with a batch-completion callback.
// The callback may be invoked from multiple goroutines, one call per
// finished batch, and is never called after EmbedWithProgress returns.
func (g *Generator) EmbedWithProgress(ctx context.Context, texts []string, progress ProgressFunc) ([][]float32, *Usage, error) {
	usage := &Usage{Texts: len(texts)}
	for _, text := range texts {
		usage.Characters += len(text)
	}

	if len(texts) == 0 {
		return [][]float32{}, usage, nil
	}

	batches := (len(texts) + g.batchSize - 1) / g.batchSize
	usage.Batches = batches

	results := make([][]float32, len(texts))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		retries  int
		done     int
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		offset := start
		batch := texts[start:end]

		wg.Add(1)
		submitErr := g.pool.Submit(func() {
			defer wg.Done()

			attempts, err := g.embedBatch(ctx, batch, results, offset)

			mu.Lock()
			retries += attempts - 1
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel() // other batches stop retrying
				}
				mu.Unlock()
				return
			}
			done++
			completed := done
			mu.Unlock()

			if progress != nil {
				progress(completed, batches)
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = submitErr
			}
			mu.Unlock()
			break
		}
	}

	wg.Wait()
	usage.Retries = retries

	if firstErr != nil {
		return nil, usage, firstErr
	}

	return results, usage, nil
}

// EmbedQuery generates a single vector for a search query.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := g.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateVectorDim(vector, g.dimension); err != nil {
		return nil, err
	}
	return Normalize(vector), nil
}

// embedBatch embeds one batch with retry and writes vectors into the
// shared result slice at the batch offset. Writing by offset keeps output
// order independent of batch completion order.
func (g *Generator) embedBatch(ctx context.Context, batch []string, results [][]float32, offset int) (int, error) {
	var vectors [][]float32

	attempts, err := RetryWithBackoff(ctx, func() error {
		var embedErr error
		vectors, embedErr = g.embedder.EmbedTexts(ctx, batch)
		return embedErr
	}, g.maxAttempts, g.baseDelay)

	if err != nil {
		g.logger.Error("batch embedding failed", "offset", offset, "size", len(batch), "attempts", attempts, "err", err)
		return attempts, fmt.Errorf("embedding batch at offset %d after %d attempts: %w", offset, attempts, err)
	}

	if len(vectors) != len(batch) {
		return attempts, fmt.Errorf("%w: expected %d, received %d", ErrResultMismatch, len(batch), len(vectors))
	}

	for i, vector := range vectors {
		if err := core.ValidateVectorDim(vector, g.dimension); err != nil {
			return attempts, fmt.Errorf("%w: %w", ErrPermanent, err)
		}
		results[offset+i] = Normalize(vector)
	}

	return attempts, nil
}
