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


// Package quarry ties the chunking, embedding, storage, search, and
// ingestion components into one engine behind a single configuration.
package quarry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quarryai/quarry/ai"
	"github.com/quarryai/quarry/ai/openai"
	"github.com/quarryai/quarry/chunking"
	"github.com/quarryai/quarry/config"
	"github.com/quarryai/quarry/core"
	"github.com/quarryai/quarry/embedding"
	"github.com/quarryai/quarry/ingest"
	"github.com/quarryai/quarry/search"
	"github.com/quarryai/quarry/storage"
	"github.com/quarryai/quarry/storage/badger"
	"github.com/quarryai/quarry/storage/sqlite"
)

// Engine is the top-level entry point. It owns the storage backend
// selected by the configuration, the embedding provider, and the
// ingestion and search services built on them.
type Engine struct {
	cfg       *config.Config
	provider  ai.Provider
	generator *embedding.Generator
	chunker   *chunking.Chunker
	chunkRepo storage.ChunkRepository
	jobStore  storage.JobStore
	searcher  *search.Engine
	orch      *ingest.Orchestrator
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	provider ai.Provider
	resolver ingest.ItemResolver
	logger   *slog.Logger
}

// WithProvider overrides the embedding provider built from the
// configuration. Used to inject a mock.
func WithProvider(provider ai.Provider) EngineOption {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithItemResolver sets the resolver used to redispatch requeued jobs
// on Resume.
func WithItemResolver(resolver ingest.ItemResolver) EngineOption {
	return func(o *engineOptions) {
		o.resolver = resolver
	}
}

// WithEngineLogger sets a custom logger.
// Default is slog.Default().
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// Open builds an engine from the configuration.
func Open(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	chunkRepo, jobStore, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		aiCfg := ai.NewConfig(
			ai.WithHost(cfg.Embedding.Host),
			ai.WithModel(cfg.Embedding.Model),
		)
		provider, err = openai.NewProvider(aiCfg)
		if err != nil {
			chunkRepo.Close()
			return nil, err
		}
	}

	generator, err := embedding.NewGenerator(provider.Embedder(), cfg.Embedding)
	if err != nil {
		provider.Close()
		chunkRepo.Close()
		return nil, err
	}

	chunker, err := chunking.NewChunker(cfg.Chunking)
	if err != nil {
		generator.Release()
		provider.Close()
		chunkRepo.Close()
		return nil, err
	}

	searcher, err := search.NewEngine(chunkRepo, generator, cfg.Search, search.WithLogger(options.logger))
	if err != nil {
		generator.Release()
		provider.Close()
		chunkRepo.Close()
		return nil, err
	}

	orchOpts := []ingest.Option{ingest.WithLogger(options.logger)}
	if options.resolver != nil {
		orchOpts = append(orchOpts, ingest.WithItemResolver(options.resolver))
	}
	orch, err := ingest.NewOrchestrator(chunker, generator, chunkRepo, jobStore, cfg.Ingest, orchOpts...)
	if err != nil {
		generator.Release()
		provider.Close()
		chunkRepo.Close()
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		provider:  provider,
		generator: generator,
		chunker:   chunker,
		chunkRepo: chunkRepo,
		jobStore:  jobStore,
		searcher:  searcher,
		orch:      orch,
		logger:    options.logger,
	}, nil
}

// openBackend selects the storage backend from the configuration.
func openBackend(cfg *config.Config) (storage.ChunkRepository, storage.JobStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendVectorIndex:
		backend, err := badger.OpenBackend(cfg.Storage.Path, false)
		if err != nil {
			return nil, nil, err
		}
		return badger.NewChunkRepository(backend, cfg.Embedding.Dimension), badger.NewJobStore(backend), nil
	case config.BackendUnified:
		store, err := sqlite.NewStore(cfg.Storage.Path, cfg.Embedding.Dimension)
		if err != nil {
			return nil, nil, err
		}
		return store.ChunkRepository(), store.JobStore(), nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// SubmitIngestion queues the content item for asynchronous ingestion
// and returns the job id. Rejected with storage.ErrActiveJobExists when
// the parent already has an active job.
func (e *Engine) SubmitIngestion(ctx context.Context, item *core.ContentItem) (string, error) {
	return e.orch.Submit(ctx, item)
}

// GetJobStatus returns a point-in-time snapshot of a job.
func (e *Engine) GetJobStatus(ctx context.Context, jobID string) (*core.IngestionJob, error) {
	return e.orch.Status(ctx, jobID)
}

// CancelJob requests cooperative cancellation of a job.
func (e *Engine) CancelJob(ctx context.Context, jobID string) error {
	return e.orch.Cancel(ctx, jobID)
}

// ListJobs returns up to limit jobs, newest first. limit <= 0 means no
// limit.
func (e *Engine) ListJobs(ctx context.Context, limit int) ([]*core.IngestionJob, error) {
	return e.orch.Jobs(ctx, limit)
}

// Resume requeues jobs interrupted by a previous process. Call once at
// startup.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	return e.orch.Resume(ctx)
}

// Search runs a search request. See search.Engine for the degradation
// and failure contract.
func (e *Engine) Search(ctx context.Context, req search.Request) *search.Result {
	return e.searcher.Search(ctx, req)
}

// SearchWithMonitor runs a search request with observation hooks.
func (e *Engine) SearchWithMonitor(ctx context.Context, req search.Request, monitor search.Monitor) *search.Result {
	return e.searcher.SearchWithMonitor(ctx, req, monitor)
}

// Reindex regenerates embeddings for a parent's stored chunks and
// rewrites them as one batch. Chunk boundaries are kept; use
// SubmitIngestion with fresh source units to re-chunk. Rejected while
// the parent has an active ingestion job.
func (e *Engine) Reindex(ctx context.Context, parentID string) error {
	if err := e.ensureNoActiveJob(ctx, parentID); err != nil {
		return err
	}

	chunks, err := e.chunkRepo.FindByParent(ctx, parentID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return storage.ErrNotFound
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, usage, err := e.generator.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("reembedding chunks: %w", err)
	}
	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}

	if _, err := e.chunkRepo.DeleteByParent(ctx, parentID); err != nil {
		return err
	}
	if err := e.chunkRepo.SaveBatch(ctx, chunks); err != nil {
		return err
	}

	e.logger.Info("reindexed content",
		"parent_id", parentID,
		"chunks", len(chunks),
		"batches", usage.Batches)
	return nil
}

// DeleteContent removes all chunks of a parent and returns the number
// removed. Rejected while the parent has an active ingestion job.
func (e *Engine) DeleteContent(ctx context.Context, parentID string) (int, error) {
	if err := e.ensureNoActiveJob(ctx, parentID); err != nil {
		return 0, err
	}
	return e.chunkRepo.DeleteByParent(ctx, parentID)
}

// Close shuts the engine down: waits for in-flight jobs, then releases
// the generator, provider, and storage.
func (e *Engine) Close() error {
	e.orch.Close()
	e.generator.Release()

	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing embedding provider", "err", err)
	}
	if err := e.chunkRepo.Close(); err != nil {
		e.logger.Error("error closing storage", "err", err)
		return err
	}
	return nil
}

func (e *Engine) ensureNoActiveJob(ctx context.Context, parentID string) error {
	if parentID == "" {
		return core.ErrEmptyParentID
	}
	job, err := e.jobStore.ActiveJobForParent(ctx, parentID)
	if err == nil {
		return fmt.Errorf("%w: job %s", storage.ErrActiveJobExists, job.Id)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}
