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


package ingest

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/quarryai/quarry/config"
	"github.com/quarryai/quarry/core"
	"github.com/quarryai/quarry/embedding"
	"github.com/quarryai/quarry/storage"
)

// Chunker turns a content item into its ordered chunks.
// Satisfied by chunking.Chunker.
type Chunker interface {
	Chunk(item *core.ContentItem) ([]*core.ContentChunk, error)
}

// Embedder produces vectors for an ordered list of texts with batch
// progress callbacks. Satisfied by embedding.Generator.
type Embedder interface {
	EmbedWithProgress(ctx context.Context, texts []string, progress embedding.ProgressFunc) ([][]float32, *embedding.Usage, error)
}

// ItemResolver reloads a content item by parent id. Used by Resume to
// redispatch jobs that survived a restart; without one, requeued jobs
// stay pending until resubmitted.
type ItemResolver interface {
	Resolve(ctx context.Context, parentID string) (*core.ContentItem, error)
}

// Orchestrator runs ingestion jobs on a bounded worker pool.
type Orchestrator struct {
	chunker   Chunker
	embedder  Embedder
	chunkRepo storage.ChunkRepository
	jobStore  storage.JobStore
	resolver  ItemResolver
	pool      *ants.Pool
	cfg       config.IngestConfig
	logger    *slog.Logger

	mu      sync.Mutex
	cancels map[string]*atomic.Bool

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithItemResolver sets the resolver Resume uses to reload interrupted
// jobs' content items.
func WithItemResolver(resolver ItemResolver) Option {
	return func(o *Orchestrator) error {
		o.resolver = resolver
		return nil
	}
}

// NewOrchestrator creates an orchestrator with cfg.Workers pool slots.
func NewOrchestrator(
	chunker Chunker,
	embedder Embedder,
	chunkRepo storage.ChunkRepository,
	jobStore storage.JobStore,
	cfg config.IngestConfig,
	opts ...Option,
) (*Orchestrator, error) {
	if chunker == nil {
		return nil, ErrChunkerRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if chunkRepo == nil {
		return nil, ErrRepositoryRequired
	}
	if jobStore == nil {
		return nil, ErrJobStoreRequired
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		chunker:   chunker,
		embedder:  embedder,
		chunkRepo: chunkRepo,
		jobStore:  jobStore,
		pool:      pool,
		cfg:       cfg,
		logger:    slog.Default().With("component", "ingest"),
		cancels:   make(map[string]*atomic.Bool),
		shutdown:  make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			pool.Release()
			return nil, err
		}
	}

	return o, nil
}

// Submit creates a job for the item and dispatches it to the pool.
// Returns storage.ErrActiveJobExists when the parent already has an
// active job.
func (o *Orchestrator) Submit(ctx context.Context, item *core.ContentItem) (string, error) {
	if o.closed.Load() {
		return "", ErrClosed
	}
	if err := core.ValidateContentItem(item); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	job := &core.IngestionJob{
		Id:           uuid.NewString(),
		ParentID:     item.ParentID,
		CollectionID: item.CollectionID,
		State:        core.JobStatePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.jobStore.CreateJob(ctx, job); err != nil {
		return "", err
	}

	if err := o.dispatch(job, item); err != nil {
		job.State = core.JobStateFailed
		job.LastError = (&jobError{kind: kindTransient, err: err}).Error()
		if uerr := o.jobStore.UpdateJob(context.Background(), job); uerr != nil {
			o.logger.Error("error recording dispatch failure", "job_id", job.Id, "err", uerr)
		}
		return "", err
	}

	o.logger.Info("job submitted", "job_id", job.Id, "parent_id", job.ParentID)
	return job.Id, nil
}

// Status returns a point-in-time snapshot of a job.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*core.IngestionJob, error) {
	return o.jobStore.GetJob(ctx, jobID)
}

// Jobs returns up to limit jobs, newest first. limit <= 0 means no limit.
func (o *Orchestrator) Jobs(ctx context.Context, limit int) ([]*core.IngestionJob, error) {
	return o.jobStore.ListJobs(ctx, limit)
}

// Cancel requests cooperative cancellation of a job. An in-flight job
// observes the request at its next stage boundary; a job not currently
// running is cancelled directly.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.jobStore.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return ErrJobNotCancellable
	}

	o.mu.Lock()
	flag, inFlight := o.cancels[jobID]
	o.mu.Unlock()
	if inFlight {
		flag.Store(true)
		o.logger.Info("cancellation requested", "job_id", jobID)
		return nil
	}

	// Not in-flight in this process, e.g. pending after a restart.
	job.State = core.JobStateCancelled
	return o.jobStore.UpdateJob(ctx, job)
}

// Resume moves jobs interrupted by a previous process back to pending
// and, when an item resolver is configured, redispatches them. Returns
// the number of requeued jobs. Call once at startup, before Submit.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	requeued, err := o.jobStore.RequeueInterrupted(ctx)
	if err != nil {
		return 0, err
	}
	if requeued == 0 || o.resolver == nil {
		return requeued, nil
	}

	jobs, err := o.jobStore.ListJobs(ctx, 0)
	if err != nil {
		return requeued, err
	}
	for _, job := range jobs {
		if job.State != core.JobStatePending {
			continue
		}
		item, err := o.resolver.Resolve(ctx, job.ParentID)
		if err != nil {
			o.logger.Warn("cannot resolve item for requeued job",
				"job_id", job.Id, "parent_id", job.ParentID, "err", err)
			continue
		}
		if err := o.dispatch(job, item); err != nil {
			o.logger.Error("error redispatching requeued job", "job_id", job.Id, "err", err)
		}
	}
	return requeued, nil
}

// Close stops accepting work and waits for in-flight jobs to finish
// their current attempt. Jobs sleeping in a retry backoff abort the
// sleep and stay retrying for a later Resume.
func (o *Orchestrator) Close() {
	if !o.closed.CompareAndSwap(false, true) {
		return
	}
	close(o.shutdown)
	o.wg.Wait()
	o.pool.Release()
}

func (o *Orchestrator) dispatch(job *core.IngestionJob, item *core.ContentItem) error {
	flag := &atomic.Bool{}
	o.mu.Lock()
	o.cancels[job.Id] = flag
	o.mu.Unlock()

	o.wg.Add(1)
	if err := o.pool.Submit(func() {
		defer o.wg.Done()
		defer o.forgetCancel(job.Id)
		o.runJob(job, item, flag)
	}); err != nil {
		o.wg.Done()
		o.forgetCancel(job.Id)
		return err
	}
	return nil
}

func (o *Orchestrator) forgetCancel(jobID string) {
	o.mu.Lock()
	delete(o.cancels, jobID)
	o.mu.Unlock()
}
