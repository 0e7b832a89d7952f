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
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quarryai/quarry/core"
	"github.com/quarryai/quarry/embedding"
	"github.com/quarryai/quarry/storage"
)

// Stage labels persisted in IngestionJob.CurrentStage. Progress moves
// only at these boundaries: chunked 20%, embedding batches up to 90%,
// stored 100%.
const (
	stageChunking  = "chunking"
	stageChunked   = "chunked"
	stageEmbedding = "embedding"
	stageStoring   = "storing"
	stageStored    = "stored"
)

const (
	progressChunked   = 20
	progressEmbedDone = 90
	progressStored    = 100
)

// runJob drives one job through attempts until a terminal state.
func (o *Orchestrator) runJob(job *core.IngestionJob, item *core.ContentItem, cancelled *atomic.Bool) {
	for {
		job.AttemptCount++
		job.State = core.JobStateRunning
		job.CurrentStage = stageChunking
		if err := o.jobStore.UpdateJob(context.Background(), job); err != nil {
			o.logger.Error("error marking job running", "job_id", job.Id, "err", err)
			return
		}

		err := o.runAttempt(job, item, cancelled)
		if err == nil {
			job.State = core.JobStateSucceeded
			job.CurrentStage = stageStored
			job.ProgressPercent = progressStored
			job.LastError = ""
			o.persistTerminal(job)
			o.logger.Info("job succeeded",
				"job_id", job.Id,
				"parent_id", job.ParentID,
				"attempts", job.AttemptCount)
			return
		}

		if errors.Is(err, errCancelled) {
			job.State = core.JobStateCancelled
			o.persistTerminal(job)
			o.logger.Info("job cancelled", "job_id", job.Id)
			return
		}
		if errors.Is(err, context.Canceled) {
			// Process shutdown. Leave the job non-terminal so a
			// later Resume requeues it.
			o.logger.Warn("job interrupted by shutdown", "job_id", job.Id)
			return
		}

		var jerr *jobError
		if !errors.As(err, &jerr) {
			jerr = &jobError{kind: kindTransient, err: err}
		}

		if !jerr.retriable() || job.AttemptCount >= o.cfg.MaxAttempts {
			job.State = core.JobStateFailed
			job.LastError = jerr.Error()
			o.persistTerminal(job)
			o.logger.Error("job failed",
				"job_id", job.Id,
				"parent_id", job.ParentID,
				"attempts", job.AttemptCount,
				"err", err)
			return
		}

		job.State = core.JobStateRetrying
		job.LastError = jerr.Error()
		if uerr := o.jobStore.UpdateJob(context.Background(), job); uerr != nil {
			o.logger.Error("error marking job retrying", "job_id", job.Id, "err", uerr)
			return
		}

		delay := backoffDelay(o.cfg.RetryBaseDelay, o.cfg.RetryMaxDelay, job.AttemptCount)
		o.logger.Warn("job attempt failed, retrying",
			"job_id", job.Id,
			"attempt", job.AttemptCount,
			"delay", delay,
			"err", err)

		select {
		case <-time.After(delay):
		case <-o.shutdown:
			return
		}
		if cancelled.Load() {
			job.State = core.JobStateCancelled
			o.persistTerminal(job)
			return
		}
	}
}

// runAttempt runs the chunk, embed, store stages once. The cancellation
// flag is checked at stage boundaries only.
func (o *Orchestrator) runAttempt(job *core.IngestionJob, item *core.ContentItem, cancelled *atomic.Bool) error {
	ctx := context.Background()
	if o.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.JobTimeout)
		defer cancel()
	}

	if cancelled.Load() {
		return errCancelled
	}

	chunks, err := o.chunker.Chunk(item)
	if err != nil {
		return &jobError{kind: kindValidation, err: err}
	}

	job.CurrentStage = stageChunked
	job.ProgressPercent = progressChunked
	o.checkpoint(job)

	if cancelled.Load() {
		return errCancelled
	}

	// An item reduced to zero units still clears its previous chunks.
	if len(chunks) == 0 {
		if _, err := o.chunkRepo.DeleteByParent(ctx, item.ParentID); err != nil {
			return classifyStorageError(err)
		}
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	job.CurrentStage = stageEmbedding
	o.checkpoint(job)

	var progressMu sync.Mutex
	vectors, usage, err := o.embedder.EmbedWithProgress(ctx, texts, func(done, total int) {
		progressMu.Lock()
		defer progressMu.Unlock()
		span := progressEmbedDone - progressChunked
		job.ProgressPercent = progressChunked + span*done/total
		o.checkpoint(job)
	})
	if err != nil {
		return classifyEmbedError(err)
	}
	o.logger.Debug("embedded chunks",
		"job_id", job.Id,
		"texts", usage.Texts,
		"batches", usage.Batches,
		"retries", usage.Retries)

	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}

	if cancelled.Load() {
		return errCancelled
	}

	job.CurrentStage = stageStoring
	job.ProgressPercent = progressEmbedDone
	o.checkpoint(job)

	// Delete-then-reinsert: a parent's chunk set is replaced whole,
	// never patched.
	if _, err := o.chunkRepo.DeleteByParent(ctx, item.ParentID); err != nil {
		return classifyStorageError(err)
	}
	if err := o.chunkRepo.SaveBatch(ctx, chunks); err != nil {
		return classifyStorageError(err)
	}
	return nil
}

// checkpoint persists job progress; failure to record progress is logged
// but never fails the attempt.
func (o *Orchestrator) checkpoint(job *core.IngestionJob) {
	if err := o.jobStore.UpdateJob(context.Background(), job); err != nil {
		o.logger.Error("error checkpointing job", "job_id", job.Id, "err", err)
	}
}

func (o *Orchestrator) persistTerminal(job *core.IngestionJob) {
	if err := o.jobStore.UpdateJob(context.Background(), job); err != nil {
		o.logger.Error("error persisting terminal job state", "job_id", job.Id, "err", err)
	}
}

// classifyEmbedError maps generator failures onto the retry taxonomy.
// The soft attempt timeout surfaces as a deadline error and counts as
// transient; everything the generator marks permanent fails the job.
func classifyEmbedError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &jobError{kind: kindTransient, err: err}
	}
	if embedding.IsTransient(err) {
		return &jobError{kind: kindTransient, err: err}
	}
	return &jobError{kind: kindPermanent, err: err}
}

// classifyStorageError treats contract violations as validation failures
// and infrastructure failures as transient.
func classifyStorageError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &jobError{kind: kindTransient, err: err}
	}
	switch {
	case errors.Is(err, storage.ErrEmptyBatch),
		errors.Is(err, storage.ErrMixedParents),
		errors.Is(err, storage.ErrMissingVector),
		errors.Is(err, core.ErrVectorDimension),
		errors.Is(err, core.ErrInvalidChunk),
		errors.Is(err, core.ErrEmptyParentID):
		return &jobError{kind: kindValidation, err: err}
	}
	return &jobError{kind: kindTransient, err: err}
}
