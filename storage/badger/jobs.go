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


package badger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/quarryai/quarry/core"
	"github.com/quarryai/quarry/storage"
)

// JobStore implements storage.JobStore on BadgerDB. Each parent's active
// job id is tracked in a pointer key, which is how the one-active-job
// rule is enforced without scanning.
type JobStore struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.JobStore = (*JobStore)(nil)

// NewJobStore creates a job store on the given backend.
func NewJobStore(backend *Backend) *JobStore {
	return &JobStore{
		backend: backend,
		logger:  slog.Default().With("component", "badger-jobs"),
	}
}

// CreateJob persists a new job and claims the parent's active-job slot.
func (s *JobStore) CreateJob(ctx context.Context, job *core.IngestionJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if err := validateJob(job); err != nil {
		return err
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		pointerKey := makeJobParentKey(job.ParentID)
		if existing, err := s.activeJobInTx(tx, pointerKey); err != nil {
			return err
		} else if existing != nil {
			return fmt.Errorf("%w: job %s", storage.ErrActiveJobExists, existing.Id)
		}

		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}
		timeKey := makeJobTimeKey(job.CreatedAt.UnixMicro(), job.Id)
		if err := tx.Set(timeKey, []byte(job.Id)); err != nil {
			return err
		}
		return tx.Set(pointerKey, []byte(job.Id))
	}, true)
}

// GetJob returns a snapshot of a job.
func (s *JobStore) GetJob(ctx context.Context, id string) (*core.IngestionJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var job *core.IngestionJob
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		job, err = s.getJobInTx(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateJob persists the job's current state. Reaching a terminal state
// releases the parent's active-job slot.
func (s *JobStore) UpdateJob(ctx context.Context, job *core.IngestionJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if err := validateJob(job); err != nil {
		return err
	}

	job.UpdatedAt = time.Now().UTC()

	return s.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := s.getJobInTx(tx, job.Id); err != nil {
			return err
		}
		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}
		if job.State.Terminal() {
			return s.releasePointerInTx(tx, job)
		}
		return nil
	}, true)
}

// ListJobs returns jobs newest first, up to limit.
func (s *JobStore) ListJobs(ctx context.Context, limit int) ([]*core.IngestionJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var jobs []*core.IngestionJob
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(jobTimePrefix + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true

		it := tx.NewIterator(opts)
		defer it.Close()

		// In reverse mode the seek key must sort after every key in
		// the prefix range.
		seekKey := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(jobs) >= limit {
				break
			}
			var id string
			err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			})
			if err != nil {
				return err
			}

			job, err := s.getJobInTx(tx, id)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ActiveJobForParent returns the parent's pending, running, or retrying
// job, or ErrNotFound when the parent has none.
func (s *JobStore) ActiveJobForParent(ctx context.Context, parentID string) (*core.IngestionJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	if parentID == "" {
		return nil, core.ErrEmptyParentID
	}

	var job *core.IngestionJob
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		job, err = s.activeJobInTx(tx, makeJobParentKey(parentID))
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// RequeueInterrupted moves jobs a dead process left running or retrying
// back to pending.
func (s *JobStore) RequeueInterrupted(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}

	requeued := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(jobRecordPrefix + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var job *core.IngestionJob
			err := it.Item().Value(func(val []byte) error {
				var err error
				job, err = storage.UnmarshalJob(val)
				return err
			})
			if err != nil {
				return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
			}

			if job.State != core.JobStateRunning && job.State != core.JobStateRetrying {
				continue
			}
			job.State = core.JobStatePending
			job.CurrentStage = ""
			job.UpdatedAt = time.Now().UTC()
			if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
				return err
			}
			requeued++
		}
		return nil
	}, true)
	if err != nil {
		return 0, err
	}

	if requeued > 0 {
		s.logger.Info("requeued interrupted jobs", "jobs", requeued)
	}
	return requeued, nil
}

// Close closes the underlying backend.
func (s *JobStore) Close() error {
	return s.backend.Close()
}

func (s *JobStore) getJobInTx(tx *badger.Txn, id string) (*core.IngestionJob, error) {
	item, err := tx.Get(makeJobKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var job *core.IngestionJob
	err = item.Value(func(val []byte) error {
		var err error
		job, err = storage.UnmarshalJob(val)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return job, nil
}

// activeJobInTx resolves the parent pointer to an active job, or nil when
// the pointer is absent or stale.
func (s *JobStore) activeJobInTx(tx *badger.Txn, pointerKey []byte) (*core.IngestionJob, error) {
	item, err := tx.Get(pointerKey)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var id string
	err = item.Value(func(val []byte) error {
		id = string(val)
		return nil
	})
	if err != nil {
		return nil, err
	}

	job, err := s.getJobInTx(tx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if !job.State.Active() {
		return nil, nil
	}
	return job, nil
}

// releasePointerInTx clears the parent pointer if it still names this job.
func (s *JobStore) releasePointerInTx(tx *badger.Txn, job *core.IngestionJob) error {
	pointerKey := makeJobParentKey(job.ParentID)
	item, err := tx.Get(pointerKey)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	}

	var id string
	err = item.Value(func(val []byte) error {
		id = string(val)
		return nil
	})
	if err != nil {
		return err
	}
	if id != job.Id {
		return nil
	}
	return tx.Delete(pointerKey)
}

func validateJob(job *core.IngestionJob) error {
	if job == nil || job.Id == "" {
		return core.ErrInvalidJob
	}
	if job.ParentID == "" {
		return core.ErrEmptyParentID
	}
	return core.ValidateJobState(job.State)
}
