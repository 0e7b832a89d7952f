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


package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/quarryai/quarry/core"
	"github.com/quarryai/quarry/storage"
)

// jobStore implements storage.JobStore on the unified store.
type jobStore struct {
	store  *Store
	logger *slog.Logger
}

var _ storage.JobStore = (*jobStore)(nil)

func newJobStore(store *Store) *jobStore {
	return &jobStore{
		store:  store,
		logger: slog.Default().With("component", "sqlite-jobs"),
	}
}

const activeStates = "('pending', 'running', 'retrying')"

// CreateJob persists a new job. The one-active-job-per-parent rule is
// enforced by idx_jobs_active_parent, so concurrent creates cannot race
// past a separate existence check.
func (s *jobStore) CreateJob(ctx context.Context, job *core.IngestionJob) error {
	if err := validateJob(job); err != nil {
		return err
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO jobs
			(id, parent_id, collection_id, state, progress_percent, current_stage, attempt_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.Id, job.ParentID, job.CollectionID, job.State.String(),
		job.ProgressPercent, job.CurrentStage, job.AttemptCount, job.LastError,
		job.CreatedAt.UTC(), job.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			if existing, lookupErr := s.ActiveJobForParent(ctx, job.ParentID); lookupErr == nil {
				return fmt.Errorf("%w: job %s", storage.ErrActiveJobExists, existing.Id)
			}
			return fmt.Errorf("%w: parent %s", storage.ErrActiveJobExists, job.ParentID)
		}
		return fmt.Errorf("creating job: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure.
func isUniqueViolation(err error) bool {
	var serr *sqlite3.Error
	return errors.As(err, &serr) && serr.Code() == sqlitelib.SQLITE_CONSTRAINT_UNIQUE
}

// GetJob returns a snapshot of a job.
func (s *jobStore) GetJob(ctx context.Context, id string) (*core.IngestionJob, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, parent_id, collection_id, state, progress_percent, current_stage, attempt_count, last_error, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

// UpdateJob persists the job's current state.
func (s *jobStore) UpdateJob(ctx context.Context, job *core.IngestionJob) error {
	if err := validateJob(job); err != nil {
		return err
	}

	job.UpdatedAt = time.Now().UTC()

	res, err := s.store.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, progress_percent = ?, current_stage = ?, attempt_count = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, job.State.String(), job.ProgressPercent, job.CurrentStage,
		job.AttemptCount, job.LastError, job.UpdatedAt, job.Id)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListJobs returns jobs newest first, up to limit.
func (s *jobStore) ListJobs(ctx context.Context, limit int) ([]*core.IngestionJob, error) {
	query := `
		SELECT id, parent_id, collection_id, state, progress_percent, current_stage, attempt_count, last_error, created_at, updated_at
		FROM jobs ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*core.IngestionJob
	for rows.Next() {
		job, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ActiveJobForParent returns the parent's pending, running, or retrying
// job, or ErrNotFound.
func (s *jobStore) ActiveJobForParent(ctx context.Context, parentID string) (*core.IngestionJob, error) {
	if parentID == "" {
		return nil, core.ErrEmptyParentID
	}

	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, parent_id, collection_id, state, progress_percent, current_stage, attempt_count, last_error, created_at, updated_at
		FROM jobs WHERE parent_id = ? AND state IN `+activeStates, parentID)
	return scanJob(row)
}

// RequeueInterrupted moves jobs a dead process left running or retrying
// back to pending.
func (s *jobStore) RequeueInterrupted(ctx context.Context) (int, error) {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = 'pending', current_stage = '', updated_at = ?
		WHERE state IN ('running', 'retrying')
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("requeuing jobs: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		s.logger.Info("requeued interrupted jobs", "jobs", affected)
	}
	return int(affected), nil
}

// Close closes the underlying store.
func (s *jobStore) Close() error {
	return s.store.Close()
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

func scanJob(row *sql.Row) (*core.IngestionJob, error) {
	var job core.IngestionJob
	var state string

	if err := row.Scan(&job.Id, &job.ParentID, &job.CollectionID, &state,
		&job.ProgressPercent, &job.CurrentStage, &job.AttemptCount,
		&job.LastError, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	parsed, err := core.ParseJobState(state)
	if err != nil {
		return nil, err
	}
	job.State = parsed
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}

func scanJobRows(rows *sql.Rows) (*core.IngestionJob, error) {
	var job core.IngestionJob
	var state string

	if err := rows.Scan(&job.Id, &job.ParentID, &job.CollectionID, &state,
		&job.ProgressPercent, &job.CurrentStage, &job.AttemptCount,
		&job.LastError, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	parsed, err := core.ParseJobState(state)
	if err != nil {
		return nil, err
	}
	job.State = parsed
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}
