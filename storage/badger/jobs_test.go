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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quarryai/quarry/core"
	"github.com/quarryai/quarry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(parentID string, createdAt time.Time) *core.IngestionJob {
	return &core.IngestionJob{
		Id:           uuid.NewString(),
		ParentID:     parentID,
		CollectionID: "col-1",
		State:        core.JobStatePending,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestJobStore_CreateAndGet(t *testing.T) {
	_, store, backend, err := NewMemoryRepositories(3)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	job := newTestJob("doc-1", time.Now().UTC())
	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, job.Id, got.Id)
	assert.Equal(t, "doc-1", got.ParentID)
	assert.Equal(t, core.JobStatePending, got.State)

	_, err = store.GetJob(ctx, uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJobStore_ActiveJobMutualExclusion(t *testing.T) {
	_, store, backend, err := NewMemoryRepositories(3)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	first := newTestJob("doc-1", time.Now().UTC())
	require.NoError(t, store.CreateJob(ctx, first))

	// Second job for the same parent is rejected while the first is active.
	err = store.CreateJob(ctx, newTestJob("doc-1", time.Now().UTC()))
	assert.ErrorIs(t, err, storage.ErrActiveJobExists)

	// A different parent is unaffected.
	require.NoError(t, store.CreateJob(ctx, newTestJob("doc-2", time.Now().UTC())))

	// Finishing the first job releases the slot.
	first.State = core.JobStateSucceeded
	first.ProgressPercent = 100
	require.NoError(t, store.UpdateJob(ctx, first))

	require.NoError(t, store.CreateJob(ctx, newTestJob("doc-1", time.Now().UTC())))
}

func TestJobStore_ActiveJobForParent(t *testing.T) {
	_, store, backend, err := NewMemoryRepositories(3)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()

	_, err = store.ActiveJobForParent(ctx, "doc-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	job := newTestJob("doc-1", time.Now().UTC())
	require.NoError(t, store.CreateJob(ctx, job))

	active, err := store.ActiveJobForParent(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, job.Id, active.Id)

	job.State = core.JobStateCancelled
	require.NoError(t, store.UpdateJob(ctx, job))

	_, err = store.ActiveJobForParent(ctx, "doc-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJobStore_UpdateJob(t *testing.T) {
	_, store, backend, err := NewMemoryRepositories(3)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	job := newTestJob("doc-1", time.Now().UTC())
	require.NoError(t, store.CreateJob(ctx, job))

	job.State = core.JobStateRunning
	job.ProgressPercent = 40
	job.CurrentStage = "embedding"
	job.AttemptCount = 1
	require.NoError(t, store.UpdateJob(ctx, job))

	got, err := store.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateRunning, got.State)
	assert.Equal(t, 40, got.ProgressPercent)
	assert.Equal(t, "embedding", got.CurrentStage)
	assert.Equal(t, 1, got.AttemptCount)

	missing := newTestJob("doc-9", time.Now().UTC())
	err = store.UpdateJob(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJobStore_ListJobsNewestFirst(t *testing.T) {
	_, store, backend, err := NewMemoryRepositories(3)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	base := time.Now().UTC()
	var ids []string
	for i := 0; i < 5; i++ {
		job := newTestJob(uuid.NewString(), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.CreateJob(ctx, job))
		ids = append(ids, job.Id)
	}

	jobs, err := store.ListJobs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 5)
	for i, job := range jobs {
		assert.Equal(t, ids[len(ids)-1-i], job.Id)
	}

	jobs, err = store.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[4], jobs[0].Id)
	assert.Equal(t, ids[3], jobs[1].Id)
}

func TestJobStore_RequeueInterrupted(t *testing.T) {
	_, store, backend, err := NewMemoryRepositories(3)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()

	running := newTestJob("doc-1", time.Now().UTC())
	require.NoError(t, store.CreateJob(ctx, running))
	running.State = core.JobStateRunning
	running.CurrentStage = "embedding"
	require.NoError(t, store.UpdateJob(ctx, running))

	retrying := newTestJob("doc-2", time.Now().UTC())
	require.NoError(t, store.CreateJob(ctx, retrying))
	retrying.State = core.JobStateRetrying
	require.NoError(t, store.UpdateJob(ctx, retrying))

	done := newTestJob("doc-3", time.Now().UTC())
	require.NoError(t, store.CreateJob(ctx, done))
	done.State = core.JobStateSucceeded
	require.NoError(t, store.UpdateJob(ctx, done))

	requeued, err := store.RequeueInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, requeued)

	got, err := store.GetJob(ctx, running.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatePending, got.State)
	assert.Empty(t, got.CurrentStage)

	got, err = store.GetJob(ctx, done.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateSucceeded, got.State)
}

func TestJobStore_CreateJobValidation(t *testing.T) {
	_, store, backend, err := NewMemoryRepositories(3)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()

	err = store.CreateJob(ctx, &core.IngestionJob{ParentID: "doc-1", State: core.JobStatePending})
	assert.ErrorIs(t, err, core.ErrInvalidJob)

	err = store.CreateJob(ctx, &core.IngestionJob{Id: uuid.NewString(), State: core.JobStatePending})
	assert.ErrorIs(t, err, core.ErrEmptyParentID)

	err = store.CreateJob(ctx, &core.IngestionJob{Id: uuid.NewString(), ParentID: "doc-1"})
	assert.ErrorIs(t, err, core.ErrInvalidJobState)
}
