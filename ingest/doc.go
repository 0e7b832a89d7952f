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


// Package ingest orchestrates asynchronous ingestion jobs.
//
// The Orchestrator runs the chunk, embed, store pipeline for submitted
// content items on a bounded worker pool. Jobs are persisted through a
// JobStore, so their state survives restarts; at most one active job
// exists per parent item. Stages within a job run sequentially while
// jobs for different parents run concurrently.
//
// Transient stage failures retry the whole attempt with capped
// exponential backoff and jitter. Cancellation is cooperative and
// observed at stage boundaries only; an in-flight provider call is
// never interrupted mid-request.
package ingest
