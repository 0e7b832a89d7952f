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


// Package storage defines the persistence contracts of the retrieval
// engine: the ChunkRepository served by two interchangeable backends
// (storage/badger, the vector-index variant, and storage/sqlite, the
// unified variant) and the JobStore backing the ingestion queue.
//
// Backend choice changes consistency guarantees, not query-result shape:
// both backends return identical hit projections, but only the unified
// backend writes chunks, metadata, and the lexical index atomically.
// Callers that need to reason about partial-failure behavior consult
// Capabilities and the per-backend documentation.
package storage
