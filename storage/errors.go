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


package storage

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrEmptyBatch indicates a SaveBatch call with no chunks.
	ErrEmptyBatch = errors.New("chunk batch is empty")

	// ErrMixedParents indicates a SaveBatch call spanning multiple parents.
	// Batches are the atomic unit of one parent's ingestion pass.
	ErrMixedParents = errors.New("chunk batch spans multiple parents")

	// ErrMissingVector indicates a chunk reached SaveBatch without an
	// embedding vector.
	ErrMissingVector = errors.New("chunk has no embedding vector")

	// ErrLexicalUnsupported indicates the backend has no native keyword
	// search capability.
	ErrLexicalUnsupported = errors.New("lexical search not supported by backend")

	// ErrActiveJobExists indicates a parent already owns an active
	// ingestion job. At most one pending/running/retrying job may exist
	// per parent.
	ErrActiveJobExists = errors.New("active ingestion job already exists for parent")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")
)
