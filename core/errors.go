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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidContentItem indicates a ContentItem failed validation.
	ErrInvalidContentItem = errors.New("invalid content item")

	// ErrInvalidChunk indicates a ContentChunk failed validation.
	ErrInvalidChunk = errors.New("invalid content chunk")

	// ErrEmptyParentID indicates the ParentID field is empty.
	ErrEmptyParentID = errors.New("parent id cannot be empty")

	// ErrEmptyCollectionID indicates the CollectionID field is empty.
	ErrEmptyCollectionID = errors.New("collection id cannot be empty")

	// ErrEmptyChunkText indicates a chunk Text field is empty.
	ErrEmptyChunkText = errors.New("chunk text cannot be empty")

	// ErrEmptyContentKind indicates the ContentKind field is empty.
	ErrEmptyContentKind = errors.New("content kind cannot be empty")

	// ErrVectorDimension indicates a vector does not match the deployment embedding dimension.
	ErrVectorDimension = errors.New("vector dimension mismatch")

	// ErrInvalidJob indicates an IngestionJob failed validation.
	ErrInvalidJob = errors.New("invalid ingestion job")

	// ErrInvalidJobState indicates an invalid JobState value.
	ErrInvalidJobState = errors.New("invalid job state")
)
