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

import "fmt"

// ValidateContentItem validates a ContentItem according to domain rules.
//
// Validation rules:
//   - ParentID must not be empty
//   - CollectionID must not be empty
//   - Kind must not be empty (unknown kinds are tolerated; the chunker
//     falls back to the generic policy for them)
//
// NOT validated:
//   - Units (an item with zero units chunks to zero chunks, not an error)
func ValidateContentItem(item *ContentItem) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidContentItem)
	}

	if item.ParentID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidContentItem, ErrEmptyParentID)
	}

	if item.CollectionID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidContentItem, ErrEmptyCollectionID)
	}

	if item.Kind == "" {
		return fmt.Errorf("%w: %w", ErrInvalidContentItem, ErrEmptyContentKind)
	}

	return nil
}

// ValidateChunk validates a ContentChunk according to domain rules.
//
// Validation rules:
//   - ParentID, CollectionID, and Text must not be empty
//   - ParentKind must not be empty
//
// NOT validated:
//   - Vector (nil until the embedding generator runs; dimension is
//     checked at write time via ValidateVectorDim)
func ValidateChunk(chunk *ContentChunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.ParentID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyParentID)
	}

	if chunk.CollectionID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyCollectionID)
	}

	if chunk.ParentKind == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContentKind)
	}

	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyChunkText)
	}

	return nil
}

// ValidateVectorDim checks a vector against the deployment-wide embedding
// dimension. A nil vector is valid; chunks are persisted without vectors
// only through paths that explicitly allow it. A non-positive dim
// disables the check.
func ValidateVectorDim(vector []float32, dim int) error {
	if vector == nil || dim <= 0 {
		return nil
	}
	if len(vector) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrVectorDimension, len(vector), dim)
	}
	return nil
}

// ValidateJobState validates that a JobState has a valid value.
func ValidateJobState(state JobState) error {
	if state < JobStatePending || state > JobStateCancelled {
		return fmt.Errorf("%w: value %d", ErrInvalidJobState, state)
	}
	return nil
}
