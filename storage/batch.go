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

import (
	"fmt"

	"github.com/quarryai/quarry/core"
)

// ValidateBatch checks the invariants every SaveBatch implementation
// shares: a non-empty batch of valid, embedded chunks base on a single
// parent. dimension 0 disables the width check.
func ValidateBatch(chunks []*core.ContentChunk, dimension int) error {
	if len(chunks) == 0 {
		return ErrEmptyBatch
	}
	parentID := chunks[0].ParentID
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}
		if chunk.ParentID != parentID {
			return ErrMixedParents
		}
		if !chunk.Embedded() {
			return fmt.Errorf("%w: chunk %d", ErrMissingVector, chunk.Id)
		}
		if err := core.ValidateVectorDim(chunk.Vector, dimension); err != nil {
			return err
		}
	}
	return nil
}
