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

import "errors"

var (
	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrRepositoryRequired is returned when a chunk repository is not provided.
	ErrRepositoryRequired = errors.New("chunk repository required")

	// ErrJobStoreRequired is returned when a job store is not provided.
	ErrJobStoreRequired = errors.New("job store required")

	// ErrClosed is returned when the orchestrator is closed.
	ErrClosed = errors.New("orchestrator is closed")

	// ErrJobNotCancellable is returned when cancelling a job that has
	// already reached a terminal state.
	ErrJobNotCancellable = errors.New("job already in a terminal state")
)

// errCancelled aborts an attempt when a cancellation request is observed
// at a stage boundary.
var errCancelled = errors.New("cancellation requested")

// errorKind is the stable machine-readable prefix of a job's LastError.
type errorKind string

const (
	kindValidation errorKind = "validation"
	kindTransient  errorKind = "transient"
	kindPermanent  errorKind = "permanent"
)

// jobError pairs a stage failure with its classification. Error renders
// "kind: message", which is the persisted LastError format.
type jobError struct {
	kind errorKind
	err  error
}

func (e *jobError) Error() string {
	return string(e.kind) + ": " + e.err.Error()
}

func (e *jobError) Unwrap() error {
	return e.err
}

func (e *jobError) retriable() bool {
	return e.kind == kindTransient
}
