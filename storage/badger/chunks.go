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
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/quarryai/quarry/core"
	"github.com/quarryai/quarry/embedding"
	"github.com/quarryai/quarry/storage"
)

// ChunkRepository implements storage.ChunkRepository on BadgerDB.
// Vectors live in the index keyspace, full records in the metadata
// keyspace, and a per-parent composite key keeps chunks enumerable in
// sequence order.
type ChunkRepository struct {
	backend   *Backend
	dimension int
	logger    *slog.Logger
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a chunk repository on the given backend.
// dimension is the expected embedding width; 0 disables the check.
func NewChunkRepository(backend *Backend, dimension int) *ChunkRepository {
	return &ChunkRepository{
		backend:   backend,
		dimension: dimension,
		logger:    slog.Default().With("component", "badger-chunks"),
	}
}

// SaveBatch persists one parent's chunks, index keyspace first. A failed
// index write aborts the whole batch; a failed metadata write triggers a
// best-effort rollback of the index entries just written.
func (r *ChunkRepository) SaveBatch(ctx context.Context, chunks []*core.ContentChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if err := storage.ValidateBatch(chunks, r.dimension); err != nil {
		return err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			rec := &storage.IndexRecord{
				ChunkID:      chunk.Id,
				ParentID:     chunk.ParentID,
				ParentKind:   chunk.ParentKind,
				CollectionID: chunk.CollectionID,
				Vector:       chunk.Vector,
			}
			if err := tx.Set(makeChunkIndexKey(chunk.Id), storage.MarshalIndexRecord(rec)); err != nil {
				return err
			}
		}
		return nil
	}, true)
	if err != nil {
		return fmt.Errorf("writing index records: %w", err)
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			if err := tx.Set(makeChunkMetaKey(chunk.Id), storage.MarshalChunk(chunk)); err != nil {
				return err
			}
			parentKey := makeChunkParentKey(chunk.ParentID, chunk.SequenceIndex)
			if err := tx.Set(parentKey, storage.MarshalID(chunk.Id)); err != nil {
				return err
			}
		}
		return nil
	}, true)
	if err != nil {
		r.rollbackIndex(chunks)
		return fmt.Errorf("writing chunk metadata: %w", err)
	}

	r.logger.Debug("saved chunk batch",
		"parent_id", chunks[0].ParentID,
		"chunks", len(chunks))
	return nil
}

// rollbackIndex removes index records written by a batch whose metadata
// write failed. Leftover entries only cost transiently dangling hits, so
// a rollback failure is logged and swallowed.
func (r *ChunkRepository) rollbackIndex(chunks []*core.ContentChunk) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			if err := tx.Delete(makeChunkIndexKey(chunk.Id)); err != nil {
				return err
			}
		}
		return nil
	}, true)
	if err != nil {
		r.logger.Warn("index rollback failed, dangling index records remain",
			"parent_id", chunks[0].ParentID,
			"error", err)
	}
}

// FindByParent returns a parent's chunks ordered by sequence index.
func (r *ChunkRepository) FindByParent(ctx context.Context, parentID string) ([]*core.ContentChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	if parentID == "" {
		return nil, core.ErrEmptyParentID
	}

	var chunks []*core.ContentChunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeChunkParentScanPrefix(parentID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var id core.ID
			err := it.Item().Value(func(val []byte) error {
				var err error
				id, err = storage.UnmarshalID(val)
				return err
			})
			if err != nil {
				return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
			}

			chunk, err := r.getChunk(tx, id)
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// DeleteByParent removes a parent's chunks from both keyspaces and
// returns how many were removed. A failed index delete is logged and
// the metadata delete still proceeds.
func (r *ChunkRepository) DeleteByParent(ctx context.Context, parentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if r.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}
	if parentID == "" {
		return 0, core.ErrEmptyParentID
	}

	// Collect ids and parent-index keys in a read pass first so the
	// write transactions stay small.
	var ids []core.ID
	var parentKeys [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeChunkParentScanPrefix(parentID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			parentKeys = append(parentKeys, item.KeyCopy(nil))

			var id core.ID
			err := item.Value(func(val []byte) error {
				var err error
				id, err = storage.UnmarshalID(val)
				return err
			})
			if err != nil {
				return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
			}
			ids = append(ids, id)
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := tx.Delete(makeChunkIndexKey(id)); err != nil {
				return err
			}
		}
		return nil
	}, true)
	if err != nil {
		r.logger.Warn("index delete failed, proceeding with metadata delete",
			"parent_id", parentID,
			"error", err)
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		for i, id := range ids {
			if err := tx.Delete(makeChunkMetaKey(id)); err != nil {
				return err
			}
			if err := tx.Delete(parentKeys[i]); err != nil {
				return err
			}
		}
		return nil
	}, true)
	if err != nil {
		return 0, fmt.Errorf("deleting chunk metadata: %w", err)
	}

	r.logger.Debug("deleted chunks", "parent_id", parentID, "chunks", len(ids))
	return len(ids), nil
}

// Search scans the index keyspace, ranks candidates by dot product and
// hydrates the top hits from the metadata keyspace. Vectors are stored
// normalized, so dot product equals cosine similarity.
func (r *ChunkRepository) Search(ctx context.Context, query storage.SearchQuery) ([]core.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	if len(query.Vector) == 0 || query.Limit <= 0 || query.Filter.CollectionID == "" {
		return nil, storage.ErrInvalidQuery
	}

	type scored struct {
		id    core.ID
		score float64
	}

	var candidates []scored
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(chunkIndexPrefix + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec *storage.IndexRecord
			err := it.Item().Value(func(val []byte) error {
				var err error
				rec, err = storage.UnmarshalIndexRecord(val)
				return err
			})
			if err != nil {
				return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
			}
			if !matchesFilter(rec, query.Filter) {
				continue
			}
			if len(rec.Vector) != len(query.Vector) {
				continue
			}
			candidates = append(candidates, scored{
				id:    rec.ChunkID,
				score: float64(embedding.Dot(query.Vector, rec.Vector)),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > query.Limit {
		candidates = candidates[:query.Limit]
	}

	hits := make([]core.SearchHit, 0, len(candidates))
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		for _, c := range candidates {
			chunk, err := r.getChunk(tx, c.id)
			if err != nil {
				// Metadata may lag the index after a partial
				// delete. Skip the hit rather than failing the
				// whole query.
				r.logger.Debug("index hit without metadata", "chunk_id", c.id)
				continue
			}
			hits = append(hits, core.SearchHit{
				ChunkID:    chunk.Id,
				ParentID:   chunk.ParentID,
				ParentKind: chunk.ParentKind,
				Text:       chunk.Text,
				Score:      c.score,
				Attributes: chunk.Attributes,
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// HybridSearch is unsupported: this backend keeps no keyword index.
func (r *ChunkRepository) HybridSearch(ctx context.Context, query storage.HybridQuery) ([]core.SearchHit, error) {
	return nil, storage.ErrLexicalUnsupported
}

// Capabilities reports that the backend has no lexical index.
func (r *ChunkRepository) Capabilities() storage.Capabilities {
	return storage.Capabilities{LexicalSearch: false}
}

// Close closes the underlying backend.
func (r *ChunkRepository) Close() error {
	return r.backend.Close()
}

func (r *ChunkRepository) getChunk(tx *badger.Txn, id core.ID) (*core.ContentChunk, error) {
	item, err := tx.Get(makeChunkMetaKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var chunk *core.ContentChunk
	err = item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return chunk, nil
}

func matchesFilter(rec *storage.IndexRecord, filter storage.SearchFilter) bool {
	if rec.CollectionID != filter.CollectionID {
		return false
	}
	if filter.ParentKind != "" && rec.ParentKind != filter.ParentKind {
		return false
	}
	if filter.ParentID != "" && rec.ParentID != filter.ParentID {
		return false
	}
	return true
}
