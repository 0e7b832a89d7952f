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
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/quarryai/quarry/core"
	"github.com/quarryai/quarry/embedding"
	"github.com/quarryai/quarry/search"
	"github.com/quarryai/quarry/storage"
)

// chunkRepository implements storage.ChunkRepository on the unified store.
type chunkRepository struct {
	store  *Store
	logger *slog.Logger
}

var _ storage.ChunkRepository = (*chunkRepository)(nil)

func newChunkRepository(store *Store) *chunkRepository {
	return &chunkRepository{
		store:  store,
		logger: slog.Default().With("component", "sqlite-chunks"),
	}
}

// SaveBatch persists one parent's chunks. Rows and their full-text index
// entries are written in a single transaction, so a batch is either
// fully visible or absent.
func (r *chunkRepository) SaveBatch(ctx context.Context, chunks []*core.ContentChunk) error {
	if err := storage.ValidateBatch(chunks, r.store.dimension); err != nil {
		return err
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, chunk := range chunks {
		attributesJSON, err := json.Marshal(chunk.Attributes)
		if err != nil {
			return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}

		rowID := int64(chunk.Id)
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO chunks
				(id, parent_id, parent_kind, collection_id, sequence_index, text, vector, attributes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rowID, chunk.ParentID, string(chunk.ParentKind), chunk.CollectionID,
			chunk.SequenceIndex, chunk.Text, float32SliceToBytes(chunk.Vector),
			string(attributesJSON), chunk.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("saving chunk %d: %w", chunk.Id, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_fts WHERE rowid = ?", rowID); err != nil {
			return fmt.Errorf("clearing lexical row %d: %w", chunk.Id, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO chunks_fts (rowid, text) VALUES (?, ?)", rowID, chunk.Text); err != nil {
			return fmt.Errorf("indexing chunk %d: %w", chunk.Id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}

	r.logger.Debug("saved chunk batch",
		"parent_id", chunks[0].ParentID,
		"chunks", len(chunks))
	return nil
}

// FindByParent returns a parent's chunks ordered by sequence index.
func (r *chunkRepository) FindByParent(ctx context.Context, parentID string) ([]*core.ContentChunk, error) {
	if parentID == "" {
		return nil, core.ErrEmptyParentID
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, parent_id, parent_kind, collection_id, sequence_index, text, vector, attributes, created_at
		FROM chunks WHERE parent_id = ?
		ORDER BY sequence_index
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*core.ContentChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// DeleteByParent removes a parent's chunks and their lexical rows in one
// transaction and returns the number removed.
func (r *chunkRepository) DeleteByParent(ctx context.Context, parentID string) (int, error) {
	if parentID == "" {
		return 0, core.ErrEmptyParentID
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM chunks_fts WHERE rowid IN (SELECT id FROM chunks WHERE parent_id = ?)",
		parentID)
	if err != nil {
		return 0, fmt.Errorf("deleting lexical rows: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE parent_id = ?", parentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}

	if count > 0 {
		r.logger.Debug("deleted chunks", "parent_id", parentID, "chunks", count)
	}
	return int(count), nil
}

// Search runs a vector-similarity query over the filtered rows.
func (r *chunkRepository) Search(ctx context.Context, query storage.SearchQuery) ([]core.SearchHit, error) {
	if len(query.Vector) == 0 || query.Limit <= 0 || query.Filter.CollectionID == "" {
		return nil, storage.ErrInvalidQuery
	}
	return r.vectorCandidates(ctx, query.Vector, query.Filter, query.Limit)
}

// HybridSearch fuses vector and FTS5 keyword candidates with weighted
// reciprocal rank fusion.
func (r *chunkRepository) HybridSearch(ctx context.Context, query storage.HybridQuery) ([]core.SearchHit, error) {
	if len(query.Vector) == 0 || query.Limit <= 0 || query.Filter.CollectionID == "" {
		return nil, storage.ErrInvalidQuery
	}
	query.Normalize()

	// Run the vector and keyword legs in parallel.
	var (
		vectorHits, keywordHits []core.SearchHit
		vectorErr, keywordErr   error
	)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		vectorHits, vectorErr = r.vectorCandidates(ctx, query.Vector, query.Filter, query.CandidatePool)
	}()

	go func() {
		defer wg.Done()
		keywordHits, keywordErr = r.keywordCandidates(ctx, query.Text, query.Filter, query.CandidatePool)
	}()

	wg.Wait()

	if vectorErr != nil {
		return nil, vectorErr
	}
	if keywordErr != nil {
		return nil, keywordErr
	}

	return search.FuseRRF(vectorHits, keywordHits, search.FuseOptions{
		VectorWeight:  query.VectorWeight,
		KeywordWeight: query.KeywordWeight,
		K:             query.RRFK,
		Limit:         query.Limit,
	}), nil
}

// Capabilities reports native lexical search support.
func (r *chunkRepository) Capabilities() storage.Capabilities {
	return storage.Capabilities{LexicalSearch: true}
}

// Close closes the underlying store.
func (r *chunkRepository) Close() error {
	return r.store.Close()
}

// vectorCandidates scans the filtered rows and ranks them by dot
// product. Vectors are stored normalized, so dot product equals cosine
// similarity.
func (r *chunkRepository) vectorCandidates(ctx context.Context, vector []float32, filter storage.SearchFilter, limit int) ([]core.SearchHit, error) {
	where, args := filterClause(filter)
	where += " AND vector IS NOT NULL"

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT c.id, c.parent_id, c.parent_kind, c.collection_id, c.sequence_index,
		       c.text, c.vector, c.attributes, c.created_at
		FROM chunks c WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vector candidates: %w", err)
	}
	defer rows.Close()

	type scored struct {
		chunk *core.ContentChunk
		score float64
	}
	var candidates []scored
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		if len(chunk.Vector) != len(vector) {
			continue
		}
		candidates = append(candidates, scored{
			chunk: chunk,
			score: float64(embedding.Dot(vector, chunk.Vector)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunk.Id < candidates[j].chunk.Id
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	hits := make([]core.SearchHit, len(candidates))
	for i, c := range candidates {
		hits[i] = hitFromChunk(c.chunk, c.score)
	}
	return hits, nil
}

// keywordCandidates runs the FTS5 query, best bm25 score first. A query
// with no usable keyword terms yields an empty list, which fusion
// treats as a zero keyword signal.
func (r *chunkRepository) keywordCandidates(ctx context.Context, text string, filter storage.SearchFilter, limit int) ([]core.SearchHit, error) {
	match := ftsMatchExpr(text)
	if match == "" {
		return nil, nil
	}

	where, args := filterClause(filter)
	args = append([]any{match}, args...)
	args = append(args, limit)

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT c.id, c.parent_id, c.parent_kind, c.collection_id, c.sequence_index,
		       c.text, c.vector, c.attributes, c.created_at,
		       bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		WHERE chunks_fts MATCH ? AND `+where+`
		ORDER BY rank
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying keyword candidates: %w", err)
	}
	defer rows.Close()

	var hits []core.SearchHit
	for rows.Next() {
		chunk, rank, err := scanChunkWithRank(rows)
		if err != nil {
			return nil, err
		}
		// bm25 is smaller-is-better; negate so hit scores stay
		// descending like every other list.
		hits = append(hits, hitFromChunk(chunk, -rank))
	}
	return hits, rows.Err()
}

func hitFromChunk(chunk *core.ContentChunk, score float64) core.SearchHit {
	return core.SearchHit{
		ChunkID:    chunk.Id,
		ParentID:   chunk.ParentID,
		ParentKind: chunk.ParentKind,
		Text:       chunk.Text,
		Score:      score,
		Attributes: chunk.Attributes,
	}
}

// filterClause builds the WHERE fragment for a search filter.
func filterClause(filter storage.SearchFilter) (string, []any) {
	clauses := []string{"c.collection_id = ?"}
	args := []any{filter.CollectionID}
	if filter.ParentKind != "" {
		clauses = append(clauses, "c.parent_kind = ?")
		args = append(args, string(filter.ParentKind))
	}
	if filter.ParentID != "" {
		clauses = append(clauses, "c.parent_id = ?")
		args = append(args, filter.ParentID)
	}
	return strings.Join(clauses, " AND "), args
}

// ftsMatchExpr builds an FTS5 MATCH expression from query text. Terms
// are quoted so user input cannot inject FTS syntax, and OR-joined for
// recall; ranking orders the matches.
func ftsMatchExpr(text string) string {
	terms := search.TokenizeQuery(text)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(rows rowScanner) (*core.ContentChunk, error) {
	var chunk core.ContentChunk
	var id int64
	var kind string
	var vectorBlob []byte
	var attributesJSON string

	if err := rows.Scan(&id, &chunk.ParentID, &kind, &chunk.CollectionID,
		&chunk.SequenceIndex, &chunk.Text, &vectorBlob, &attributesJSON,
		&chunk.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.Id = core.ID(id)
	chunk.ParentKind = core.ContentKind(kind)
	chunk.Vector = bytesToFloat32Slice(vectorBlob)
	if attributesJSON != "" && attributesJSON != "{}" {
		if err := json.Unmarshal([]byte(attributesJSON), &chunk.Attributes); err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
	}
	chunk.CreatedAt = chunk.CreatedAt.UTC()
	return &chunk, nil
}

func scanChunkWithRank(rows *sql.Rows) (*core.ContentChunk, float64, error) {
	var chunk core.ContentChunk
	var id int64
	var kind string
	var vectorBlob []byte
	var attributesJSON string
	var rank float64

	if err := rows.Scan(&id, &chunk.ParentID, &kind, &chunk.CollectionID,
		&chunk.SequenceIndex, &chunk.Text, &vectorBlob, &attributesJSON,
		&chunk.CreatedAt, &rank); err != nil {
		return nil, 0, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.Id = core.ID(id)
	chunk.ParentKind = core.ContentKind(kind)
	chunk.Vector = bytesToFloat32Slice(vectorBlob)
	if attributesJSON != "" && attributesJSON != "{}" {
		if err := json.Unmarshal([]byte(attributesJSON), &chunk.Attributes); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
	}
	chunk.CreatedAt = chunk.CreatedAt.UTC()
	return &chunk, rank, nil
}
