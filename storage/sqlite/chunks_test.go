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
	"testing"
	"time"

	"github.com/quarryai/quarry/core"
	"github.com/quarryai/quarry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:", 3)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestChunk(parentID string, seq int, text string, vector []float32) *core.ContentChunk {
	return &core.ContentChunk{
		Id:            core.ChunkIDFor(parentID, seq, text),
		ParentID:      parentID,
		ParentKind:    core.KindDocument,
		CollectionID:  "col-1",
		SequenceIndex: seq,
		Text:          text,
		Vector:        vector,
		Attributes:    map[string]string{core.AttrPageNumber: "1"},
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestChunkRepository_SaveAndFindByParent(t *testing.T) {
	repo := newTestStore(t).ChunkRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveBatch(ctx, []*core.ContentChunk{
		newTestChunk("doc-1", 0, "first part", []float32{1, 0, 0}),
		newTestChunk("doc-1", 1, "second part", []float32{0, 1, 0}),
	}))

	found, err := repo.FindByParent(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "first part", found[0].Text)
	assert.Equal(t, 0, found[0].SequenceIndex)
	assert.Equal(t, []float32{0, 1, 0}, found[1].Vector)
	assert.Equal(t, "1", found[0].Attributes[core.AttrPageNumber])
	assert.Equal(t, core.KindDocument, found[0].ParentKind)
}

func TestChunkRepository_SaveBatchValidation(t *testing.T) {
	repo := newTestStore(t).ChunkRepository()
	ctx := context.Background()

	assert.ErrorIs(t, repo.SaveBatch(ctx, nil), storage.ErrEmptyBatch)

	mixed := []*core.ContentChunk{
		newTestChunk("doc-1", 0, "a", []float32{1, 0, 0}),
		newTestChunk("doc-2", 0, "b", []float32{0, 1, 0}),
	}
	assert.ErrorIs(t, repo.SaveBatch(ctx, mixed), storage.ErrMixedParents)

	unembedded := newTestChunk("doc-1", 0, "a", nil)
	assert.ErrorIs(t, repo.SaveBatch(ctx, []*core.ContentChunk{unembedded}), storage.ErrMissingVector)

	wrongDim := newTestChunk("doc-1", 0, "a", []float32{1, 0})
	assert.ErrorIs(t, repo.SaveBatch(ctx, []*core.ContentChunk{wrongDim}), core.ErrVectorDimension)
}

func TestChunkRepository_DeleteByParent(t *testing.T) {
	repo := newTestStore(t).ChunkRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveBatch(ctx, []*core.ContentChunk{
		newTestChunk("doc-1", 0, "alpha", []float32{1, 0, 0}),
		newTestChunk("doc-1", 1, "beta", []float32{0, 1, 0}),
	}))
	require.NoError(t, repo.SaveBatch(ctx, []*core.ContentChunk{
		newTestChunk("doc-2", 0, "gamma", []float32{0, 0, 1}),
	}))

	deleted, err := repo.DeleteByParent(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	found, err := repo.FindByParent(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, found)

	// Deleted chunks no longer surface through keyword search either.
	hits, err := repo.HybridSearch(ctx, storage.HybridQuery{
		Vector: []float32{1, 0, 0},
		Text:   "alpha",
		Filter: storage.SearchFilter{CollectionID: "col-1"},
		Limit:  10,
	})
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotEqual(t, "alpha", hit.Text)
	}

	deleted, err = repo.DeleteByParent(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestChunkRepository_Search(t *testing.T) {
	repo := newTestStore(t).ChunkRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveBatch(ctx, []*core.ContentChunk{
		newTestChunk("doc-1", 0, "close match", []float32{1, 0, 0}),
		newTestChunk("doc-1", 1, "far match", []float32{0, 1, 0}),
		newTestChunk("doc-1", 2, "middle match", []float32{0.7071, 0.7071, 0}),
	}))

	hits, err := repo.Search(ctx, storage.SearchQuery{
		Vector: []float32{1, 0, 0},
		Filter: storage.SearchFilter{CollectionID: "col-1"},
		Limit:  2,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "close match", hits[0].Text)
	assert.Equal(t, "middle match", hits[1].Text)
}

func TestChunkRepository_SearchFilters(t *testing.T) {
	repo := newTestStore(t).ChunkRepository()
	ctx := context.Background()

	audio := newTestChunk("ep-1", 0, "spoken words", []float32{1, 0, 0})
	audio.ParentKind = core.KindAudio
	other := newTestChunk("doc-9", 0, "elsewhere", []float32{1, 0, 0})
	other.CollectionID = "col-2"

	require.NoError(t, repo.SaveBatch(ctx, []*core.ContentChunk{
		newTestChunk("doc-1", 0, "written words", []float32{1, 0, 0}),
	}))
	require.NoError(t, repo.SaveBatch(ctx, []*core.ContentChunk{audio}))
	require.NoError(t, repo.SaveBatch(ctx, []*core.ContentChunk{other}))

	hits, err := repo.Search(ctx, storage.SearchQuery{
		Vector: []float32{1, 0, 0},
		Filter: storage.SearchFilter{CollectionID: "col-1"},
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = repo.Search(ctx, storage.SearchQuery{
		Vector: []float32{1, 0, 0},
		Filter: storage.SearchFilter{CollectionID: "col-1", ParentKind: core.KindAudio},
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ep-1", hits[0].ParentID)
}

func TestChunkRepository_HybridSearchFindsKeywordOnlyMatch(t *testing.T) {
	repo := newTestStore(t).ChunkRepository()
	ctx := context.Background()

	// The zirconium chunk is far from the query vector but is the only
	// lexical match.
	require.NoError(t, repo.SaveBatch(ctx, []*core.ContentChunk{
		newTestChunk("doc-1", 0, "general prose about nothing", []float32{1, 0, 0}),
		newTestChunk("doc-1", 1, "more general prose", []float32{0.9, 0.4359, 0}),
		newTestChunk("doc-1", 2, "zirconium crucible supplier list", []float32{0, 0, 1}),
	}))

	hits, err := repo.HybridSearch(ctx, storage.HybridQuery{
		Vector:        []float32{1, 0, 0},
		Text:          "zirconium crucible",
		Filter:        storage.SearchFilter{CollectionID: "col-1"},
		Limit:         3,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
	})
	require.NoError(t, err)

	var texts []string
	for _, hit := range hits {
		texts = append(texts, hit.Text)
	}
	assert.Contains(t, texts, "zirconium crucible supplier list")
}

func TestChunkRepository_HybridVectorOnlyWeightsMatchPlainSearch(t *testing.T) {
	repo := newTestStore(t).ChunkRepository()
	ctx := context.Background()

	// Every chunk shares the query term so both candidate lists hold
	// the same members and ordering differences come from weights only.
	require.NoError(t, repo.SaveBatch(ctx, []*core.ContentChunk{
		newTestChunk("doc-1", 0, "quarry stone alpha", []float32{1, 0, 0}),
		newTestChunk("doc-1", 1, "quarry stone beta", []float32{0, 1, 0}),
		newTestChunk("doc-1", 2, "quarry stone gamma", []float32{0.7071, 0.7071, 0}),
	}))

	plain, err := repo.Search(ctx, storage.SearchQuery{
		Vector: []float32{1, 0, 0},
		Filter: storage.SearchFilter{CollectionID: "col-1"},
		Limit:  3,
	})
	require.NoError(t, err)

	fused, err := repo.HybridSearch(ctx, storage.HybridQuery{
		Vector:        []float32{1, 0, 0},
		Text:          "stone",
		Filter:        storage.SearchFilter{CollectionID: "col-1"},
		Limit:         3,
		VectorWeight:  1,
		KeywordWeight: 0,
	})
	require.NoError(t, err)

	require.Len(t, fused, len(plain))
	for i := range plain {
		assert.Equal(t, plain[i].ChunkID, fused[i].ChunkID)
	}
}

func TestChunkRepository_HybridSearchNoKeywordSignal(t *testing.T) {
	repo := newTestStore(t).ChunkRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveBatch(ctx, []*core.ContentChunk{
		newTestChunk("doc-1", 0, "some text", []float32{1, 0, 0}),
	}))

	// A query of pure stop words has no keyword terms; the vector
	// signal alone ranks the results.
	hits, err := repo.HybridSearch(ctx, storage.HybridQuery{
		Vector:        []float32{1, 0, 0},
		Text:          "the of and",
		Filter:        storage.SearchFilter{CollectionID: "col-1"},
		Limit:         5,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestChunkRepository_Capabilities(t *testing.T) {
	repo := newTestStore(t).ChunkRepository()
	assert.True(t, repo.Capabilities().LexicalSearch)
}
