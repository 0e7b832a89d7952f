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


package search

import (
	"testing"

	"github.com/quarryai/quarry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hit(id core.ID, text string) core.SearchHit {
	return core.SearchHit{ChunkID: id, ParentID: "doc-1", Text: text}
}

func TestFuseRRF_TieBreaksOnVectorRank(t *testing.T) {
	// X is 1st by vector and 3rd by keyword; Y is the mirror image.
	// With equal weights their fused scores are identical, so the
	// better vector rank must put X first.
	vector := []core.SearchHit{hit(10, "X"), hit(20, "Z"), hit(30, "Y")}
	keyword := []core.SearchHit{hit(30, "Y"), hit(20, "Z"), hit(10, "X")}

	fused := FuseRRF(vector, keyword, FuseOptions{
		VectorWeight:  0.5,
		KeywordWeight: 0.5,
		K:             60,
		Limit:         3,
	})

	require.Len(t, fused, 3)
	assert.Equal(t, "X", fused[0].Text)
	assert.Equal(t, "Y", fused[1].Text)
	assert.Equal(t, fused[0].Score, fused[1].Score)
	assert.Equal(t, "Z", fused[2].Text)
}

func TestFuseRRF_WeightsShiftRanking(t *testing.T) {
	vector := []core.SearchHit{hit(1, "v-best"), hit(2, "k-best")}
	keyword := []core.SearchHit{hit(2, "k-best"), hit(1, "v-best")}

	fused := FuseRRF(vector, keyword, FuseOptions{
		VectorWeight:  0.9,
		KeywordWeight: 0.1,
		K:             60,
		Limit:         2,
	})
	assert.Equal(t, "v-best", fused[0].Text)

	fused = FuseRRF(vector, keyword, FuseOptions{
		VectorWeight:  0.1,
		KeywordWeight: 0.9,
		K:             60,
		Limit:         2,
	})
	assert.Equal(t, "k-best", fused[0].Text)
}

func TestFuseRRF_SingleListCandidates(t *testing.T) {
	vector := []core.SearchHit{hit(1, "only-vector")}
	keyword := []core.SearchHit{hit(2, "only-keyword")}

	fused := FuseRRF(vector, keyword, FuseOptions{
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
		K:             60,
		Limit:         10,
	})

	require.Len(t, fused, 2)
	// Same rank in each list, so the higher weight wins.
	assert.Equal(t, "only-vector", fused[0].Text)
	assert.InDelta(t, 0.7/61.0, fused[0].Score, 1e-12)
	assert.InDelta(t, 0.3/61.0, fused[1].Score, 1e-12)
}

func TestFuseRRF_ZeroKeywordWeightPreservesVectorOrder(t *testing.T) {
	vector := []core.SearchHit{hit(1, "a"), hit(2, "b"), hit(3, "c")}
	keyword := []core.SearchHit{hit(3, "c"), hit(1, "a"), hit(2, "b")}

	fused := FuseRRF(vector, keyword, FuseOptions{
		VectorWeight:  1,
		KeywordWeight: 0,
		K:             60,
		Limit:         3,
	})

	require.Len(t, fused, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, fused[i].Text)
	}
}

func TestFuseRRF_TruncatesToLimit(t *testing.T) {
	vector := []core.SearchHit{hit(1, "a"), hit(2, "b"), hit(3, "c"), hit(4, "d")}

	fused := FuseRRF(vector, nil, FuseOptions{
		VectorWeight:  1,
		KeywordWeight: 0,
		K:             60,
		Limit:         2,
	})
	assert.Len(t, fused, 2)
}

func TestTokenizeQuery(t *testing.T) {
	terms := TokenizeQuery("The Quick, brown FOX is on a wall!")
	assert.Equal(t, []string{"quick", "brown", "fox", "wall"}, terms)

	assert.Empty(t, TokenizeQuery("the of and"))
	assert.Empty(t, TokenizeQuery(""))
}
