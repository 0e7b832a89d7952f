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
	"math"
	"sort"

	"github.com/quarryai/quarry/core"
)

// FuseOptions controls weighted reciprocal rank fusion.
type FuseOptions struct {
	VectorWeight  float64
	KeywordWeight float64
	K             int // rank smoothing constant
	Limit         int
}

// FuseRRF merges a vector-ranked and a keyword-ranked candidate list with
// weighted reciprocal rank fusion. A chunk appearing in both lists gets
// contributions from both; ranks are 1-based. Ties break toward the
// better vector rank, then the smaller chunk id, so results are stable
// across runs.
func FuseRRF(vectorHits, keywordHits []core.SearchHit, opts FuseOptions) []core.SearchHit {
	type fused struct {
		hit        core.SearchHit
		score      float64
		vectorRank int
	}

	byID := make(map[core.ID]*fused, len(vectorHits)+len(keywordHits))

	for i, hit := range vectorHits {
		rank := i + 1
		byID[hit.ChunkID] = &fused{
			hit:        hit,
			score:      opts.VectorWeight / float64(opts.K+rank),
			vectorRank: rank,
		}
	}

	for i, hit := range keywordHits {
		rank := i + 1
		contribution := opts.KeywordWeight / float64(opts.K+rank)
		if f, ok := byID[hit.ChunkID]; ok {
			f.score += contribution
			continue
		}
		byID[hit.ChunkID] = &fused{
			hit:        hit,
			score:      contribution,
			vectorRank: math.MaxInt,
		}
	}

	results := make([]*fused, 0, len(byID))
	for _, f := range byID {
		results = append(results, f)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if results[i].vectorRank != results[j].vectorRank {
			return results[i].vectorRank < results[j].vectorRank
		}
		return results[i].hit.ChunkID < results[j].hit.ChunkID
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	hits := make([]core.SearchHit, len(results))
	for i, f := range results {
		hit := f.hit
		hit.Score = f.score
		hits[i] = hit
	}
	return hits
}
