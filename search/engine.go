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
	"context"
	"errors"
	"log/slog"

	"github.com/quarryai/quarry/config"
	"github.com/quarryai/quarry/core"
	"github.com/quarryai/quarry/storage"
)

// QueryEmbedder turns query text into a normalized query vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Mode selects the retrieval strategy for a request.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeHybrid Mode = "hybrid"
)

// Request is one search call.
type Request struct {
	CollectionID string
	Query        string
	Limit        int
	Mode         Mode             // defaults to ModeHybrid
	ParentKind   core.ContentKind // "" matches any kind
	ParentID     string           // "" matches any parent
}

// Result carries the hits plus a degradation marker. Degraded is set
// when hybrid mode fell back to vector-only because the backend has no
// lexical index.
type Result struct {
	Hits           []core.SearchHit
	Degraded       bool
	DegradedReason string
}

// Engine runs search requests against a chunk repository.
type Engine struct {
	repository storage.ChunkRepository
	embedder   QueryEmbedder
	cfg        config.SearchConfig
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a new search engine.
func NewEngine(repository storage.ChunkRepository, embedder QueryEmbedder, cfg config.SearchConfig, opts ...Option) (*Engine, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		repository: repository,
		embedder:   embedder,
		cfg:        cfg,
		logger:     slog.Default().With("component", "search"),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Search runs a request and returns its result. Failures never escape
// this boundary: a malformed request or an unreachable backend logs the
// error and yields an empty result, so retrieval callers degrade
// instead of crashing.
func (e *Engine) Search(ctx context.Context, req Request) *Result {
	return e.SearchWithMonitor(ctx, req, nil)
}

// SearchWithMonitor runs a request with observation hooks.
// The monitor receives callbacks at each stage of the query.
func (e *Engine) SearchWithMonitor(ctx context.Context, req Request, monitor Monitor) *Result {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(req.Query)

	result := &Result{}
	if err := validateRequest(req); err != nil {
		e.logger.Error("invalid search request", "err", err)
		monitor.Finish(nil)
		return result
	}

	vector, err := e.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		e.logger.Error("error embedding query", "query", req.Query, "err", err)
		monitor.Finish(nil)
		return result
	}
	monitor.AfterQueryEmbedding(len(vector))

	filter := storage.SearchFilter{
		CollectionID: req.CollectionID,
		ParentKind:   req.ParentKind,
		ParentID:     req.ParentID,
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}

	var hits []core.SearchHit
	switch mode {
	case ModeVector:
		hits, err = e.vectorSearch(ctx, vector, filter, req.Limit)
	case ModeHybrid:
		hits, err = e.hybridSearch(ctx, vector, req.Query, filter, req.Limit, result, monitor)
	default:
		e.logger.Error("unknown search mode", "mode", string(mode))
		monitor.Finish(nil)
		return result
	}
	if err != nil {
		e.logger.Error("search backend failed", "mode", string(mode), "err", err)
		monitor.Finish(nil)
		return &Result{Degraded: result.Degraded, DegradedReason: result.DegradedReason}
	}

	monitor.AfterBackendQuery(len(hits))
	result.Hits = hits
	monitor.Finish(hits)
	return result
}

func (e *Engine) vectorSearch(ctx context.Context, vector []float32, filter storage.SearchFilter, limit int) ([]core.SearchHit, error) {
	return e.repository.Search(ctx, storage.SearchQuery{
		Vector: vector,
		Filter: filter,
		Limit:  limit,
	})
}

func (e *Engine) hybridSearch(ctx context.Context, vector []float32, text string, filter storage.SearchFilter, limit int, result *Result, monitor Monitor) ([]core.SearchHit, error) {
	query := storage.HybridQuery{
		Vector:        vector,
		Text:          text,
		Filter:        filter,
		Limit:         limit,
		VectorWeight:  e.cfg.VectorWeight,
		KeywordWeight: e.cfg.KeywordWeight,
		CandidatePool: e.cfg.CandidatePoolMult * limit,
		RRFK:          e.cfg.RRFK,
	}
	query.Normalize()

	hits, err := e.repository.HybridSearch(ctx, query)
	if err == nil {
		return hits, nil
	}
	if !errors.Is(err, storage.ErrLexicalUnsupported) {
		return nil, err
	}

	// Fall back to vector-only search and report the degradation.
	result.Degraded = true
	result.DegradedReason = "backend has no lexical index, keyword signal skipped"
	monitor.Degraded(result.DegradedReason)
	e.logger.Warn("hybrid search degraded to vector-only", "reason", result.DegradedReason)

	return e.vectorSearch(ctx, vector, filter, limit)
}

func validateRequest(req Request) error {
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.CollectionID == "" {
		return ErrEmptyCollection
	}
	if req.Limit <= 0 {
		return ErrInvalidLimit
	}
	return nil
}
