package storage

import (
	"context"

	"github.com/quarryai/quarry/core"
)

// SearchFilter scopes a query. CollectionID is mandatory: a chunk is never
// returned to a query whose collection does not match. ParentKind and
// ParentID are optional narrowing filters.
type SearchFilter struct {
	CollectionID string
	ParentKind   core.ContentKind // "" matches any kind
	ParentID     string           // "" matches any parent
}

// SearchQuery is a vector-similarity query.
type SearchQuery struct {
	Vector []float32
	Filter SearchFilter
	Limit  int
}

// HybridQuery is a fused vector + keyword query.
type HybridQuery struct {
	Vector        []float32
	Text          string
	Filter        SearchFilter
	Limit         int
	VectorWeight  float64
	KeywordWeight float64
	CandidatePool int // per-signal candidate list size, defaults to 4x Limit
	RRFK          int // reciprocal rank smoothing constant, defaults to 60
}

// Normalize fills query defaults in place.
func (q *HybridQuery) Normalize() {
	if q.CandidatePool <= 0 {
		q.CandidatePool = 4 * q.Limit
	}
	if q.RRFK <= 0 {
		q.RRFK = 60
	}
}

// Capabilities reports what a backend can do natively.
type Capabilities struct {
	// LexicalSearch is true when the backend maintains a keyword index.
	// Without it, HybridSearch degrades to vector-only search.
	LexicalSearch bool
}

// ChunkRepository persists content chunks and serves similarity and hybrid
// queries. Implementations must be thread-safe; reads may run concurrently
// with writes to other parents.
type ChunkRepository interface {
	// SaveBatch persists an all-or-nothing batch of chunks for one parent.
	// Every chunk must carry an embedding vector of the configured
	// dimension. Safe to call once per successful embedding pass.
	SaveBatch(ctx context.Context, chunks []*core.ContentChunk) error

	// FindByParent returns all chunks of a parent ordered by SequenceIndex.
	FindByParent(ctx context.Context, parentID string) ([]*core.ContentChunk, error)

	// DeleteByParent removes all chunks of a parent and returns the number
	// removed. Used both for explicit deletion and for re-ingestion.
	DeleteByParent(ctx context.Context, parentID string) (int, error)

	// Search runs a vector-similarity query. Results are ordered by
	// descending similarity.
	Search(ctx context.Context, query SearchQuery) ([]core.SearchHit, error)

	// HybridSearch runs vector and keyword queries and fuses them with
	// weighted reciprocal rank fusion. Backends without lexical search
	// return ErrLexicalUnsupported; callers degrade to Search.
	HybridSearch(ctx context.Context, query HybridQuery) ([]core.SearchHit, error)

	// Capabilities reports the backend's native capabilities.
	Capabilities() Capabilities

	// Close releases backend resources.
	Close() error
}

// JobStore persists ingestion jobs independent of process restarts.
// Implementations enforce the one-active-job-per-parent rule.
type JobStore interface {
	// CreateJob persists a new job. Returns ErrActiveJobExists when the
	// parent already owns a pending, running, or retrying job.
	CreateJob(ctx context.Context, job *core.IngestionJob) error

	// GetJob returns a point-in-time snapshot of a job.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*core.IngestionJob, error)

	// UpdateJob persists the job's current state.
	// Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.IngestionJob) error

	// ListJobs returns up to limit jobs ordered by creation time, newest
	// first. limit <= 0 means no limit.
	ListJobs(ctx context.Context, limit int) ([]*core.IngestionJob, error)

	// ActiveJobForParent returns the parent's active job, or ErrNotFound.
	ActiveJobForParent(ctx context.Context, parentID string) (*core.IngestionJob, error)

	// RequeueInterrupted moves jobs left running or retrying by a previous
	// process back to pending and returns how many were requeued. Called
	// once at startup before workers begin pulling jobs.
	RequeueInterrupted(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}
