package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for content chunks.
// It is derived from chunk content so that re-chunking identical input
// produces identical IDs.
type ID uint64

// IDFromContent generates a deterministic ID from text using BLAKE2b hashing.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkIDFor generates the ID for a chunk from its parent, position, and text.
func ChunkIDFor(parentID string, sequenceIndex int, text string) ID {
	return IDFromContent(parentID + ":" + strconv.Itoa(sequenceIndex) + ":" + text)
}

// ContentKind identifies the type of a parent content item.
// The chunking policy is selected from it.
type ContentKind string

const (
	KindDocument ContentKind = "document"
	KindAudio    ContentKind = "audio"
	KindVideo    ContentKind = "video"
	KindWebPage  ContentKind = "web_page"
	KindNote     ContentKind = "note"
)

// Valid reports whether the kind is one of the known content kinds.
// Unknown kinds are still chunkable through the generic fallback policy.
func (k ContentKind) Valid() bool {
	switch k {
	case KindDocument, KindAudio, KindVideo, KindWebPage, KindNote:
		return true
	}
	return false
}

// TimeCoded reports whether units of this kind carry transcript timings.
func (k ContentKind) TimeCoded() bool {
	return k == KindAudio || k == KindVideo
}

// Well-known attribute keys carried on chunks.
const (
	AttrTitle          = "title"
	AttrSourcePlatform = "source_platform"
	AttrPageNumber     = "page_number"
	AttrStartTime      = "start_time"
	AttrEndTime        = "end_time"
)

// SourceUnit is one parsed page or transcript segment of a content item.
// Extraction of units from raw files happens outside this module.
type SourceUnit struct {
	Text      string
	Page      int     // 1-based page number, 0 when not paginated
	StartTime float64 // seconds, negative when not time-coded
	EndTime   float64 // seconds, negative when not time-coded
}

// Timed reports whether the unit carries transcript timings.
func (u SourceUnit) Timed() bool {
	return u.StartTime >= 0 && u.EndTime >= u.StartTime
}

// ContentItem is a parsed parent content item ready for chunking.
type ContentItem struct {
	ParentID       string
	Kind           ContentKind
	CollectionID   string
	Title          string
	SourcePlatform string
	Units          []SourceUnit
}

// ContentChunk is the atomic retrievable unit derived from a parent item.
// Chunks are immutable once persisted; updates to a parent are modeled as
// delete-all, re-chunk, re-insert.
type ContentChunk struct {
	Id            ID
	ParentID      string
	ParentKind    ContentKind
	CollectionID  string
	SequenceIndex int
	Text          string
	Vector        []float32 // nil until the embedding generator has run
	Attributes    map[string]string
	CreatedAt     time.Time
}

// Embedded reports whether the chunk carries an embedding vector.
func (c *ContentChunk) Embedded() bool {
	return len(c.Vector) > 0
}

// SearchHit is the read-only projection returned by search.
// Score is backend-native (similarity or fused rank score) and is not
// comparable across backends.
type SearchHit struct {
	ChunkID    ID
	ParentID   string
	ParentKind ContentKind
	Text       string
	Score      float64
	Attributes map[string]string
}

// JobState is the lifecycle state of an ingestion job.
type JobState int

const (
	JobStatePending JobState = iota + 1
	JobStateRunning
	JobStateRetrying
	JobStateSucceeded
	JobStateFailed
	JobStateCancelled
)

// String returns the canonical lowercase name of the state.
func (s JobState) String() string {
	switch s {
	case JobStatePending:
		return "pending"
	case JobStateRunning:
		return "running"
	case JobStateRetrying:
		return "retrying"
	case JobStateSucceeded:
		return "succeeded"
	case JobStateFailed:
		return "failed"
	case JobStateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// ParseJobState maps a canonical state name back to its JobState.
func ParseJobState(name string) (JobState, error) {
	switch name {
	case "pending":
		return JobStatePending, nil
	case "running":
		return JobStateRunning, nil
	case "retrying":
		return JobStateRetrying, nil
	case "succeeded":
		return JobStateSucceeded, nil
	case "failed":
		return JobStateFailed, nil
	case "cancelled":
		return JobStateCancelled, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidJobState, name)
}

// Terminal reports whether the job can no longer change state.
func (s JobState) Terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed || s == JobStateCancelled
}

// Active reports whether the job counts against the one-active-job-per-parent rule.
func (s JobState) Active() bool {
	return s == JobStatePending || s == JobStateRunning || s == JobStateRetrying
}

// IngestionJob tracks one run of the chunk-embed-store pipeline for a parent item.
type IngestionJob struct {
	Id              string // uuid
	ParentID        string
	CollectionID    string
	State           JobState
	ProgressPercent int
	CurrentStage    string
	AttemptCount    int
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
