package storage

import (
	"testing"
	"time"

	"github.com/quarryai/quarry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSerializationRoundTrip(t *testing.T) {
	chunk := &core.ContentChunk{
		Id:            core.ChunkIDFor("doc-1", 2, "some text"),
		ParentID:      "doc-1",
		ParentKind:    core.KindDocument,
		CollectionID:  "col-1",
		SequenceIndex: 2,
		Text:          "some text",
		Vector:        []float32{0.25, -0.5, 0.75},
		Attributes:    map[string]string{"page_number": "3", "title": "Report"},
		CreatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	data := MarshalChunk(chunk)
	decoded, err := UnmarshalChunk(data)
	require.NoError(t, err)
	assert.Equal(t, chunk, decoded)
}

func TestChunkSerialization_NoVectorNoAttributes(t *testing.T) {
	chunk := &core.ContentChunk{
		Id:           42,
		ParentID:     "p",
		ParentKind:   core.KindAudio,
		CollectionID: "c",
		Text:         "t",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	decoded, err := UnmarshalChunk(MarshalChunk(chunk))
	require.NoError(t, err)
	assert.Equal(t, chunk.Id, decoded.Id)
	assert.Empty(t, decoded.Vector)
	assert.Empty(t, decoded.Attributes)
	assert.Equal(t, chunk.CreatedAt, decoded.CreatedAt)
}

func TestChunkSerialization_Truncated(t *testing.T) {
	chunk := &core.ContentChunk{
		Id: 1, ParentID: "p", ParentKind: core.KindNote, CollectionID: "c",
		Text: "hello world", CreatedAt: time.Now().UTC(),
	}
	data := MarshalChunk(chunk)

	_, err := UnmarshalChunk(data[:len(data)/2])
	require.Error(t, err)
}

func TestJobSerializationRoundTrip(t *testing.T) {
	job := &core.IngestionJob{
		Id:              "6b29fc40-ca47-1067-b31d-00dd010662da",
		ParentID:        "doc-9",
		CollectionID:    "col-2",
		State:           core.JobStateRetrying,
		ProgressPercent: 40,
		CurrentStage:    "embedding 2/5 batches",
		AttemptCount:    2,
		LastError:       "transient: provider timeout",
		CreatedAt:       time.Date(2025, 7, 2, 9, 30, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2025, 7, 2, 9, 31, 0, 0, time.UTC),
	}

	decoded, err := UnmarshalJob(MarshalJob(job))
	require.NoError(t, err)
	assert.Equal(t, job, decoded)
}

func TestIndexRecordSerializationRoundTrip(t *testing.T) {
	record := &IndexRecord{
		ChunkID:      core.ChunkIDFor("doc-1", 0, "text"),
		ParentID:     "doc-1",
		ParentKind:   core.KindVideo,
		CollectionID: "col-1",
		Vector:       []float32{0.1, 0.2, 0.3},
	}

	decoded, err := UnmarshalIndexRecord(MarshalIndexRecord(record))
	require.NoError(t, err)
	assert.Equal(t, record, decoded)
}

func TestIDSerializationRoundTrip(t *testing.T) {
	id := core.IDFromContent("anything")
	decoded, err := UnmarshalID(MarshalID(id))
	require.NoError(t, err)
	assert.Equal(t, id, decoded)
}
