package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, IDFromContent("hello"), IDFromContent("hello"))
	})

	t.Run("distinct content yields distinct ids", func(t *testing.T) {
		assert.NotEqual(t, IDFromContent("hello"), IDFromContent("goodbye"))
	})
}

func TestChunkIDFor(t *testing.T) {
	base := ChunkIDFor("doc-1", 0, "some text")

	assert.Equal(t, base, ChunkIDFor("doc-1", 0, "some text"))
	assert.NotEqual(t, base, ChunkIDFor("doc-2", 0, "some text"))
	assert.NotEqual(t, base, ChunkIDFor("doc-1", 1, "some text"))
	assert.NotEqual(t, base, ChunkIDFor("doc-1", 0, "other text"))
}

func TestContentKind(t *testing.T) {
	for _, kind := range []ContentKind{KindDocument, KindAudio, KindVideo, KindWebPage, KindNote} {
		assert.True(t, kind.Valid(), "kind %q", kind)
	}
	assert.False(t, ContentKind("").Valid())
	assert.False(t, ContentKind("podcast").Valid())

	assert.True(t, KindAudio.TimeCoded())
	assert.True(t, KindVideo.TimeCoded())
	assert.False(t, KindDocument.TimeCoded())
	assert.False(t, KindNote.TimeCoded())
}

func TestSourceUnitTimed(t *testing.T) {
	assert.True(t, SourceUnit{StartTime: 0, EndTime: 10}.Timed())
	assert.True(t, SourceUnit{StartTime: 5, EndTime: 5}.Timed())
	assert.False(t, SourceUnit{StartTime: -1, EndTime: -1}.Timed())
	assert.False(t, SourceUnit{StartTime: 10, EndTime: 2}.Timed())
}

func TestChunkEmbedded(t *testing.T) {
	assert.False(t, (&ContentChunk{}).Embedded())
	assert.True(t, (&ContentChunk{Vector: []float32{0.1}}).Embedded())
}

func TestJobStateRoundTrip(t *testing.T) {
	states := []JobState{
		JobStatePending, JobStateRunning, JobStateRetrying,
		JobStateSucceeded, JobStateFailed, JobStateCancelled,
	}
	for _, state := range states {
		parsed, err := ParseJobState(state.String())
		require.NoError(t, err, "state %s", state)
		assert.Equal(t, state, parsed)
	}

	_, err := ParseJobState("paused")
	assert.ErrorIs(t, err, ErrInvalidJobState)
}

func TestJobStateClassification(t *testing.T) {
	assert.True(t, JobStateSucceeded.Terminal())
	assert.True(t, JobStateFailed.Terminal())
	assert.True(t, JobStateCancelled.Terminal())
	assert.False(t, JobStateRunning.Terminal())

	assert.True(t, JobStatePending.Active())
	assert.True(t, JobStateRunning.Active())
	assert.True(t, JobStateRetrying.Active())
	assert.False(t, JobStateSucceeded.Active())
}

func TestValidateContentItem(t *testing.T) {
	valid := func() *ContentItem {
		return &ContentItem{ParentID: "doc-1", Kind: KindDocument, CollectionID: "col-1"}
	}

	assert.NoError(t, ValidateContentItem(valid()))

	assert.ErrorIs(t, ValidateContentItem(nil), ErrInvalidContentItem)

	item := valid()
	item.ParentID = ""
	assert.ErrorIs(t, ValidateContentItem(item), ErrEmptyParentID)

	item = valid()
	item.CollectionID = ""
	assert.ErrorIs(t, ValidateContentItem(item), ErrEmptyCollectionID)

	item = valid()
	item.Kind = ""
	assert.ErrorIs(t, ValidateContentItem(item), ErrEmptyContentKind)

	// Unknown kinds pass; the chunker falls back to the generic policy.
	item = valid()
	item.Kind = "podcast"
	assert.NoError(t, ValidateContentItem(item))
}

func TestValidateChunk(t *testing.T) {
	valid := func() *ContentChunk {
		return &ContentChunk{
			ParentID:     "doc-1",
			ParentKind:   KindDocument,
			CollectionID: "col-1",
			Text:         "chunk text",
		}
	}

	assert.NoError(t, ValidateChunk(valid()))
	assert.ErrorIs(t, ValidateChunk(nil), ErrInvalidChunk)

	chunk := valid()
	chunk.Text = ""
	assert.ErrorIs(t, ValidateChunk(chunk), ErrEmptyChunkText)
}

func TestValidateVectorDim(t *testing.T) {
	assert.NoError(t, ValidateVectorDim(nil, 3))
	assert.NoError(t, ValidateVectorDim([]float32{1, 2, 3}, 3))
	assert.ErrorIs(t, ValidateVectorDim([]float32{1, 2}, 3), ErrVectorDimension)

	// A non-positive dimension disables the check entirely.
	assert.NoError(t, ValidateVectorDim([]float32{1, 2, 3}, 0))
	assert.NoError(t, ValidateVectorDim([]float32{1, 2, 3}, -1))
}
