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


package storage

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/quarryai/quarry/core"
)

// MUS serializers for values persisted in BadgerDB. Field order is the
// wire format; changing it is a breaking storage change.
var (
	vectorMUS     = ord.NewSliceSer[float32](raw.Float32)
	attributesMUS = ord.NewMapSer[string, string](ord.String, ord.String)

	// ContentChunkMUS serializes core.ContentChunk values.
	ContentChunkMUS = contentChunkSer{}

	// IngestionJobMUS serializes core.IngestionJob values.
	IngestionJobMUS = ingestionJobSer{}

	// IndexRecordMUS serializes IndexRecord values.
	IndexRecordMUS = indexRecordSer{}
)

// IndexRecord is the slim per-chunk record a vector-index keyspace holds:
// just the vector and the fields needed to filter a scan, so similarity
// search never has to load full chunk metadata.
type IndexRecord struct {
	ChunkID      core.ID
	ParentID     string
	ParentKind   core.ContentKind
	CollectionID string
	Vector       []float32
}

// MarshalIndexRecord serializes an IndexRecord to bytes.
func MarshalIndexRecord(rec *IndexRecord) []byte {
	buf := make([]byte, IndexRecordMUS.Size(*rec))
	IndexRecordMUS.Marshal(*rec, buf)
	return buf
}

// UnmarshalIndexRecord deserializes an IndexRecord from bytes.
func UnmarshalIndexRecord(data []byte) (*IndexRecord, error) {
	rec, _, err := IndexRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	v, _, err := varint.Uint64.Unmarshal(data)
	return core.ID(v), err
}

// MarshalChunk serializes a ContentChunk to bytes.
func MarshalChunk(chunk *core.ContentChunk) []byte {
	buf := make([]byte, ContentChunkMUS.Size(*chunk))
	ContentChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a ContentChunk from bytes.
func UnmarshalChunk(data []byte) (*core.ContentChunk, error) {
	chunk, _, err := ContentChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// MarshalJob serializes an IngestionJob to bytes.
func MarshalJob(job *core.IngestionJob) []byte {
	buf := make([]byte, IngestionJobMUS.Size(*job))
	IngestionJobMUS.Marshal(*job, buf)
	return buf
}

// UnmarshalJob deserializes an IngestionJob from bytes.
func UnmarshalJob(data []byte) (*core.IngestionJob, error) {
	job, _, err := IngestionJobMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

type indexRecordSer struct{}

func (indexRecordSer) Marshal(r IndexRecord, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(r.ChunkID), bs)
	n += ord.String.Marshal(r.ParentID, bs[n:])
	n += ord.String.Marshal(string(r.ParentKind), bs[n:])
	n += ord.String.Marshal(r.CollectionID, bs[n:])
	n += vectorMUS.Marshal(r.Vector, bs[n:])
	return n
}

func (indexRecordSer) Unmarshal(bs []byte) (r IndexRecord, n int, err error) {
	var n1 int

	id, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	r.ChunkID = core.ID(id)

	r.ParentID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var kind string
	kind, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	r.ParentKind = core.ContentKind(kind)

	r.CollectionID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	r.Vector, n1, err = vectorMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (indexRecordSer) Size(r IndexRecord) (size int) {
	size = varint.Uint64.Size(uint64(r.ChunkID))
	size += ord.String.Size(r.ParentID)
	size += ord.String.Size(string(r.ParentKind))
	size += ord.String.Size(r.CollectionID)
	size += vectorMUS.Size(r.Vector)
	return size
}

type contentChunkSer struct{}

func (contentChunkSer) Marshal(c core.ContentChunk, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(c.Id), bs)
	n += ord.String.Marshal(c.ParentID, bs[n:])
	n += ord.String.Marshal(string(c.ParentKind), bs[n:])
	n += ord.String.Marshal(c.CollectionID, bs[n:])
	n += varint.Int.Marshal(c.SequenceIndex, bs[n:])
	n += ord.String.Marshal(c.Text, bs[n:])
	n += vectorMUS.Marshal(c.Vector, bs[n:])
	n += attributesMUS.Marshal(c.Attributes, bs[n:])
	n += varint.Int64.Marshal(c.CreatedAt.UnixMicro(), bs[n:])
	return n
}

func (contentChunkSer) Unmarshal(bs []byte) (c core.ContentChunk, n int, err error) {
	var n1 int

	id, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	c.Id = core.ID(id)

	c.ParentID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var kind string
	kind, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.ParentKind = core.ContentKind(kind)

	c.CollectionID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	c.SequenceIndex, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	c.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	c.Vector, n1, err = vectorMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	c.Attributes, n1, err = attributesMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var createdAt int64
	createdAt, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.CreatedAt = time.UnixMicro(createdAt).UTC()

	return
}

func (contentChunkSer) Size(c core.ContentChunk) (size int) {
	size = varint.Uint64.Size(uint64(c.Id))
	size += ord.String.Size(c.ParentID)
	size += ord.String.Size(string(c.ParentKind))
	size += ord.String.Size(c.CollectionID)
	size += varint.Int.Size(c.SequenceIndex)
	size += ord.String.Size(c.Text)
	size += vectorMUS.Size(c.Vector)
	size += attributesMUS.Size(c.Attributes)
	size += varint.Int64.Size(c.CreatedAt.UnixMicro())
	return size
}

type ingestionJobSer struct{}

func (ingestionJobSer) Marshal(j core.IngestionJob, bs []byte) (n int) {
	n = ord.String.Marshal(j.Id, bs)
	n += ord.String.Marshal(j.ParentID, bs[n:])
	n += ord.String.Marshal(j.CollectionID, bs[n:])
	n += varint.Int.Marshal(int(j.State), bs[n:])
	n += varint.Int.Marshal(j.ProgressPercent, bs[n:])
	n += ord.String.Marshal(j.CurrentStage, bs[n:])
	n += varint.Int.Marshal(j.AttemptCount, bs[n:])
	n += ord.String.Marshal(j.LastError, bs[n:])
	n += varint.Int64.Marshal(j.CreatedAt.UnixMicro(), bs[n:])
	n += varint.Int64.Marshal(j.UpdatedAt.UnixMicro(), bs[n:])
	return n
}

func (ingestionJobSer) Unmarshal(bs []byte) (j core.IngestionJob, n int, err error) {
	var n1 int

	j.Id, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}

	j.ParentID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	j.CollectionID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var state int
	state, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.State = core.JobState(state)

	j.ProgressPercent, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	j.CurrentStage, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	j.AttemptCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	j.LastError, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}

	var createdAt, updatedAt int64
	createdAt, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.CreatedAt = time.UnixMicro(createdAt).UTC()

	updatedAt, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.UpdatedAt = time.UnixMicro(updatedAt).UTC()

	return
}

func (ingestionJobSer) Size(j core.IngestionJob) (size int) {
	size = ord.String.Size(j.Id)
	size += ord.String.Size(j.ParentID)
	size += ord.String.Size(j.CollectionID)
	size += varint.Int.Size(int(j.State))
	size += varint.Int.Size(j.ProgressPercent)
	size += ord.String.Size(j.CurrentStage)
	size += varint.Int.Size(j.AttemptCount)
	size += ord.String.Size(j.LastError)
	size += varint.Int64.Size(j.CreatedAt.UnixMicro())
	size += varint.Int64.Size(j.UpdatedAt.UnixMicro())
	return size
}
