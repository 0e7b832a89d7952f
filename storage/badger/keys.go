package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/quarryai/quarry/core"
)

// Key prefixes for different data types. The index and metadata keyspaces
// are deliberately separate: they model the two writes of the vector-index
// backend and can disagree transiently after a partially failed delete.
const (
	chunkIndexPrefix  = "chkidx"
	chunkMetaPrefix   = "chkmeta"
	chunkParentPrefix = "chkpar"
	jobRecordPrefix   = "ingjob"
	jobParentPrefix   = "ingjobpar"
	jobTimePrefix     = "ingjobt"
)

// makeChunkIndexKey generates the vector-index key for a chunk.
func makeChunkIndexKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", chunkIndexPrefix, id))
}

// makeChunkMetaKey generates the metadata key for a chunk.
func makeChunkMetaKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", chunkMetaPrefix, id))
}

// makeChunkParentKey generates a composite key for the parent index.
// Format: prefix:parentID\x00sequence. The NUL byte terminates the parent
// ID so one parent's range never shadows a longer sibling's, and the
// BigEndian sequence makes lexicographic iteration follow chunk order.
func makeChunkParentKey(parentID string, sequenceIndex int) []byte {
	prefix := chunkParentPrefix + ":"
	buf := make([]byte, len(prefix)+len(parentID)+1+4)
	offset := copy(buf, prefix)
	offset += copy(buf[offset:], parentID)
	buf[offset] = 0x00
	offset++
	binary.BigEndian.PutUint32(buf[offset:], uint32(sequenceIndex))
	return buf
}

// makeChunkParentScanPrefix generates the prefix for scanning one parent's chunks.
func makeChunkParentScanPrefix(parentID string) []byte {
	prefix := chunkParentPrefix + ":"
	buf := make([]byte, len(prefix)+len(parentID)+1)
	offset := copy(buf, prefix)
	offset += copy(buf[offset:], parentID)
	buf[offset] = 0x00
	return buf
}

// makeJobKey generates the key for a job record.
func makeJobKey(id string) []byte {
	return []byte(jobRecordPrefix + ":" + id)
}

// makeJobParentKey generates the key holding a parent's active job id.
func makeJobParentKey(parentID string) []byte {
	return []byte(jobParentPrefix + ":" + parentID)
}

// makeJobTimeKey generates a composite key for the creation-time index.
// Format: prefix:timestamp:id, BigEndian so lexicographic sort is
// chronological.
func makeJobTimeKey(unixMicro int64, id string) []byte {
	prefix := jobTimePrefix + ":"
	buf := make([]byte, len(prefix)+8+1+len(id))
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(unixMicro))
	offset += 8
	buf[offset] = ':'
	offset++
	copy(buf[offset:], id)
	return buf
}
