package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/retriever/core"
	"github.com/poiesic/retriever/storage"
)

// Key prefixes for different data types
const (
	collectionPrefix = "coll"
	passagePrefix    = "psg"
	recordSegment    = "rec"
	idIndexSegment   = "idx"
	sequenceSegment  = "seq"
)

// validateCollection rejects names that would break key prefixes.
func validateCollection(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", storage.ErrInvalidCollection)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return fmt.Errorf("%w: %q contains %q", storage.ErrInvalidCollection, name, r)
		}
	}
	return nil
}

// makeCollectionKey generates the registry key for a collection.
func makeCollectionKey(name string) []byte {
	return []byte(collectionPrefix + ":" + name)
}

// makeRecordPrefix generates the prefix shared by all records of a collection.
// Format: psg:collection:rec:
func makeRecordPrefix(collection string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:", passagePrefix, collection, recordSegment))
}

// makeRecordKey generates a key for a record by its insertion sequence.
// Format: psg:collection:rec:seq
func makeRecordKey(collection string, seq uint64) []byte {
	prefix := makeRecordPrefix(collection)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort matches insertion order
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makeIDIndexPrefix generates the prefix of the id -> sequence index.
func makeIDIndexPrefix(collection string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:", passagePrefix, collection, idIndexSegment))
}

// makeIDIndexKey generates the id index key for a record.
// Format: psg:collection:idx:id
func makeIDIndexKey(collection string, id core.ID) []byte {
	return append(makeIDIndexPrefix(collection), []byte(id)...)
}

// makeSequenceName names the insertion sequence of a collection.
func makeSequenceName(collection string) string {
	return fmt.Sprintf("%s:%s:%s", passagePrefix, collection, sequenceSegment)
}

func encodeSeq(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

func decodeSeq(val []byte) (uint64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("%w: sequence value has %d bytes", storage.ErrSerializationFailed, len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}
