// Package storagemap implements a contract's in-memory storage overlay:
// an ordered bytes->bytes map with deterministic serialization and a
// pipe operation flushing it into the persistent index, grounded on the
// teacher's key/value overlay in core/virtual_machine.go (the scratch
// map HeavyVM accumulates before committing to its backing store).
package storagemap

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
)

// StorageMap is an in-memory bytes->bytes overlay. A zero-length value
// represents deletion of the key, per spec §4.2.
type StorageMap struct {
	entries map[string][]byte
}

// New returns an empty StorageMap.
func New() *StorageMap {
	return &StorageMap{entries: make(map[string][]byte)}
}

// Get returns the current value for key, or nil if absent.
func (s *StorageMap) Get(key []byte) []byte {
	v, ok := s.entries[string(key)]
	if !ok {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// Set records value for key. An empty value marks the key deleted.
func (s *StorageMap) Set(key, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.entries[string(key)] = cp
}

// Len reports the number of distinct keys touched (including deletions).
func (s *StorageMap) Len() int { return len(s.entries) }

// sortedKeys returns every touched key in ascending byte order, the
// deterministic iteration order required by Serialize and Pipe.
func (s *StorageMap) sortedKeys() []string {
	keysList := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keysList = append(keysList, k)
	}
	sort.Strings(keysList)
	return keysList
}

// Serialize encodes the map as length-prefixed (key, value) pairs sorted
// by key: uint32 LE keylen || key || uint32 LE vallen || value. This is
// the form used by the extcall ABI and for persistence (spec §4.2).
func (s *StorageMap) Serialize() []byte {
	var out []byte
	for _, k := range s.sortedKeys() {
		v := s.entries[k]
		var klen, vlen [4]byte
		binary.LittleEndian.PutUint32(klen[:], uint32(len(k)))
		binary.LittleEndian.PutUint32(vlen[:], uint32(len(v)))
		out = append(out, klen[:]...)
		out = append(out, k...)
		out = append(out, vlen[:]...)
		out = append(out, v...)
	}
	return out
}

// Deserialize parses the Serialize wire form back into a StorageMap.
func Deserialize(buf []byte) (*StorageMap, error) {
	s := New()
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, fmt.Errorf("storagemap: truncated key length")
		}
		klen := binary.LittleEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint32(len(buf)) < klen {
			return nil, fmt.Errorf("storagemap: truncated key")
		}
		key := buf[:klen]
		buf = buf[klen:]
		if len(buf) < 4 {
			return nil, fmt.Errorf("storagemap: truncated value length")
		}
		vlen := binary.LittleEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint32(len(buf)) < vlen {
			return nil, fmt.Errorf("storagemap: truncated value")
		}
		val := buf[:vlen]
		buf = buf[vlen:]
		s.Set(key, val)
	}
	return s, nil
}

// Pipe flushes every (key, value) into the atomic index under
// target||key, in sorted order; keys with an empty value are deleted.
// Per spec §4.2 invariant, the result is equivalent to a sequence of
// Set calls issued in insertion order, because only the final value per
// key is kept. target is an atomic pointer already scoped to the
// destination prefix (e.g. keys.StoragePointer(atomic, id)).
func (s *StorageMap) Pipe(target *kv.AtomicPointer) {
	for _, k := range s.sortedKeys() {
		v := s.entries[k]
		target.SetKey([]byte(k), v)
	}
}
