package kv

import (
	"sort"
	"strings"
	"sync"
)

// MemoryBackend is an in-memory Backend used by tests, grounded on the
// teacher's memState in
// core/virtual_machine.go (NewInMemory / memState.data).
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryBackend) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
	return nil
}

func (m *MemoryBackend) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemoryBackend) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	m.mu.RLock()
	type kvPair struct {
		k string
		v []byte
	}
	var pairs []kvPair
	p := string(prefix)
	for k, v := range m.data {
		if strings.HasPrefix(k, p) {
			pairs = append(pairs, kvPair{k, v})
		}
	}
	m.mu.RUnlock()
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })
	for _, kv := range pairs {
		if !fn([]byte(kv.k), kv.v) {
			return nil
		}
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
