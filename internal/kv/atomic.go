package kv

import (
	"sync"

	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

// frame is a single mutation overlay: every key written or deleted since
// the matching Checkpoint call.
type frame struct {
	writes  map[string][]byte
	deleted map[string]bool
}

func newFrame() *frame {
	return &frame{writes: make(map[string][]byte), deleted: make(map[string]bool)}
}

// stack is the shared, mutable checkpoint stack backing every derivation of
// an AtomicPointer. Spec §5: "checkpoints form a stack and must be closed
// in LIFO order."
type stack struct {
	mu      sync.Mutex
	backend Backend
	frames  []*frame
}

// AtomicPointer is a checkpointable, derivable view into a Backend. Per
// spec §3 ("Ownership"): an atomic pointer has exclusive write ownership
// within a checkpoint scope; Derive produces a weak reference into a
// sub-keyspace, subordinate to the parent's commit/rollback — modeled here
// by every derivation sharing the same underlying *stack.
type AtomicPointer struct {
	st     *stack
	prefix []byte
}

// NewAtomicPointer wraps backend with an (initially empty) checkpoint
// stack. Writes made before the first Checkpoint are applied directly to
// the backend.
func NewAtomicPointer(backend Backend) *AtomicPointer {
	return &AtomicPointer{st: &stack{backend: backend}}
}

// Checkpoint pushes a new mutation frame.
func (p *AtomicPointer) Checkpoint() {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	p.st.frames = append(p.st.frames, newFrame())
}

// Commit merges the top frame into its parent (or the backend, if it was
// the outermost frame) and pops it.
func (p *AtomicPointer) Commit() {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	if len(p.st.frames) == 0 {
		return
	}
	top := p.st.frames[len(p.st.frames)-1]
	p.st.frames = p.st.frames[:len(p.st.frames)-1]
	if len(p.st.frames) == 0 {
		for k := range top.deleted {
			_ = p.st.backend.Delete([]byte(k))
		}
		for k, v := range top.writes {
			_ = p.st.backend.Put([]byte(k), v)
		}
		return
	}
	parent := p.st.frames[len(p.st.frames)-1]
	for k := range top.deleted {
		delete(parent.writes, k)
		parent.deleted[k] = true
	}
	for k, v := range top.writes {
		delete(parent.deleted, k)
		parent.writes[k] = v
	}
}

// Rollback discards the top frame entirely, leaving every ancestor frame
// and the backend byte-identical to the state before the matching
// Checkpoint (spec §8 invariant 3: atomic isolation).
func (p *AtomicPointer) Rollback() {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	if len(p.st.frames) == 0 {
		return
	}
	p.st.frames = p.st.frames[:len(p.st.frames)-1]
}

// Depth returns the number of open checkpoint frames.
func (p *AtomicPointer) Depth() int {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	return len(p.st.frames)
}

// Derive returns a new pointer scoped under an additional key-path
// component, sharing this pointer's checkpoint stack.
func (p *AtomicPointer) Derive(component []byte) *AtomicPointer {
	next := make([]byte, 0, len(p.prefix)+len(component))
	next = append(next, p.prefix...)
	next = append(next, component...)
	return &AtomicPointer{st: p.st, prefix: next}
}

// Keyword is sugar for Derive([]byte(s)), matching the teacher's and the
// original indexer's `.keyword("/alkanes/")` chaining idiom.
func (p *AtomicPointer) Keyword(s string) *AtomicPointer { return p.Derive([]byte(s)) }

// Select appends an opaque key component (typically a serialized AlkaneId
// or other struct key), matching `.select(&id)` in the original.
func (p *AtomicPointer) Select(component []byte) *AtomicPointer { return p.Derive(component) }

func (p *AtomicPointer) fullKey(key []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(key))
	out = append(out, p.prefix...)
	out = append(out, key...)
	return out
}

// Get reads the current value for key (the pointer's own prefix, with no
// additional key component), searching open frames top-down before falling
// back to the backend. A never-written key returns nil.
func (p *AtomicPointer) Get() []byte {
	return p.GetKey(nil)
}

// GetKey reads the value at prefix||key.
func (p *AtomicPointer) GetKey(key []byte) []byte {
	p.st.mu.Lock()
	full := p.fullKey(key)
	for i := len(p.st.frames) - 1; i >= 0; i-- {
		f := p.st.frames[i]
		if f.deleted[string(full)] {
			p.st.mu.Unlock()
			return nil
		}
		if v, ok := f.writes[string(full)]; ok {
			p.st.mu.Unlock()
			cp := make([]byte, len(v))
			copy(cp, v)
			return cp
		}
	}
	backend := p.st.backend
	p.st.mu.Unlock()
	v, ok, _ := backend.Get(full)
	if !ok {
		return nil
	}
	return v
}

// Set writes value at the pointer's own key.
func (p *AtomicPointer) Set(value []byte) { p.SetKey(nil, value) }

// SetKey writes value at prefix||key. An empty value records a tombstone
// when there are open frames; at the root it deletes from the backend
// directly (storage-map semantics, spec §4.2).
func (p *AtomicPointer) SetKey(key, value []byte) {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	full := p.fullKey(key)
	if len(p.st.frames) == 0 {
		if len(value) == 0 {
			_ = p.st.backend.Delete(full)
		} else {
			_ = p.st.backend.Put(full, value)
		}
		return
	}
	top := p.st.frames[len(p.st.frames)-1]
	if len(value) == 0 {
		delete(top.writes, string(full))
		top.deleted[string(full)] = true
		return
	}
	delete(top.deleted, string(full))
	cp := make([]byte, len(value))
	copy(cp, value)
	top.writes[string(full)] = cp
}

// Delete removes the pointer's own key.
func (p *AtomicPointer) Delete() { p.SetKey(nil, nil) }

// GetValueU128 reads the pointer's value as a little-endian u128,
// returning the zero value for an absent key (used by the sequence
// pointer and similar counters).
func (p *AtomicPointer) GetValueU128() types.Uint128 {
	v := p.Get()
	if len(v) < 16 {
		return types.Uint128{}
	}
	u, err := types.UnmarshalU128LE(v[:16])
	if err != nil {
		return types.Uint128{}
	}
	return u
}

// SetValueU128 writes v as a little-endian 16-byte u128.
func (p *AtomicPointer) SetValueU128(v types.Uint128) {
	buf := v.MarshalLE()
	p.Set(buf[:])
}
