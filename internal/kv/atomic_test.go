package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

func TestAtomicPointerDirectWriteWithNoCheckpoint(t *testing.T) {
	backend := NewMemoryBackend()
	p := NewAtomicPointer(backend)
	p.Keyword("/foo").Set([]byte("bar"))

	raw, ok, err := backend.Get([]byte("/foo"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("bar"), raw)

	got := p.Keyword("/foo").Get()
	require.Equal(t, []byte("bar"), got)
}

func TestAtomicPointerCommitPersistsToBackend(t *testing.T) {
	backend := NewMemoryBackend()
	p := NewAtomicPointer(backend)

	p.Checkpoint()
	scoped := p.Keyword("/alkanes/").Keyword("balance")
	scoped.Set([]byte("100"))
	p.Commit()

	raw, ok, err := backend.Get([]byte("/alkanes/balance"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("100"), raw)
}

func TestAtomicPointerRollbackDiscardsWrites(t *testing.T) {
	backend := NewMemoryBackend()
	p := NewAtomicPointer(backend)

	p.Keyword("/k").Set([]byte("before"))

	p.Checkpoint()
	p.Keyword("/k").Set([]byte("after"))
	require.Equal(t, []byte("after"), p.Keyword("/k").Get())
	p.Rollback()

	require.Equal(t, []byte("before"), p.Keyword("/k").Get())
}

func TestAtomicPointerNestedCheckpointsMergeInOrder(t *testing.T) {
	backend := NewMemoryBackend()
	p := NewAtomicPointer(backend)

	p.Checkpoint() // outer
	p.Keyword("/x").Set([]byte("1"))

	p.Checkpoint() // inner
	p.Keyword("/x").Set([]byte("2"))
	p.Keyword("/y").Set([]byte("inner-only"))
	p.Commit() // merge inner into outer

	require.Equal(t, []byte("2"), p.Keyword("/x").Get())
	require.Equal(t, []byte("inner-only"), p.Keyword("/y").Get())

	p.Rollback() // discard outer entirely, including the merged inner writes

	require.Nil(t, p.Keyword("/x").Get())
	require.Nil(t, p.Keyword("/y").Get())
}

func TestAtomicPointerDeleteWithinCheckpoint(t *testing.T) {
	backend := NewMemoryBackend()
	p := NewAtomicPointer(backend)
	p.Keyword("/k").Set([]byte("v"))

	p.Checkpoint()
	p.Keyword("/k").Delete()
	require.Nil(t, p.Keyword("/k").Get())
	p.Commit()

	_, ok, err := backend.Get([]byte("/k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAtomicPointerDeriveSharesCheckpointStack(t *testing.T) {
	backend := NewMemoryBackend()
	root := NewAtomicPointer(backend)
	child := root.Keyword("/child/")

	root.Checkpoint()
	child.Keyword("leaf").Set([]byte("v"))
	require.Equal(t, 1, child.Depth())

	// Rolling back through the derived pointer unwinds the shared stack,
	// since Derive produces a weak reference subordinate to the parent.
	child.Rollback()
	require.Equal(t, 0, root.Depth())
	require.Nil(t, root.Keyword("/child/").Keyword("leaf").Get())
}

func TestAtomicPointerValueU128RoundTrip(t *testing.T) {
	backend := NewMemoryBackend()
	p := NewAtomicPointer(backend)
	seq := p.Keyword("/sequence")

	require.True(t, seq.GetValueU128().IsZero())

	seq.SetValueU128(types.U128FromUint64(7))
	require.Equal(t, uint64(7), seq.GetValueU128().Lo)
}
