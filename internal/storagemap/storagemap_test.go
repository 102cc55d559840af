package storagemap

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
)

func TestGetSetAbsence(t *testing.T) {
	m := New()
	require.Nil(t, m.Get([]byte("k")))
	m.Set([]byte("k"), []byte("v"))
	require.Equal(t, []byte("v"), m.Get([]byte("k")))
	m.Set([]byte("k"), nil)
	require.Equal(t, []byte{}, m.Get([]byte("k")))
}

func TestSerializeDeterministicOrder(t *testing.T) {
	m := New()
	m.Set([]byte("zeta"), []byte("1"))
	m.Set([]byte("alpha"), []byte("2"))
	m.Set([]byte("mid"), []byte("3"))

	buf := m.Serialize()
	back, err := Deserialize(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("1"), back.Get([]byte("zeta")))
	require.Equal(t, []byte("2"), back.Get([]byte("alpha")))
	require.Equal(t, []byte("3"), back.Get([]byte("mid")))

	// Same inputs in a different Set order must serialize identically.
	m2 := New()
	m2.Set([]byte("mid"), []byte("3"))
	m2.Set([]byte("zeta"), []byte("1"))
	m2.Set([]byte("alpha"), []byte("2"))
	require.Equal(t, buf, m2.Serialize())
}

func TestDeduplicatesToFinalValue(t *testing.T) {
	m := New()
	m.Set([]byte("k"), []byte("first"))
	m.Set([]byte("k"), []byte("second"))
	require.Equal(t, 1, m.Len())
	require.Equal(t, []byte("second"), m.Get([]byte("k")))
}

func TestPipeWritesAndDeletes(t *testing.T) {
	backend := kv.NewMemoryBackend()
	atomic := kv.NewAtomicPointer(backend)
	target := atomic.Keyword("/storage/")

	m := New()
	m.Set([]byte("a"), []byte("1"))
	m.Set([]byte("b"), []byte(""))
	m.Pipe(target)

	require.Equal(t, []byte("1"), target.GetKey([]byte("a")))
	_, ok, _ := backend.Get([]byte("/storage/a"))
	require.True(t, ok)
	_, ok, _ = backend.Get([]byte("/storage/b"))
	require.False(t, ok)
}
