package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/trace"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

type fakeWitnessTx struct {
	stacks map[int][][]byte
}

func (f fakeWitnessTx) Witness(i int) [][]byte { return f.stacks[i] }

func TestFindWitnessPayloadOnlyChecksFirstInput(t *testing.T) {
	tx := fakeWitnessTx{stacks: map[int][][]byte{1: {[]byte("ignored")}}}
	_, err := FindWitnessPayload(tx)
	require.ErrorIs(t, err, ErrNoWitnessPayload)

	tx2 := fakeWitnessTx{stacks: map[int][][]byte{0: {[]byte("binary")}}}
	payload, err := FindWitnessPayload(tx2)
	require.NoError(t, err)
	require.Equal(t, []byte("binary"), payload)
}

func TestResolveExisting(t *testing.T) {
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	id := types.NewAlkaneId(2, 1)
	keys.BinaryPointer(atomic, id).Set([]byte("wasm"))
	keys.SequencePointer(atomic).SetValueU128(types.U128FromUint64(5))

	res, err := Resolve(atomic, trace.NewRecorder(), id, nil)
	require.NoError(t, err)
	require.True(t, res.Target.Equal(id))
	require.Equal(t, []byte("wasm"), res.Binary)
}

func TestResolveCreateAllocatesNextSequence(t *testing.T) {
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	rec := trace.NewRecorder()
	keys.SequencePointer(atomic).SetValueU128(types.U128FromUint64(3))

	res, err := Resolve(atomic, rec, types.NewAlkaneId(1, 0), []byte("guest-binary"))
	require.NoError(t, err)
	require.True(t, res.Target.Equal(types.NewAlkaneId(2, 3)))
	require.Equal(t, []byte("guest-binary"), res.Binary)
	require.Equal(t, uint64(4), keys.SequencePointer(atomic).GetValueU128().Lo)
	require.Equal(t, 1, rec.Len())
	require.Equal(t, trace.KindCreateAlkane, rec.Events()[0].Kind)
}

func TestResolveReservedFailsIfAlreadyBound(t *testing.T) {
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	keys.BinaryPointer(atomic, types.NewAlkaneId(4, 9)).Set([]byte("occupied"))

	_, err := Resolve(atomic, trace.NewRecorder(), types.NewAlkaneId(3, 9), []byte("new"))
	require.ErrorIs(t, err, ErrAlreadyBound)
}

func TestResolveFactoryClonesBinary(t *testing.T) {
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	keys.SequencePointer(atomic).SetValueU128(types.U128FromUint64(10))
	keys.BinaryPointer(atomic, types.NewAlkaneId(2, 7)).Set([]byte("template"))

	res, err := Resolve(atomic, trace.NewRecorder(), types.NewAlkaneId(5, 7), nil)
	require.NoError(t, err)
	require.True(t, res.Target.Equal(types.NewAlkaneId(2, 10)))
	require.Equal(t, []byte("template"), res.Binary)
}
