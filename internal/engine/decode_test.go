package engine

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/runtime"
	"github.com/synnergy-labs/alkanes-indexer/internal/storagemap"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

func TestDecodeAlkaneIdRoundTrip(t *testing.T) {
	id := types.NewAlkaneId(2, 7)
	got, err := decodeAlkaneId(keys.AlkaneIdBytes(id))
	require.NoError(t, err)
	require.True(t, got.Equal(id))
}

func TestDecodeParcelRoundTrip(t *testing.T) {
	p := types.AlkaneTransferParcel{
		{ID: types.NewAlkaneId(2, 1), Value: types.U128FromUint64(10)},
		{ID: types.NewAlkaneId(2, 2), Value: types.U128FromUint64(20)},
	}
	var buf []byte
	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(p)))
	buf = append(buf, lenPrefix[:]...)
	for _, tr := range p {
		buf = append(buf, keys.AlkaneIdBytes(tr.ID)...)
		le := tr.Value.MarshalLE()
		buf = append(buf, le[:]...)
	}

	got, err := decodeParcel(buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].ID.Equal(p[0].ID))
	require.Equal(t, p[1].Value, got[1].Value)
}

func TestDecodeExtendedCallResponseRoundTrip(t *testing.T) {
	sm := storagemap.New()
	sm.Set([]byte("k"), []byte("v"))

	resp := runtime.ExtendedCallResponse{
		Data:    []byte("hello"),
		Alkanes: types.AlkaneTransferParcel{{ID: types.NewAlkaneId(2, 1), Value: types.U128FromUint64(5)}},
		Storage: sm,
	}

	var buf []byte
	var dlen [4]byte
	binary.LittleEndian.PutUint32(dlen[:], uint32(len(resp.Data)))
	buf = append(buf, dlen[:]...)
	buf = append(buf, resp.Data...)

	var plen [4]byte
	binary.LittleEndian.PutUint32(plen[:], uint32(len(resp.Alkanes)))
	buf = append(buf, plen[:]...)
	for _, tr := range resp.Alkanes {
		buf = append(buf, keys.AlkaneIdBytes(tr.ID)...)
		le := tr.Value.MarshalLE()
		buf = append(buf, le[:]...)
	}
	buf = append(buf, resp.Storage.Serialize()...)

	got, err := decodeExtendedCallResponse(buf)
	require.NoError(t, err)
	require.Equal(t, resp.Data, got.Data)
	require.Len(t, got.Alkanes, 1)
	require.Equal(t, []byte("v"), got.Storage.Get([]byte("k")))
}
