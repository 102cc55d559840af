package main

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestIngestRecordDecodeRoundTrips(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, nil))
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	pointer := uint32(0)
	rec := ingestRecord{
		Height:  100,
		TxIndex: 1,
		RawTx:   hex.EncodeToString(buf.Bytes()),
		Edicts: []ingestEdict{
			{ingestTransfer: ingestTransfer{Block: 2, Tx: 5, Value: "42"}, Output: 0},
		},
		Protostones: []ingestProtostone{
			{ProtocolTag: 1, Message: "", Pointer: &pointer},
		},
	}

	decoded, rs, leftover, err := rec.decode()
	require.NoError(t, err)
	require.NotNil(t, decoded)
	require.Len(t, rs.Edicts, 1)
	require.Equal(t, uint64(42), rs.Edicts[0].Amount.Lo)
	require.Len(t, rs.Protostones, 1)
	require.Empty(t, leftover)
}

func TestParseDecimalU128RejectsGarbage(t *testing.T) {
	_, err := parseDecimalU128("not-a-number")
	require.Error(t, err)
}
