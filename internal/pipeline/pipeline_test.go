package pipeline

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/synnergy-labs/alkanes-indexer/internal/fueltank"
	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

func newTestTx(numOutputs int) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	for i := 0; i < numOutputs; i++ {
		tx.AddTxOut(wire.NewTxOut(0, nil))
	}
	return tx
}

func TestOutputLedgerCreditAndTake(t *testing.T) {
	l := NewOutputLedger()
	id := types.NewAlkaneId(2, 1)
	require.NoError(t, l.Credit(3, types.AlkaneTransferParcel{{ID: id, Value: types.U128FromUint64(5)}}))
	require.NoError(t, l.Credit(3, types.AlkaneTransferParcel{{ID: id, Value: types.U128FromUint64(2)}}))

	got := l.Take(3)
	require.Len(t, got, 1)
	require.Equal(t, types.U128FromUint64(7), got[0].Value)

	require.Nil(t, l.Take(3))
}

func TestProcessTransactionSkipsNonMatchingProtocolTag(t *testing.T) {
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	tank := fueltank.New(fueltank.MainnetParams)
	require.NoError(t, tank.Initialize(fueltank.MainnetParams, 1000))
	tank.FuelTransaction(200, 0)

	p := New(nil, nil, fueltank.MainnetParams)
	tx := newTestTx(2)
	rs := types.Runestone{Protostones: []types.Protostone{{ProtocolTag: 99, Message: []byte("ignored")}}}

	err := p.ProcessTransaction(atomic, tank, tx, nil, 840000, 0, rs, nil)
	require.NoError(t, err)
}

func TestProcessTransactionAppliesEdictsToRealOutputs(t *testing.T) {
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	tank := fueltank.New(fueltank.MainnetParams)
	require.NoError(t, tank.Initialize(fueltank.MainnetParams, 1000))
	tank.FuelTransaction(200, 0)

	p := New(nil, nil, fueltank.MainnetParams)
	tx := newTestTx(2)
	id := types.NewAlkaneId(2, 1)
	rs := types.Runestone{Edicts: []types.Edict{{ID: id, Amount: types.U128FromUint64(10), Output: 0}}}

	require.NoError(t, p.ProcessTransaction(atomic, tank, tx, nil, 840000, 0, rs, nil))

	txid := tx.TxHash()
	got := keys.BalancePointer(atomic, outpointBytes(txid, 0), id).GetValueU128()
	require.Equal(t, uint64(10), got.Lo)
}

func TestProcessTransactionRefundsInvalidOutputPointer(t *testing.T) {
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	tank := fueltank.New(fueltank.MainnetParams)
	require.NoError(t, tank.Initialize(fueltank.MainnetParams, 1000))
	tank.FuelTransaction(200, 0)

	p := New(nil, nil, fueltank.MainnetParams)
	tx := newTestTx(1)
	id := types.NewAlkaneId(2, 1)
	badPointer := uint32(999)

	cellpack := types.EncodeVarintU128(types.U128FromUint64(2))
	cellpack = append(cellpack, types.EncodeVarintU128(types.U128FromUint64(1))...)

	rs := types.Runestone{
		Edicts:      []types.Edict{{ID: id, Amount: types.U128FromUint64(10), Output: 2}},
		Protostones: []types.Protostone{{ProtocolTag: types.EngineProtocolTag, Message: cellpack, Pointer: &badPointer}},
	}

	require.NoError(t, p.ProcessTransaction(atomic, tank, tx, nil, 840000, 0, rs, nil))

	txid := tx.TxHash()
	refundVout := uint32(1)
	got := keys.BalancePointer(atomic, outpointBytes(txid, refundVout), id).GetValueU128()
	require.Equal(t, uint64(10), got.Lo)
}
