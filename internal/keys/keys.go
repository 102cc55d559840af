// Package keys centralizes the atomic-pointer key-path scheme shared by
// every package that reads or writes persistent index state, so that
// balancesheet, resolver, pipeline, trace and genesis agree on where a
// given record lives without duplicating key-building logic.
package keys

import (
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

// Root derives the top-level "/alkanes/" keyword scope.
func Root(p *kv.AtomicPointer) *kv.AtomicPointer { return p.Keyword("/alkanes/") }

// AlkaneIdBytes renders an AlkaneId as a fixed 32-byte key component
// (16-byte LE block || 16-byte LE tx), matching the wire encoding used
// elsewhere for AlkaneId so that keys sort the same way values do.
func AlkaneIdBytes(id types.AlkaneId) []byte {
	out := make([]byte, 0, 32)
	blk := id.Block.MarshalLE()
	tx := id.Tx.MarshalLE()
	out = append(out, blk[:]...)
	out = append(out, tx[:]...)
	return out
}

// EtchingPointer returns the key path recording whether id was etched
// through a conventional rune etching (as opposed to being a protocol-
// mintable contract-controlled id). Presence of any non-empty value here
// means the id is NOT mintable.
func EtchingPointer(p *kv.AtomicPointer, id types.AlkaneId) *kv.AtomicPointer {
	return Root(p).Keyword("/etching/").Select(AlkaneIdBytes(id))
}

// BalancePointer returns the key path under which an outpoint's
// persisted balance sheet entry for id is stored.
func BalancePointer(p *kv.AtomicPointer, outpoint []byte, id types.AlkaneId) *kv.AtomicPointer {
	return Root(p).Keyword("/balances/").Select(outpoint).Select(AlkaneIdBytes(id))
}

// LedgerID scopes a per-call-frame virtual balance ledger: the
// transaction's real outpoint extended with the acting contract's id, so
// that distinct contracts touched within one transaction each keep an
// independent balance view without colliding on the UTXO's own ledger
// entry (spec.md §4.9's "runtime balances" carried per call frame).
func LedgerID(outpoint []byte, who types.AlkaneId) []byte {
	out := make([]byte, 0, len(outpoint)+32)
	out = append(out, outpoint...)
	out = append(out, AlkaneIdBytes(who)...)
	return out
}

// StoragePointer returns the key path scoping a contract's persistent
// storage map.
func StoragePointer(p *kv.AtomicPointer, id types.AlkaneId) *kv.AtomicPointer {
	return Root(p).Keyword("/storage/").Select(AlkaneIdBytes(id))
}

// BinaryPointer returns the key path storing the deployed WASM binary
// for id.
func BinaryPointer(p *kv.AtomicPointer, id types.AlkaneId) *kv.AtomicPointer {
	return Root(p).Keyword("/binary/").Select(AlkaneIdBytes(id))
}

// SequencePointer returns the key path holding the next-sequence-number
// counter for (2, n)-form allocations.
func SequencePointer(p *kv.AtomicPointer) *kv.AtomicPointer {
	return Root(p).Keyword("/sequence")
}

// TracePointer returns the key path under which the trace for a given
// outpoint is persisted.
func TracePointer(p *kv.AtomicPointer, outpoint []byte) *kv.AtomicPointer {
	return Root(p).Keyword("/trace/").Select(outpoint)
}

// TraceByHeightPointer indexes persisted traces by block height for
// range scans.
func TraceByHeightPointer(p *kv.AtomicPointer, height uint64, outpoint []byte) *kv.AtomicPointer {
	h := make([]byte, 8)
	for i := 0; i < 8; i++ {
		h[7-i] = byte(height >> (8 * i))
	}
	return Root(p).Keyword("/trace/byheight/").Select(h).Select(outpoint)
}
