// Package runtime defines the per-call-frame context and response types
// threaded through every dispatch: RuntimeContext, the enclosing
// MessageView, and the ExtendedCallResponse a contract execution
// produces, per spec.md §3/§4.7.
package runtime

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/wire"

	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/storagemap"
	"github.com/synnergy-labs/alkanes-indexer/internal/trace"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

// MessageView is the immutable view of the enclosing transaction, block,
// height and output a call frame executes within, plus the atomic
// pointer scoping its persistent reads/writes.
type MessageView struct {
	Tx       *wire.MsgTx
	Block    *wire.MsgBlock
	Height   uint64
	TxIndex  uint64
	Vout     uint32
	Outpoint []byte
	Atomic   *kv.AtomicPointer
}

// RuntimeContext is the per-call-frame state a cellpack dispatch runs
// with. It is created fresh for every dispatch (top-level or nested)
// and discarded when the dispatch returns, success or revert (spec.md
// §3, "Lifecycles").
type RuntimeContext struct {
	Myself     types.AlkaneId
	Caller     types.AlkaneId
	Inputs     []types.Uint128
	Incoming   types.AlkaneTransferParcel
	Returndata []byte
	Message    *MessageView
	Trace      *trace.Recorder
}

// ToCallContext projects ctx into the host-side echo trace.Recorder
// events carry, so that logging a call frame never requires trace to
// import this package.
func (ctx *RuntimeContext) ToCallContext() trace.CallContext {
	return trace.CallContext{
		Myself:   ctx.Myself,
		Caller:   ctx.Caller,
		Inputs:   ctx.Inputs,
		Incoming: ctx.Incoming,
		Vout:     ctx.Message.Vout,
	}
}

// Serialize renders the context the way the guest's __load_context
// expects it (spec.md §4.7): myself, caller, inputs length + elements,
// incoming_alkanes serialized, vout (u32). The trace field is host-side
// only and never serialized.
func (ctx *RuntimeContext) Serialize() []byte {
	var out []byte
	out = append(out, keys.AlkaneIdBytes(ctx.Myself)...)
	out = append(out, keys.AlkaneIdBytes(ctx.Caller)...)

	var inLen [4]byte
	binary.LittleEndian.PutUint32(inLen[:], uint32(len(ctx.Inputs)))
	out = append(out, inLen[:]...)
	for _, v := range ctx.Inputs {
		le := v.MarshalLE()
		out = append(out, le[:]...)
	}

	var parcelLen [4]byte
	binary.LittleEndian.PutUint32(parcelLen[:], uint32(len(ctx.Incoming)))
	out = append(out, parcelLen[:]...)
	for _, t := range ctx.Incoming {
		out = append(out, keys.AlkaneIdBytes(t.ID)...)
		le := t.Value.MarshalLE()
		out = append(out, le[:]...)
	}

	var vout [4]byte
	binary.LittleEndian.PutUint32(vout[:], ctx.Message.Vout)
	out = append(out, vout[:]...)
	return out
}

// ExtendedCallResponse is what a contract execution produces: output
// data, an outgoing alkane transfer parcel, and a storage delta.
type ExtendedCallResponse struct {
	Data    []byte
	Alkanes types.AlkaneTransferParcel
	Storage *storagemap.StorageMap
}

// CallResponse is the plain (storage-free) form set as the parent's
// returndata after a successful sub-call (spec.md §4.6 step 10).
type CallResponse struct {
	Data    []byte
	Alkanes types.AlkaneTransferParcel
}

// Plain drops the storage delta, producing the form handed back to a
// calling contract as returndata.
func (r ExtendedCallResponse) Plain() CallResponse {
	return CallResponse{Data: r.Data, Alkanes: r.Alkanes}
}

// Serialize renders a CallResponse deterministically: data length +
// bytes, then the transfer parcel length + entries.
func (r CallResponse) Serialize() []byte {
	var out []byte
	var dlen [4]byte
	binary.LittleEndian.PutUint32(dlen[:], uint32(len(r.Data)))
	out = append(out, dlen[:]...)
	out = append(out, r.Data...)

	var plen [4]byte
	binary.LittleEndian.PutUint32(plen[:], uint32(len(r.Alkanes)))
	out = append(out, plen[:]...)
	for _, t := range r.Alkanes {
		out = append(out, keys.AlkaneIdBytes(t.ID)...)
		le := t.Value.MarshalLE()
		out = append(out, le[:]...)
	}
	return out
}

// RevertTag is the 4-byte prefix signaling a contract-level revert in
// response.Data (spec.md §5.3 / §6).
var RevertTag = [4]byte{0x08, 0xc3, 0x79, 0xa0}

// IsRevert reports whether data begins with RevertTag.
func IsRevert(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return data[0] == RevertTag[0] && data[1] == RevertTag[1] && data[2] == RevertTag[2] && data[3] == RevertTag[3]
}

// RevertMessage strips RevertTag and returns the UTF-8 tail.
func RevertMessage(data []byte) string {
	if !IsRevert(data) {
		return string(data)
	}
	return string(data[4:])
}

// TagRevert prepends RevertTag to a UTF-8 message, the wire form a
// contract (or the host, on its behalf) uses to signal failure.
func TagRevert(msg string) []byte {
	out := make([]byte, 0, 4+len(msg))
	out = append(out, RevertTag[:]...)
	out = append(out, msg...)
	return out
}
