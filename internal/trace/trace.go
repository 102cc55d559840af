// Package trace implements the append-only event log kept for every
// top-level outpoint, grounded on the teacher's Receipt.Logs accumulation
// in core/virtual_machine.go (HeavyVM.Execute appending Log entries to a
// shared Receipt) generalized to the six event variants in spec.md §4.8.
package trace

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

// Kind distinguishes a trace event's variant.
type Kind uint8

const (
	KindEnterCall Kind = iota
	KindEnterDelegatecall
	KindEnterStaticcall
	KindReturnContext
	KindRevertContext
	KindCreateAlkane
)

// CallContext is the host-side echo of a call frame recorded alongside
// Enter* events. It deliberately duplicates the fields of
// runtime.RuntimeContext that matter for diagnostics, rather than
// depending on package runtime, so trace stays a leaf dependency.
type CallContext struct {
	Myself   types.AlkaneId
	Caller   types.AlkaneId
	Inputs   []types.Uint128
	Incoming types.AlkaneTransferParcel
	Vout     uint32
}

// Event is one entry in a Recorder's append-only log.
type Event struct {
	Kind     Kind
	Context  CallContext // valid for Enter* events
	Data     []byte      // valid for Return/RevertContext: the response data, revert-tagged for RevertContext
	FuelUsed uint64      // valid for Return/RevertContext
	NewID    types.AlkaneId
}

// Recorder is a shared, mutable, append-only event log bound to one
// top-level outpoint and passed by reference down through every nested
// call (spec.md §9: "pass an owned append-only log by reference from
// the top frame down through sub-calls and serialize at the top").
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) append(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// EnterCall records entry into a call-discipline sub-call.
func (r *Recorder) EnterCall(ctx CallContext) { r.append(Event{Kind: KindEnterCall, Context: ctx}) }

// EnterDelegatecall records entry into a delegatecall-discipline sub-call.
func (r *Recorder) EnterDelegatecall(ctx CallContext) {
	r.append(Event{Kind: KindEnterDelegatecall, Context: ctx})
}

// EnterStaticcall records entry into a staticcall-discipline sub-call.
func (r *Recorder) EnterStaticcall(ctx CallContext) {
	r.append(Event{Kind: KindEnterStaticcall, Context: ctx})
}

// ReturnContext records a successful call's response and fuel used.
func (r *Recorder) ReturnContext(data []byte, fuelUsed uint64) {
	r.append(Event{Kind: KindReturnContext, Data: data, FuelUsed: fuelUsed})
}

// RevertContext records a failed call's tagged error bytes and fuel used.
func (r *Recorder) RevertContext(data []byte, fuelUsed uint64) {
	r.append(Event{Kind: KindRevertContext, Data: data, FuelUsed: fuelUsed})
}

// CreateAlkane records a deployment binding a fresh AlkaneId.
func (r *Recorder) CreateAlkane(id types.AlkaneId) {
	r.append(Event{Kind: KindCreateAlkane, NewID: id})
}

// Events returns a snapshot of the recorded events in append order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len reports how many events have been recorded.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendBytes(buf, data []byte) []byte {
	buf = appendU32(buf, uint32(len(data)))
	return append(buf, data...)
}

func appendU128List(buf []byte, vs []types.Uint128) []byte {
	buf = appendU32(buf, uint32(len(vs)))
	for _, v := range vs {
		le := v.MarshalLE()
		buf = append(buf, le[:]...)
	}
	return buf
}

func appendParcel(buf []byte, p types.AlkaneTransferParcel) []byte {
	buf = appendU32(buf, uint32(len(p)))
	for _, t := range p {
		buf = append(buf, keys.AlkaneIdBytes(t.ID)...)
		le := t.Value.MarshalLE()
		buf = append(buf, le[:]...)
	}
	return buf
}

func appendCallContext(buf []byte, ctx CallContext) []byte {
	buf = append(buf, keys.AlkaneIdBytes(ctx.Myself)...)
	buf = append(buf, keys.AlkaneIdBytes(ctx.Caller)...)
	buf = appendU128List(buf, ctx.Inputs)
	buf = appendParcel(buf, ctx.Incoming)
	buf = appendU32(buf, ctx.Vout)
	return buf
}

// Serialize renders the full event log in append order as a flat,
// deterministic byte stream (spec.md §9: "every persisted structure
// must have a canonical byte form").
func (r *Recorder) Serialize() []byte {
	events := r.Events()
	var out []byte
	out = appendU32(out, uint32(len(events)))
	for _, e := range events {
		out = append(out, byte(e.Kind))
		switch e.Kind {
		case KindEnterCall, KindEnterDelegatecall, KindEnterStaticcall:
			out = appendCallContext(out, e.Context)
		case KindReturnContext, KindRevertContext:
			out = appendBytes(out, e.Data)
			var fu [8]byte
			binary.LittleEndian.PutUint64(fu[:], e.FuelUsed)
			out = append(out, fu[:]...)
		case KindCreateAlkane:
			out = append(out, keys.AlkaneIdBytes(e.NewID)...)
		}
	}
	return out
}

// EventCount reads the leading event-count header out of a serialized
// trace log without decoding every event, for lightweight CLI reporting.
func EventCount(buf []byte) (int, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("trace: serialized log too short for a header")
	}
	return int(binary.LittleEndian.Uint32(buf[:4])), nil
}

// Persist writes the recorder's serialized log under /trace/<outpoint>
// and appends outpoint to the /trace/byheight/<h> index, surviving even
// a top-level revert (spec.md §4.8: "traces survive even on top-level
// revert").
func Persist(atomic *kv.AtomicPointer, outpoint []byte, height uint64, r *Recorder) {
	keys.TracePointer(atomic, outpoint).Set(r.Serialize())
	idx := keys.TraceByHeightPointer(atomic, height, outpoint)
	idx.Set([]byte{1})
}
