// Package resolver implements special-cellpack resolution: deciding, for
// a dispatch's target AlkaneId, whether it names an existing contract or
// one of the CREATE/CREATERESERVED/FACTORY deployment forms, grounded on
// the teacher's CreateContract/code-hash bookkeeping in
// core/virtual_machine.go generalized to spec.md §4.5's resolution table.
package resolver

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/trace"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

var log = logrus.WithField("component", "resolver")

// ErrNoWitnessPayload is returned when the deploying input carries no
// witness envelope at index 0 (spec.md §9 Open Question, resolved:
// first-input-only rule; see DESIGN.md).
var ErrNoWitnessPayload = fmt.Errorf("resolver: no witness payload at input 0")

// ErrAlreadyBound is returned when a CREATERESERVED target is already
// occupied.
var ErrAlreadyBound = fmt.Errorf("resolver: alkane id already bound")

// WitnessSource supplies the raw witness stack for a transaction's
// inputs, decoupling the resolver from a concrete wire.MsgTx so it can
// be unit tested without constructing full Bitcoin transactions.
type WitnessSource interface {
	// Witness returns the witness stack for tx input i, or nil if i is
	// out of range.
	Witness(i int) [][]byte
}

// FindWitnessPayload returns witness stack item 0 of the transaction's
// first input. Per original_source/crates/alkanes-support/src/utils.rs
// (find_witness_payload), only the first input is ever inspected; a
// deploying transaction that embeds its envelope elsewhere is rejected
// rather than scanned for (spec.md §5.1).
func FindWitnessPayload(tx WitnessSource) ([]byte, error) {
	w := tx.Witness(0)
	if len(w) == 0 {
		return nil, ErrNoWitnessPayload
	}
	return w[0], nil
}

// Resolution is the outcome of resolving a cellpack's target: the
// effective AlkaneId to run (rewritten for deployment forms) and its
// binary.
type Resolution struct {
	Target types.AlkaneId
	Binary []byte
}

// Resolve implements spec.md §4.5's table. witnessBinary is the payload
// found by FindWitnessPayload, consulted only for the CREATE and
// CREATERESERVED forms.
func Resolve(atomic *kv.AtomicPointer, rec *trace.Recorder, target types.AlkaneId, witnessBinary []byte) (Resolution, error) {
	seqPtr := keys.SequencePointer(atomic)
	nextSeq := seqPtr.GetValueU128()

	if target.IsCreated(nextSeq) {
		return resolveExisting(atomic, target)
	}
	if target.IsCreate() {
		return deployCreate(atomic, rec, nextSeq, witnessBinary)
	}
	if n, ok := target.ReservedNumber(); ok {
		return deployReserved(atomic, rec, n, witnessBinary)
	}
	if src, ok := target.FactorySource(); ok {
		return deployFactory(atomic, rec, nextSeq, src)
	}
	return resolveExisting(atomic, target)
}

func resolveExisting(atomic *kv.AtomicPointer, id types.AlkaneId) (Resolution, error) {
	bin := keys.BinaryPointer(atomic, id).Get()
	return Resolution{Target: id, Binary: bin}, nil
}

func deployCreate(atomic *kv.AtomicPointer, rec *trace.Recorder, nextSeq types.Uint128, witnessBinary []byte) (Resolution, error) {
	if len(witnessBinary) == 0 {
		return Resolution{}, ErrNoWitnessPayload
	}
	newID := types.AlkaneId{Block: types.U128FromUint64(2), Tx: nextSeq}
	keys.BinaryPointer(atomic, newID).Set(witnessBinary)
	bumpSequence(atomic, nextSeq)
	rec.CreateAlkane(newID)
	log.WithField("id", newID.String()).Debug("deployed via CREATE")
	return Resolution{Target: newID, Binary: witnessBinary}, nil
}

func deployReserved(atomic *kv.AtomicPointer, rec *trace.Recorder, n types.Uint128, witnessBinary []byte) (Resolution, error) {
	if len(witnessBinary) == 0 {
		return Resolution{}, ErrNoWitnessPayload
	}
	newID := types.AlkaneId{Block: types.U128FromUint64(4), Tx: n}
	existing := keys.BinaryPointer(atomic, newID).Get()
	if len(existing) > 0 {
		return Resolution{}, fmt.Errorf("%w: %s", ErrAlreadyBound, newID)
	}
	keys.BinaryPointer(atomic, newID).Set(witnessBinary)
	rec.CreateAlkane(newID)
	log.WithField("id", newID.String()).Debug("deployed via CREATERESERVED")
	return Resolution{Target: newID, Binary: witnessBinary}, nil
}

func deployFactory(atomic *kv.AtomicPointer, rec *trace.Recorder, nextSeq types.Uint128, source types.AlkaneId) (Resolution, error) {
	newID := types.AlkaneId{Block: types.U128FromUint64(2), Tx: nextSeq}
	bin := keys.BinaryPointer(atomic, source).Get()
	keys.BinaryPointer(atomic, newID).Set(bin)
	bumpSequence(atomic, nextSeq)
	rec.CreateAlkane(newID)
	log.WithFields(logrus.Fields{"id": newID.String(), "source": source.String()}).Debug("deployed via FACTORY")
	return Resolution{Target: newID, Binary: bin}, nil
}

func bumpSequence(atomic *kv.AtomicPointer, cur types.Uint128) {
	next, _ := cur.Add(types.U128FromUint64(1))
	keys.SequencePointer(atomic).SetValueU128(next)
}
