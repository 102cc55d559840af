// Package pipeline dispatches a transaction's decoded protostones into
// the engine and reconciles the resulting balances, implementing
// spec.md §4.9/§4.10. Runestone/protostone wire decoding is an external
// collaborator (spec.md §1); this package consumes the already-parsed
// types.Runestone. Grounded on the teacher's block-processing loop in
// core/virtual_machine.go (per-transaction dispatch, checkpoint per
// call, balance bookkeeping around the VM invocation).
package pipeline

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"github.com/synnergy-labs/alkanes-indexer/internal/balancesheet"
	"github.com/synnergy-labs/alkanes-indexer/internal/engine"
	"github.com/synnergy-labs/alkanes-indexer/internal/extcall"
	"github.com/synnergy-labs/alkanes-indexer/internal/fueltank"
	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/resolver"
	"github.com/synnergy-labs/alkanes-indexer/internal/runtime"
	"github.com/synnergy-labs/alkanes-indexer/internal/trace"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

var log = logrus.WithField("component", "pipeline")

// RuntimeBalanceVout is the well-known "u32::MAX" staging slot the
// aggregate runtime remainder is carried under across protostones
// within one transaction (spec.md §4.10).
const RuntimeBalanceVout = math.MaxUint32

// ErrInvalidOutputPointer is recorded (not returned — the message is
// refunded rather than failing the transaction) when a protomessage's
// pointer or refund names a vout beyond num_outputs+num_protostones.
var ErrInvalidOutputPointer = fmt.Errorf("pipeline: invalid output pointer")

// ErrVirtualVoutOverflow guards against a virtual vout computation
// running away past num_outputs+100 (spec.md §4.9 edge case).
var ErrVirtualVoutOverflow = fmt.Errorf("pipeline: virtual vout overflow")

// OutputLedger is the in-memory balances-by-output sheet a
// transaction's protostones route funds through before the final flush
// to persistent per-output balances.
type OutputLedger struct {
	sheets map[uint32]*balancesheet.BalanceSheet[balancesheet.NoBacking]
}

// NewOutputLedger constructs an empty ledger.
func NewOutputLedger() *OutputLedger {
	return &OutputLedger{sheets: make(map[uint32]*balancesheet.BalanceSheet[balancesheet.NoBacking])}
}

func (l *OutputLedger) sheetFor(vout uint32) *balancesheet.BalanceSheet[balancesheet.NoBacking] {
	s, ok := l.sheets[vout]
	if !ok {
		s = balancesheet.New[balancesheet.NoBacking](balancesheet.NoBacking{})
		l.sheets[vout] = s
	}
	return s
}

// Credit merges parcel into vout's sheet.
func (l *OutputLedger) Credit(vout uint32, parcel types.AlkaneTransferParcel) error {
	return l.sheetFor(vout).Merge(balancesheet.FromParcel(parcel))
}

// Take removes and returns vout's entries, clearing the slot.
func (l *OutputLedger) Take(vout uint32) types.AlkaneTransferParcel {
	s, ok := l.sheets[vout]
	if !ok {
		return nil
	}
	entries := s.Entries()
	delete(l.sheets, vout)
	return entries
}

// Pipeline wires the engine, the extcall dispatcher and fuel parameters
// into one entry point transactions are run through.
type Pipeline struct {
	Engine     *engine.Engine
	Dispatcher *extcall.Dispatcher
	Params     fueltank.NetworkParams
}

// New constructs a Pipeline.
func New(eng *engine.Engine, dispatcher *extcall.Dispatcher, params fueltank.NetworkParams) *Pipeline {
	return &Pipeline{Engine: eng, Dispatcher: dispatcher, Params: params}
}

func outpointBytes(txid [32]byte, vout uint32) []byte {
	out := make([]byte, 0, 36)
	out = append(out, txid[:]...)
	out = append(out, byte(vout), byte(vout>>8), byte(vout>>16), byte(vout>>24))
	return out
}

// ProcessTransaction runs every engine-tagged protostone of tx through
// the call discipline of spec.md §4.6 via a fresh top-level dispatch,
// and reconciles the resulting balances per §4.10. initialLeftover is
// the aggregate protorune balance the transaction's spent inputs
// carried that no edict claimed; it is credited to the first matching
// protostone only (spec.md §4.9's tie-break).
func (p *Pipeline) ProcessTransaction(
	atomic *kv.AtomicPointer,
	tank *fueltank.FuelTank,
	tx *wire.MsgTx,
	block *wire.MsgBlock,
	height uint64,
	txIndex uint64,
	rs types.Runestone,
	initialLeftover types.AlkaneTransferParcel,
) error {
	numOutputs := uint32(len(tx.TxOut))
	numProtostones := uint32(len(rs.Protostones))
	txid := tx.TxHash()

	ledger := NewOutputLedger()
	for _, e := range rs.Edicts {
		if err := ledger.Credit(e.Output, types.AlkaneTransferParcel{{ID: e.ID, Value: e.Amount}}); err != nil {
			return fmt.Errorf("pipeline: apply edict: %w", err)
		}
	}

	matched := false
	for i, ps := range rs.Protostones {
		if ps.ProtocolTag != types.EngineProtocolTag {
			continue
		}

		virtualVout := numOutputs + 1 + uint32(i)
		if virtualVout > numOutputs+100 {
			log.WithError(ErrVirtualVoutOverflow).WithField("txid", txid.String()).Warn("skipping protostone")
			if err := ledger.Credit(numOutputs, ledger.Take(virtualVout)); err != nil {
				return err
			}
			continue
		}

		pointer := numOutputs
		if ps.Pointer != nil {
			pointer = *ps.Pointer
		}
		refund := numOutputs
		if ps.Refund != nil {
			refund = *ps.Refund
		}
		limit := numOutputs + numProtostones
		if pointer > limit || refund > limit {
			log.WithError(ErrInvalidOutputPointer).WithFields(logrus.Fields{"txid": txid.String(), "pointer": pointer, "refund": refund}).Warn("refunding message")
			incoming := ledger.Take(virtualVout)
			if !matched {
				incoming = append(append(types.AlkaneTransferParcel{}, incoming...), initialLeftover...)
				matched = true
			}
			if refund > limit {
				refund = numOutputs
			}
			if err := ledger.Credit(refund, incoming); err != nil {
				return err
			}
			continue
		}

		incoming := ledger.Take(virtualVout)
		if !matched {
			incoming = append(append(types.AlkaneTransferParcel{}, incoming...), initialLeftover...)
			matched = true
		}

		if err := p.runMessage(atomic, tank, tx, block, height, txIndex, virtualVout, ps.Message, incoming, pointer, refund, ledger, outpointBytes(txid, virtualVout)); err != nil {
			log.WithError(err).WithField("txid", txid.String()).Debug("protomessage failed, refunding")
		}
	}

	for vout, sheet := range ledger.sheets {
		if vout == RuntimeBalanceVout || vout > numOutputs {
			continue
		}
		sheet.Pipe(atomic, outpointBytes(txid, vout))
	}
	return nil
}

func (p *Pipeline) runMessage(
	atomic *kv.AtomicPointer,
	tank *fueltank.FuelTank,
	tx *wire.MsgTx,
	block *wire.MsgBlock,
	height uint64,
	txIndex uint64,
	vout uint32,
	calldata []byte,
	incoming types.AlkaneTransferParcel,
	pointer, refund uint32,
	ledger *OutputLedger,
	outpoint []byte,
) error {
	values, err := types.DecodeVarintU128List(calldata)
	if err != nil {
		_ = ledger.Credit(refund, incoming)
		return fmt.Errorf("pipeline: decode cellpack: %w", err)
	}
	cp, err := types.ParseCellpack(values)
	if err != nil {
		_ = ledger.Credit(refund, incoming)
		return fmt.Errorf("pipeline: parse cellpack: %w", err)
	}

	atomic.Checkpoint()

	var witnessBinary []byte
	if _, reserved := cp.Target.ReservedNumber(); cp.Target.IsCreate() || reserved {
		tx := witnessAdapter{tx}
		witnessBinary, _ = resolver.FindWitnessPayload(tx)
	}

	rec := trace.NewRecorder()
	res, err := resolver.Resolve(atomic, rec, cp.Target, witnessBinary)
	if err != nil {
		atomic.Rollback()
		_ = ledger.Credit(refund, incoming)
		trace.Persist(atomic, outpoint, height, rec)
		return fmt.Errorf("pipeline: resolve: %w", err)
	}

	ctx := &runtime.RuntimeContext{
		Myself:   res.Target,
		Caller:   res.Target,
		Inputs:   cp.Inputs,
		Incoming: incoming,
		Message: &runtime.MessageView{
			Tx: tx, Block: block, Height: height, TxIndex: txIndex,
			Vout: vout, Outpoint: outpoint, Atomic: atomic,
		},
		Trace: rec,
	}
	rec.EnterCall(ctx.ToCallContext())

	offered := tank.Remaining()
	resp, execErr := p.Engine.Execute(ctx, res.Binary, tank, p.Params, p.Dispatcher)
	fuelUsed := offered - tank.Remaining()

	if execErr != nil {
		rec.RevertContext(runtime.TagRevert(execErr.Error()), fuelUsed)
		atomic.Rollback()
		_ = ledger.Credit(refund, incoming)
		trace.Persist(atomic, outpoint, height, rec)
		return execErr
	}

	initial := balancesheet.FromParcel(incoming)
	if err := initial.DebitMintable(resp.Alkanes, atomic); err != nil {
		rec.RevertContext(runtime.TagRevert(err.Error()), fuelUsed)
		atomic.Rollback()
		_ = ledger.Credit(refund, incoming)
		trace.Persist(atomic, outpoint, height, rec)
		return err
	}
	residual := initial.Entries()
	if err := initial.DebitMintable(types.AlkaneTransferParcel(residual), atomic); err != nil {
		rec.RevertContext(runtime.TagRevert(err.Error()), fuelUsed)
		atomic.Rollback()
		_ = ledger.Credit(refund, incoming)
		trace.Persist(atomic, outpoint, height, rec)
		return err
	}
	remainder := initial.Entries()

	if resp.Storage != nil {
		resp.Storage.Pipe(keys.StoragePointer(atomic, res.Target))
	}
	rec.ReturnContext(resp.Plain().Data, fuelUsed)
	atomic.Commit()
	trace.Persist(atomic, outpoint, height, rec)

	if err := ledger.Credit(pointer, resp.Alkanes); err != nil {
		return err
	}
	if err := ledger.Credit(RuntimeBalanceVout, residual); err != nil {
		return err
	}
	if err := ledger.Credit(refund, remainder); err != nil {
		return err
	}
	return nil
}

// witnessAdapter satisfies resolver.WitnessSource over a wire.MsgTx.
type witnessAdapter struct{ tx *wire.MsgTx }

func (w witnessAdapter) Witness(i int) [][]byte {
	if i < 0 || i >= len(w.tx.TxIn) {
		return nil
	}
	return w.tx.TxIn[i].Witness
}
