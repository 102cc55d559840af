// Package extcall implements the three sub-call disciplines a running
// contract may invoke on another alkane — call, delegatecall, staticcall
// — sharing the skeleton of spec.md §4.6 and differing only in how the
// child's caller/myself are resolved and whether the outer checkpoint
// commits on success. It implements engine.Dispatcher, the interface
// package engine invokes from its __call/__staticcall/__delegatecall
// host imports, grounded on the teacher's call-dispatch switch in
// core/virtual_machine.go (registerHost's callContract closure) and
// generalized to three disciplines plus balance transfer and tracing.
package extcall

import (
	"errors"
	"fmt"

	"github.com/synnergy-labs/alkanes-indexer/internal/balancesheet"
	"github.com/synnergy-labs/alkanes-indexer/internal/engine"
	"github.com/synnergy-labs/alkanes-indexer/internal/fueltank"
	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/resolver"
	"github.com/synnergy-labs/alkanes-indexer/internal/runtime"
	"github.com/synnergy-labs/alkanes-indexer/internal/storagemap"
	"github.com/synnergy-labs/alkanes-indexer/internal/trace"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

// ErrInsufficientBalance is returned (and surfaces as a zero-length
// returndata to the guest) when the parent cannot cover incoming_alkanes.
var ErrInsufficientBalance = errors.New("extcall: insufficient balance for transfer")

// atomicPolicy controls what happens to the outer checkpoint opened for
// this sub-call once the child returns.
type atomicPolicy int

const (
	policyCommitOnSuccess atomicPolicy = iota
	policyAlwaysRollback
)

// discipline is the strategy object selecting (caller_for_child,
// myself_for_child, post_commit_policy) per spec.md §9's redesign note.
type discipline struct {
	name     string
	resolve  func(parent *runtime.RuntimeContext, target types.AlkaneId) (caller, myself types.AlkaneId)
	policy   atomicPolicy
	recordIn func(rec *trace.Recorder, ctx trace.CallContext)
}

var callDiscipline = discipline{
	name: "call",
	resolve: func(parent *runtime.RuntimeContext, target types.AlkaneId) (types.AlkaneId, types.AlkaneId) {
		return parent.Myself, target
	},
	policy:   policyCommitOnSuccess,
	recordIn: func(rec *trace.Recorder, ctx trace.CallContext) { rec.EnterCall(ctx) },
}

var staticcallDiscipline = discipline{
	name: "staticcall",
	resolve: func(parent *runtime.RuntimeContext, target types.AlkaneId) (types.AlkaneId, types.AlkaneId) {
		return parent.Myself, target
	},
	policy:   policyAlwaysRollback,
	recordIn: func(rec *trace.Recorder, ctx trace.CallContext) { rec.EnterStaticcall(ctx) },
}

var delegatecallDiscipline = discipline{
	name: "delegatecall",
	resolve: func(parent *runtime.RuntimeContext, target types.AlkaneId) (types.AlkaneId, types.AlkaneId) {
		return parent.Caller, parent.Myself
	},
	policy:   policyCommitOnSuccess,
	recordIn: func(rec *trace.Recorder, ctx trace.CallContext) { rec.EnterDelegatecall(ctx) },
}

// Dispatcher runs sub-calls by re-entering the engine, implementing
// engine.Dispatcher. One Dispatcher is shared by every call frame of a
// single top-level message (it carries no per-call state of its own).
type Dispatcher struct {
	Engine *engine.Engine
	Params fueltank.NetworkParams
}

// New constructs a Dispatcher.
func New(eng *engine.Engine, params fueltank.NetworkParams) *Dispatcher {
	return &Dispatcher{Engine: eng, Params: params}
}

// Call implements engine.Dispatcher.
func (d *Dispatcher) Call(parent *runtime.RuntimeContext, parentFuel *fueltank.FuelTank, cp types.Cellpack, incoming types.AlkaneTransferParcel, supplied *storagemap.StorageMap, fuelOffered uint64) (runtime.CallResponse, uint64, error) {
	return d.run(callDiscipline, parent, parentFuel, cp, incoming, supplied, fuelOffered)
}

// Staticcall implements engine.Dispatcher.
func (d *Dispatcher) Staticcall(parent *runtime.RuntimeContext, parentFuel *fueltank.FuelTank, cp types.Cellpack, incoming types.AlkaneTransferParcel, supplied *storagemap.StorageMap, fuelOffered uint64) (runtime.CallResponse, uint64, error) {
	return d.run(staticcallDiscipline, parent, parentFuel, cp, incoming, supplied, fuelOffered)
}

// Delegatecall implements engine.Dispatcher.
func (d *Dispatcher) Delegatecall(parent *runtime.RuntimeContext, parentFuel *fueltank.FuelTank, cp types.Cellpack, incoming types.AlkaneTransferParcel, supplied *storagemap.StorageMap, fuelOffered uint64) (runtime.CallResponse, uint64, error) {
	return d.run(delegatecallDiscipline, parent, parentFuel, cp, incoming, supplied, fuelOffered)
}

// isDeployTarget reports whether target names one of the deployment
// forms of spec.md §4.5 (CREATE, CREATERESERVED, FACTORY), as opposed
// to an existing alkane.
func isDeployTarget(target types.AlkaneId) bool {
	if target.IsCreate() {
		return true
	}
	if _, ok := target.ReservedNumber(); ok {
		return true
	}
	_, ok := target.FactorySource()
	return ok
}

func (d *Dispatcher) run(disc discipline, parent *runtime.RuntimeContext, parentFuel *fueltank.FuelTank, cp types.Cellpack, incoming types.AlkaneTransferParcel, supplied *storagemap.StorageMap, fuelOffered uint64) (runtime.CallResponse, uint64, error) {
	atomic := parent.Message.Atomic

	isDeploy := isDeployTarget(cp.Target)
	// FUEL_EXTCALL and the storage-byte surcharge were already deducted
	// from the parent's tank by the host closure in package engine
	// before reaching here. The deployment surcharge is charged here,
	// against the same parent tank, once the target form is known.
	if isDeploy {
		if err := parentFuel.ConsumeFuel(d.Params.FuelExtcallDeploy); err != nil {
			return runtime.CallResponse{}, 0, err
		}
	}

	carved, err := parentFuel.StartFuel(fuelOffered)
	if err != nil {
		return runtime.CallResponse{}, 0, err
	}
	fuelOffered = carved

	atomic.Checkpoint()

	res, err := resolver.Resolve(atomic, parent.Trace, cp.Target, nil)
	if err != nil {
		atomic.Rollback()
		return runtime.CallResponse{}, 0, fmt.Errorf("extcall: resolve: %w", err)
	}

	childCaller, childMyself := disc.resolve(parent, res.Target)

	supplied.Pipe(keys.StoragePointer(atomic, res.Target))

	parentLedger := keys.LedgerID(parent.Message.Outpoint, parent.Myself)
	childLedger := keys.LedgerID(parent.Message.Outpoint, res.Target)

	parentSheet := balancesheet.New[balancesheet.AtomicBacking](balancesheet.AtomicBacking{Atomic: atomic, Outpoint: parentLedger})
	childSheet := balancesheet.New[balancesheet.AtomicBacking](balancesheet.AtomicBacking{Atomic: atomic, Outpoint: childLedger})
	for _, t := range incoming {
		if !parentSheet.Decrease(t.ID, t.Value) {
			atomic.Rollback()
			return runtime.CallResponse{}, 0, fmt.Errorf("%w: id %s", ErrInsufficientBalance, t.ID)
		}
		if err := childSheet.Increase(t.ID, t.Value); err != nil {
			atomic.Rollback()
			return runtime.CallResponse{}, 0, err
		}
	}
	parentSheet.Pipe(atomic, parentLedger)
	childSheet.Pipe(atomic, childLedger)

	childCtx := &runtime.RuntimeContext{
		Myself:   childMyself,
		Caller:   childCaller,
		Inputs:   cp.Inputs,
		Incoming: incoming,
		Message:  parent.Message,
		Trace:    parent.Trace,
	}
	disc.recordIn(parent.Trace, childCtx.ToCallContext())

	binary := keys.BinaryPointer(atomic, res.Target).Get()
	childTank := fueltank.NewChildTank(d.Params, fuelOffered)

	resp, execErr := d.Engine.Execute(childCtx, binary, childTank, d.Params, d)
	fuelUsed := fuelOffered - childTank.Remaining()
	parentFuel.Return(childTank.Remaining())

	if execErr != nil {
		atomic.Rollback()
		parent.Trace.RevertContext(runtime.TagRevert(execErr.Error()), fuelUsed)
		return runtime.CallResponse{}, fuelUsed, execErr
	}

	// Move the child's outgoing alkanes back to the parent per the
	// discipline's atomic policy.
	for _, t := range resp.Alkanes {
		if !childSheet.Decrease(t.ID, t.Value) {
			atomic.Rollback()
			parent.Trace.RevertContext(runtime.TagRevert("outgoing exceeds child balance"), fuelUsed)
			return runtime.CallResponse{}, fuelUsed, fmt.Errorf("extcall: outgoing alkane %s exceeds child balance", t.ID)
		}
		if err := parentSheet.Increase(t.ID, t.Value); err != nil {
			atomic.Rollback()
			return runtime.CallResponse{}, fuelUsed, err
		}
	}
	parentSheet.Pipe(atomic, parentLedger)
	childSheet.Pipe(atomic, childLedger)
	if resp.Storage != nil {
		resp.Storage.Pipe(keys.StoragePointer(atomic, res.Target))
	}

	plain := resp.Plain()
	parent.Trace.ReturnContext(plain.Data, fuelUsed)

	switch disc.policy {
	case policyAlwaysRollback:
		atomic.Rollback()
	default:
		atomic.Commit()
	}

	return plain, fuelUsed, nil
}
