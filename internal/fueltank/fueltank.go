// Package fueltank implements the process-wide, per-block fuel budget
// that bounds every contract call, grounded on the teacher's GasMeter in
// core/virtual_machine.go (Consume/Refund against a running budget)
// generalized to the block/transaction two-level allocation described
// in spec.md §4.3.
package fueltank

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "fueltank")

// NetworkParams is the network-binding fuel constant table (spec.md §9,
// Open Question: "the constant set...must not change for the lifetime of
// an index"). Values below are mainnet defaults, resolved from
// original_source/src/vm/fuel.rs (see DESIGN.md).
type NetworkParams struct {
	Name                string
	TotalFuel           uint64
	MinimumFuel         uint64
	FuelPerVByte        uint64
	FuelPerRequestByte  uint64
	FuelPerLoadByte     uint64
	FuelPerStoreByte    uint64
	FuelSequence        uint64
	FuelFuel            uint64
	FuelExtcall         uint64
	FuelHeight          uint64
	FuelBalance         uint64
	FuelExtcallDeploy   uint64
	FuelLoadBlock       uint64
	FuelLoadTransaction uint64
	GenesisHeight       uint64
}

// MainnetParams is the default network configuration.
var MainnetParams = NetworkParams{
	Name:                "mainnet",
	TotalFuel:           100_000_000,
	MinimumFuel:         350_000,
	FuelPerVByte:        150,
	FuelPerRequestByte:  1,
	FuelPerLoadByte:     2,
	FuelPerStoreByte:    8,
	FuelSequence:        5,
	FuelFuel:            5,
	FuelExtcall:         500,
	FuelHeight:          10,
	FuelBalance:         10,
	FuelExtcallDeploy:   10_000,
	FuelLoadBlock:       1000,
	FuelLoadTransaction: 500,
	GenesisHeight:       0,
}

// ErrFuelExhausted is returned by ConsumeFuel when the current
// transaction's allocation cannot cover the request.
var ErrFuelExhausted = fmt.Errorf("fueltank: fuel exhausted")

// ErrAlreadyInitialized guards against re-initializing a tank bound to a
// different NetworkParams mid-lifetime (spec.md §9, network-binding
// configuration).
var ErrAlreadyInitialized = fmt.Errorf("fueltank: already initialized against a different network")

const noTxIndex = ^uint64(0)

// FuelTank is the process-wide mutable fuel budget threaded through the
// indexer loop as an owned value (spec.md §9: "avoid process-wide
// statics" — callers own one instance and pass it explicitly).
type FuelTank struct {
	params NetworkParams
	bound  bool

	totalBlockFuel uint64
	blockVsize     uint64

	txAllocation   uint64
	txConsumed     uint64
	txMetered      uint64
	currentTxIndex uint64
	currentTxSize  uint64
}

// New constructs an uninitialized tank. Initialize must be called once
// per block before FuelTransaction/ConsumeFuel are usable.
func New(params NetworkParams) *FuelTank {
	return &FuelTank{params: params, currentTxIndex: noTxIndex}
}

// Params returns the bound network parameters.
func (f *FuelTank) Params() NetworkParams { return f.params }

// NewChildTank builds an already-bound tank pre-loaded with allocation
// units, used by a sub-call discipline to give the child engine
// invocation its own metering scope independent of the parent's
// internal counters once the parent has carved allocation out of its
// own budget via StartFuel (spec.md §4.6 step 9).
func NewChildTank(params NetworkParams, allocation uint64) *FuelTank {
	return &FuelTank{
		params:         params,
		bound:          true,
		txAllocation:   allocation,
		currentTxIndex: noTxIndex,
	}
}

// Initialize resets the per-block budget. blockVsize is the total
// virtual size of the block being processed. Once a tank has been
// initialized, a later Initialize whose NetworkParams carry a different
// network Name is rejected, since the fuel table is network-binding
// configuration.
func (f *FuelTank) Initialize(params NetworkParams, blockVsize uint64) error {
	if f.bound && f.params.Name != params.Name {
		return ErrAlreadyInitialized
	}
	f.params = params
	f.bound = true
	f.totalBlockFuel = params.TotalFuel
	f.blockVsize = blockVsize
	f.currentTxIndex = noTxIndex
	f.currentTxSize = 0
	f.txAllocation = 0
	f.txConsumed = 0
	f.txMetered = 0
	log.WithFields(logrus.Fields{"network": params.Name, "block_vsize": blockVsize}).Debug("fuel tank initialized")
	return nil
}

// FuelTransaction allocates a per-transaction fuel budget proportional
// to txsize, floored at MinimumFuel, and debits it from the block's
// remaining budget.
func (f *FuelTank) FuelTransaction(txsize, txindex uint64) {
	var alloc uint64
	if f.blockVsize > 0 {
		alloc = f.totalBlockFuel * txsize / f.blockVsize
	}
	if alloc < f.params.MinimumFuel {
		alloc = f.params.MinimumFuel
	}
	debit := alloc
	if debit > f.totalBlockFuel {
		debit = f.totalBlockFuel
	}
	f.totalBlockFuel -= debit
	f.txAllocation = alloc
	f.txConsumed = 0
	f.txMetered = 0
	f.currentTxIndex = txindex
	f.currentTxSize = txsize
	log.WithFields(logrus.Fields{"txindex": txindex, "alloc": alloc}).Debug("transaction fueled")
}

// ConsumeFuel deducts n units from the current transaction's allocation,
// failing with ErrFuelExhausted (carrying txindex/requested/remaining)
// if the allocation cannot cover it.
func (f *FuelTank) ConsumeFuel(n uint64) error {
	if f.txAllocation < n {
		return fmt.Errorf("%w: txindex=%d requested=%d remaining=%d",
			ErrFuelExhausted, f.currentTxIndex, n, f.txAllocation)
	}
	f.txAllocation -= n
	f.txConsumed += n
	f.txMetered += n
	return nil
}

// Remaining reports the current transaction's unspent allocation, the
// "start_fuel" offered to a fresh top-level engine call.
func (f *FuelTank) Remaining() uint64 { return f.txAllocation }

// RefuelBlock returns the unspent metered amount to the block's total
// and subtracts the transaction's vsize from the remaining block vsize,
// called on clean transaction completion (spec.md §4.3).
func (f *FuelTank) RefuelBlock() {
	refund := f.txAllocation
	f.totalBlockFuel += refund
	if f.blockVsize >= f.currentTxSize {
		f.blockVsize -= f.currentTxSize
	} else {
		f.blockVsize = 0
	}
	log.WithFields(logrus.Fields{"txindex": f.currentTxIndex, "refund": refund}).Debug("block refueled")
	f.txAllocation = 0
	f.txMetered = 0
}

// DrainFuel zeros the per-transaction counters without refund, called
// on a hard top-level revert (spec.md §4.3).
func (f *FuelTank) DrainFuel() {
	log.WithField("txindex", f.currentTxIndex).Debug("fuel drained without refund")
	f.txAllocation = 0
	f.txMetered = 0
}

// StartFuel begins a reentrant sub-call's budget by carving offered
// units out of the current transaction allocation; the caller is
// responsible for returning unused units via Return on completion,
// preserving the "sum of refunded + consumed equals allocated" invariant
// (spec.md §4.3).
func (f *FuelTank) StartFuel(offered uint64) (uint64, error) {
	if offered > f.txAllocation {
		offered = f.txAllocation
	}
	if err := f.ConsumeFuel(offered); err != nil {
		return 0, err
	}
	return offered, nil
}

// Return credits unused fuel from a completed sub-call back to the
// transaction allocation.
func (f *FuelTank) Return(unused uint64) {
	f.txAllocation += unused
	if f.txMetered >= unused {
		f.txMetered -= unused
	} else {
		f.txMetered = 0
	}
}

// TotalBlockFuel exposes the block's remaining budget, for invariant
// checks (spec.md §8 property 1: fuel conservation).
func (f *FuelTank) TotalBlockFuel() uint64 { return f.totalBlockFuel }

// TxConsumed exposes the current transaction's consumed counter.
func (f *FuelTank) TxConsumed() uint64 { return f.txConsumed }
