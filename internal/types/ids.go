package types

import "fmt"

// AlkaneId identifies a contract instance by (block, tx), per spec §3.
type AlkaneId struct {
	Block Uint128
	Tx    Uint128
}

// NewAlkaneId is a convenience constructor from plain uint64 components,
// used by tests, the index ingestion code, genesis and view.
func NewAlkaneId(block, tx uint64) AlkaneId {
	return AlkaneId{Block: U128FromUint64(block), Tx: U128FromUint64(tx)}
}

func (id AlkaneId) String() string {
	return fmt.Sprintf("(%s,%s)", id.Block.String(), id.Tx.String())
}

// Equal reports structural equality.
func (id AlkaneId) Equal(o AlkaneId) bool {
	return id.Block.Cmp(o.Block) == 0 && id.Tx.Cmp(o.Tx) == 0
}

// IsCreate reports whether id names the CREATE special form (1, 0).
func (id AlkaneId) IsCreate() bool {
	return id.Block.Cmp(U128FromUint64(1)) == 0 && id.Tx.IsZero()
}

// ReservedNumber reports the reservation index n if id names the
// CREATERESERVED special form (3, n).
func (id AlkaneId) ReservedNumber() (Uint128, bool) {
	if id.Block.Cmp(U128FromUint64(3)) == 0 {
		return id.Tx, true
	}
	return Uint128{}, false
}

// FactorySource reports the alkane to clone from if id names a FACTORY
// special form: (5, n) clones (2, n); (6, n) clones (4, n).
func (id AlkaneId) FactorySource() (AlkaneId, bool) {
	switch {
	case id.Block.Cmp(U128FromUint64(5)) == 0:
		return AlkaneId{Block: U128FromUint64(2), Tx: id.Tx}, true
	case id.Block.Cmp(U128FromUint64(6)) == 0:
		return AlkaneId{Block: U128FromUint64(4), Tx: id.Tx}, true
	default:
		return AlkaneId{}, false
	}
}

// IsCreated reports whether id names an existing, already-deployed alkane:
// block 2 or 4, with tx strictly below the current sequence number (for
// block 2). CREATE, CREATERESERVED and FACTORY forms, and every other
// block, report false. nextSequence is the next unassigned (2, n) slot.
func (id AlkaneId) IsCreated(nextSequence Uint128) bool {
	if id.IsCreate() {
		return false
	}
	if _, ok := id.ReservedNumber(); ok {
		return false
	}
	if _, ok := id.FactorySource(); ok {
		return false
	}
	two := U128FromUint64(2)
	four := U128FromUint64(4)
	if id.Block.Cmp(two) == 0 {
		return id.Tx.Cmp(nextSequence) < 0
	}
	return id.Block.Cmp(four) == 0
}

// AlkaneTransfer is a single (id, value) balance movement.
type AlkaneTransfer struct {
	ID    AlkaneId
	Value Uint128
}

// AlkaneTransferParcel is an ordered list of transfers, e.g. the incoming
// balances carried by a cellpack dispatch or the outgoing alkanes returned
// by a contract call.
type AlkaneTransferParcel []AlkaneTransfer

// Clone returns an independent copy of the parcel.
func (p AlkaneTransferParcel) Clone() AlkaneTransferParcel {
	out := make(AlkaneTransferParcel, len(p))
	copy(out, p)
	return out
}

// Entries returns p unchanged, letting a parcel satisfy any interface
// that wants an ordered list of transfers (e.g. balancesheet.Enumerable).
func (p AlkaneTransferParcel) Entries() []AlkaneTransfer { return p }

// Cellpack encodes the target contract and the ordered u128 inputs decoded
// from a protostone message (spec §3).
type Cellpack struct {
	Target AlkaneId
	Inputs []Uint128
}

// Opcode returns the first input, conventionally the entry-method selector,
// and the remaining inputs passed to the runtime context.
func (c Cellpack) Opcode() (Uint128, []Uint128) {
	if len(c.Inputs) == 0 {
		return Uint128{}, nil
	}
	return c.Inputs[0], c.Inputs[1:]
}

// ParseCellpack decodes a cellpack from a flat list of u128 values: the
// first two are the target's (block, tx), the rest are inputs.
func ParseCellpack(values []Uint128) (Cellpack, error) {
	if len(values) < 2 {
		return Cellpack{}, fmt.Errorf("types: cellpack requires at least target block/tx, got %d values", len(values))
	}
	return Cellpack{
		Target: AlkaneId{Block: values[0], Tx: values[1]},
		Inputs: append([]Uint128(nil), values[2:]...),
	}, nil
}
