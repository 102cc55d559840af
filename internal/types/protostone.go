package types

// Edict routes amount units of id to a vout, real or virtual, per the
// decoded runestone's edict list. Runestone/protostone wire decoding
// itself is an external collaborator (spec.md §1's "consumed as a
// parsed structure"); Edict/Protostone/Runestone are the shape that
// collaborator is expected to hand the pipeline.
type Edict struct {
	ID     AlkaneId
	Amount Uint128
	Output uint32
}

// Protostone is one decoded sub-record of a transaction's runestone.
// Pointer and Refund are nil when the wire record omitted them (the
// pipeline applies its own fallback per spec.md §4.9).
type Protostone struct {
	ProtocolTag uint64
	Message     []byte
	Pointer     *uint32
	Refund      *uint32
}

// Runestone is the fully decoded op-return payload of a transaction.
type Runestone struct {
	Edicts      []Edict
	Protostones []Protostone
}

// EngineProtocolTag is the protocol_tag value the pipeline dispatches
// into the alkanes engine (spec.md §4.9).
const EngineProtocolTag = 1
