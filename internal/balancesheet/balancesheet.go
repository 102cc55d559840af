// Package balancesheet implements the multiset-of-balances abstraction
// every call frame carries: incoming/outgoing alkane transfers, the
// runtime's residual balance, and the persisted per-outpoint ledger,
// grounded on the teacher's ledger bookkeeping in core/ledger.go
// (balance map keyed by account, increase/decrease/merge helpers)
// generalized to a lazily-loaded backing store via Go generics.
package balancesheet

import (
	"fmt"
	"sort"

	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

// BackingPointer lazily resolves the persisted balance for an id the
// sheet has not yet touched. The zero value of any implementation must
// behave as "nothing stored" (returns the zero Uint128).
type BackingPointer interface {
	LoadBalance(id types.AlkaneId) types.Uint128
}

// NoBacking is a BackingPointer with nothing behind it, for balance
// sheets that start empty (e.g. a fresh runtime's incoming parcel).
type NoBacking struct{}

// LoadBalance always returns zero.
func (NoBacking) LoadBalance(types.AlkaneId) types.Uint128 { return types.Uint128{} }

// AtomicBacking resolves balances from a persisted outpoint ledger via
// an atomic pointer, following the key scheme in package keys.
type AtomicBacking struct {
	Atomic   *kv.AtomicPointer
	Outpoint []byte
}

// LoadBalance reads the stored balance for id at the backing outpoint.
func (a AtomicBacking) LoadBalance(id types.AlkaneId) types.Uint128 {
	return keys.BalancePointer(a.Atomic, a.Outpoint, id).GetValueU128()
}

// Enumerable is satisfied by anything that can be walked as an ordered
// list of (id, value) entries: AlkaneTransferParcel, or another
// BalanceSheet.
type Enumerable interface {
	Entries() []types.AlkaneTransfer
}

// BalanceSheet is a mapping AlkaneId -> Uint128, parameterized over a
// BackingPointer so that untouched ids are loaded from persistent state
// on first access and cached thereafter (spec invariant: get(id) is the
// sum of cached deltas and the stored balance reachable through the
// backing pointer).
type BalanceSheet[P BackingPointer] struct {
	backing P
	cache   map[types.AlkaneId]types.Uint128
	loaded  map[types.AlkaneId]bool
}

// New constructs an empty sheet backed by backing.
func New[P BackingPointer](backing P) *BalanceSheet[P] {
	return &BalanceSheet[P]{
		backing: backing,
		cache:   make(map[types.AlkaneId]types.Uint128),
		loaded:  make(map[types.AlkaneId]bool),
	}
}

// FromParcel builds a sheet pre-populated from an incoming transfer
// parcel, the common case of constructing a call frame's incoming_alkanes
// sheet. Duplicate ids in the parcel are summed.
func FromParcel(parcel types.AlkaneTransferParcel) *BalanceSheet[NoBacking] {
	s := New[NoBacking](NoBacking{})
	for _, t := range parcel {
		_ = s.Increase(t.ID, t.Value)
	}
	return s
}

func (b *BalanceSheet[P]) resolve(id types.AlkaneId) types.Uint128 {
	if v, ok := b.cache[id]; ok {
		return v
	}
	v := b.backing.LoadBalance(id)
	b.cache[id] = v
	b.loaded[id] = true
	return v
}

// Get returns the current balance for id.
func (b *BalanceSheet[P]) Get(id types.AlkaneId) types.Uint128 {
	return b.resolve(id)
}

// Set overwrites the balance for id, bypassing the backing pointer.
func (b *BalanceSheet[P]) Set(id types.AlkaneId, v types.Uint128) {
	b.cache[id] = v
	b.loaded[id] = true
}

// Increase adds v to id's balance, failing on 128-bit overflow.
func (b *BalanceSheet[P]) Increase(id types.AlkaneId, v types.Uint128) error {
	cur := b.resolve(id)
	sum, overflow := cur.Add(v)
	if overflow {
		return fmt.Errorf("balancesheet: overflow increasing %s by %s", id, v)
	}
	b.cache[id] = sum
	return nil
}

// Decrease subtracts v from id's balance. It returns false, leaving the
// sheet unmodified, if v exceeds the current balance.
func (b *BalanceSheet[P]) Decrease(id types.AlkaneId, v types.Uint128) bool {
	cur := b.resolve(id)
	diff, underflow := cur.Sub(v)
	if underflow {
		return false
	}
	b.cache[id] = diff
	return true
}

// ErrBalanceUnderflow is returned by DebitMintable when a non-mintable id
// is debited past its current balance.
var ErrBalanceUnderflow = fmt.Errorf("balancesheet: balance underflow")

// DebitMintable decreases the sheet by every entry in other. An id whose
// amount exceeds the current balance is allowed to clamp to zero only if
// it carries no recorded etching under atomic (i.e. it is "mintable in
// protocol"); otherwise the whole call fails with ErrBalanceUnderflow and
// the sheet is left unmodified (callers roll back the enclosing
// checkpoint on error, so no partial application is needed here).
func (b *BalanceSheet[P]) DebitMintable(other Enumerable, atomic *kv.AtomicPointer) error {
	entries := other.Entries()
	// Pre-check pass: fail fast on any non-mintable overflow before
	// mutating anything, so a failed call leaves b untouched.
	for _, e := range entries {
		cur := b.resolve(e.ID)
		if _, underflow := cur.Sub(e.Value); underflow {
			etched := len(keys.EtchingPointer(atomic, e.ID).Get()) > 0
			if etched {
				return fmt.Errorf("%w: id %s", ErrBalanceUnderflow, e.ID)
			}
		}
	}
	for _, e := range entries {
		cur := b.resolve(e.ID)
		diff, underflow := cur.Sub(e.Value)
		if underflow {
			diff = types.Uint128{}
		}
		b.cache[e.ID] = diff
	}
	return nil
}

// Merge folds every entry of other into b via Increase.
func (b *BalanceSheet[P]) Merge(other Enumerable) error {
	for _, e := range other.Entries() {
		if err := b.Increase(e.ID, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns every touched id with a nonzero balance, sorted by
// (block, tx) for determinism. Satisfies Enumerable.
func (b *BalanceSheet[P]) Entries() []types.AlkaneTransfer {
	ids := make([]types.AlkaneId, 0, len(b.cache))
	for id, v := range b.cache {
		if !v.IsZero() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })
	out := make([]types.AlkaneTransfer, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.AlkaneTransfer{ID: id, Value: b.cache[id]})
	}
	return out
}

func idLess(a, b types.AlkaneId) bool {
	if c := a.Block.Cmp(b.Block); c != 0 {
		return c < 0
	}
	return a.Tx.Cmp(b.Tx) < 0
}

// Serialize renders the sheet in the canonical on-wire form: entries
// sorted by id, each written as 32-byte id || 16-byte little-endian
// balance.
func (b *BalanceSheet[P]) Serialize() []byte {
	entries := b.Entries()
	out := make([]byte, 0, len(entries)*48)
	for _, e := range entries {
		out = append(out, keys.AlkaneIdBytes(e.ID)...)
		le := e.Value.MarshalLE()
		out = append(out, le[:]...)
	}
	return out
}

// Pipe persists every touched balance under outpoint in the atomic
// index, deleting entries that end at zero.
func (b *BalanceSheet[P]) Pipe(atomic *kv.AtomicPointer, outpoint []byte) {
	for id, v := range b.cache {
		ptr := keys.BalancePointer(atomic, outpoint, id)
		if v.IsZero() {
			ptr.Delete()
			continue
		}
		ptr.SetValueU128(v)
	}
}
