// Package genesis applies the one-time premine credited to the genesis
// alkane, grounded on original_source/crates/alkanes-std-genesis-alkane
// (resolved per SPEC_FULL.md §5.4, since the distilled spec only names
// the feature without giving it a home package) and on the teacher's
// pattern of crediting an initial balance via a BalanceSheet before the
// first block is processed.
package genesis

import (
	"fmt"
	"math/big"

	"github.com/synnergy-labs/alkanes-indexer/internal/balancesheet"
	"github.com/synnergy-labs/alkanes-indexer/internal/fueltank"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

// AlkaneID is the genesis alkane's well-known address, (2,0).
var AlkaneID = types.NewAlkaneId(2, 0)

// OutpointLabel is the fixed ledger key the premined balance is credited
// to. It is not a real transaction outpoint, and no code path moves the
// balance held under this label to one: transactions processed by the
// pipeline do not read or spend it.
var OutpointLabel = []byte("genesis")

// premineAmount computes 50_000_000 * height as a Uint128, per the
// original's premine formula (GENESIS_BLOCK substituted with the actual
// configured genesis height).
func premineAmount(height uint64) (types.Uint128, error) {
	v := new(big.Int).Mul(big.NewInt(50_000_000), new(big.Int).SetUint64(height))
	return types.U128FromBig(v)
}

// ApplyPremine credits the genesis alkane with its one-time premine at
// params.GenesisHeight. Callers invoke this exactly once, when the
// indexer loop reaches that height, before any transaction in the block
// is processed (spec.md §4.11 item 6 / SPEC_FULL.md §5.4).
func ApplyPremine(atomic *kv.AtomicPointer, params fueltank.NetworkParams) error {
	amount, err := premineAmount(params.GenesisHeight)
	if err != nil {
		return fmt.Errorf("genesis: premine amount: %w", err)
	}
	if amount.IsZero() {
		return nil
	}

	sheet := balancesheet.New[balancesheet.AtomicBacking](balancesheet.AtomicBacking{Atomic: atomic, Outpoint: OutpointLabel})
	if err := sheet.Increase(AlkaneID, amount); err != nil {
		return fmt.Errorf("genesis: credit premine: %w", err)
	}
	sheet.Pipe(atomic, OutpointLabel)
	return nil
}
