package genesis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/synnergy-labs/alkanes-indexer/internal/fueltank"
	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
)

func TestApplyPremineCreditsGenesisAlkane(t *testing.T) {
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	params := fueltank.MainnetParams
	params.GenesisHeight = 840000

	require.NoError(t, ApplyPremine(atomic, params))

	got := keys.BalancePointer(atomic, OutpointLabel, AlkaneID).GetValueU128()
	want, err := premineAmount(840000)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestApplyPremineIsNoopAtZeroHeight(t *testing.T) {
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	params := fueltank.MainnetParams
	params.GenesisHeight = 0

	require.NoError(t, ApplyPremine(atomic, params))

	got := keys.BalancePointer(atomic, OutpointLabel, AlkaneID).GetValueU128()
	require.True(t, got.IsZero())
}
