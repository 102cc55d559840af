package extcall

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/synnergy-labs/alkanes-indexer/internal/keys"
	"github.com/synnergy-labs/alkanes-indexer/internal/runtime"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

func TestIsDeployTargetRecognizesEveryForm(t *testing.T) {
	require.True(t, isDeployTarget(types.NewAlkaneId(1, 0)))
	require.True(t, isDeployTarget(types.NewAlkaneId(3, 9)))
	require.True(t, isDeployTarget(types.NewAlkaneId(5, 7)))
	require.True(t, isDeployTarget(types.NewAlkaneId(6, 7)))
	require.False(t, isDeployTarget(types.NewAlkaneId(2, 1)))
}

func TestCallDisciplineTargetsResolvedId(t *testing.T) {
	parent := &runtime.RuntimeContext{Myself: types.NewAlkaneId(2, 1), Caller: types.NewAlkaneId(2, 9)}
	target := types.NewAlkaneId(2, 5)

	caller, myself := callDiscipline.resolve(parent, target)
	require.True(t, caller.Equal(parent.Myself))
	require.True(t, myself.Equal(target))
}

func TestStaticcallDisciplineAlwaysRollsBack(t *testing.T) {
	require.Equal(t, policyAlwaysRollback, staticcallDiscipline.policy)
	require.Equal(t, policyCommitOnSuccess, callDiscipline.policy)
	require.Equal(t, policyCommitOnSuccess, delegatecallDiscipline.policy)
}

func TestDelegatecallDisciplinePreservesCallerAndMyself(t *testing.T) {
	parent := &runtime.RuntimeContext{Myself: types.NewAlkaneId(2, 1), Caller: types.NewAlkaneId(2, 9)}
	target := types.NewAlkaneId(2, 5)

	caller, myself := delegatecallDiscipline.resolve(parent, target)
	require.True(t, caller.Equal(parent.Caller))
	require.True(t, myself.Equal(parent.Myself))
}

func TestLedgerIDIncorporatesOutpointAndID(t *testing.T) {
	outpoint := []byte("txid:0")
	a := keys.LedgerID(outpoint, types.NewAlkaneId(2, 1))
	b := keys.LedgerID(outpoint, types.NewAlkaneId(2, 2))
	require.NotEqual(t, a, b)
	require.True(t, len(a) == len(outpoint)+32)
}
