package fueltank

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFuelTransactionFloorsAtMinimum(t *testing.T) {
	tank := New(MainnetParams)
	require.NoError(t, tank.Initialize(MainnetParams, 1_000_000))

	tank.FuelTransaction(1, 0) // tiny tx relative to block
	require.Equal(t, MainnetParams.MinimumFuel, tank.Remaining())
}

func TestFuelTransactionProportionalAllocation(t *testing.T) {
	tank := New(MainnetParams)
	require.NoError(t, tank.Initialize(MainnetParams, 1000))

	tank.FuelTransaction(500, 0) // half the block
	require.Equal(t, MainnetParams.TotalFuel/2, tank.Remaining())
}

func TestConsumeFuelFailsWhenExhausted(t *testing.T) {
	tank := New(MainnetParams)
	require.NoError(t, tank.Initialize(MainnetParams, 1000))
	tank.FuelTransaction(1000, 0)

	require.NoError(t, tank.ConsumeFuel(MainnetParams.TotalFuel-1))
	err := tank.ConsumeFuel(2)
	require.ErrorIs(t, err, ErrFuelExhausted)
}

func TestRefuelBlockReturnsUnspent(t *testing.T) {
	tank := New(MainnetParams)
	require.NoError(t, tank.Initialize(MainnetParams, 1000))
	before := tank.TotalBlockFuel()

	tank.FuelTransaction(500, 0)
	require.NoError(t, tank.ConsumeFuel(100))
	tank.RefuelBlock()

	// Conservation: total block fuel ends up exactly what was not consumed.
	require.Equal(t, before-100, tank.TotalBlockFuel())
}

func TestDrainFuelGivesNoRefund(t *testing.T) {
	tank := New(MainnetParams)
	require.NoError(t, tank.Initialize(MainnetParams, 1000))
	before := tank.TotalBlockFuel()

	tank.FuelTransaction(500, 0)
	tank.DrainFuel()

	require.Equal(t, before-MainnetParams.TotalFuel/2, tank.TotalBlockFuel())
	require.Equal(t, uint64(0), tank.Remaining())
}

func TestInitializeRejectsNetworkSwitch(t *testing.T) {
	tank := New(MainnetParams)
	require.NoError(t, tank.Initialize(MainnetParams, 1000))

	other := MainnetParams
	other.Name = "testnet"
	err := tank.Initialize(other, 1000)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestStartFuelAndReturnConservation(t *testing.T) {
	tank := New(MainnetParams)
	require.NoError(t, tank.Initialize(MainnetParams, 1000))
	tank.FuelTransaction(1000, 0)
	allocation := tank.Remaining()

	offered, err := tank.StartFuel(1000)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), offered)

	used := uint64(400)
	tank.Return(offered - used)
	require.Equal(t, allocation-used, tank.Remaining())
}
