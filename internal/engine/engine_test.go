package engine

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/synnergy-labs/alkanes-indexer/internal/fixtures"
	"github.com/synnergy-labs/alkanes-indexer/internal/fueltank"
	"github.com/synnergy-labs/alkanes-indexer/internal/kv"
	"github.com/synnergy-labs/alkanes-indexer/internal/runtime"
	"github.com/synnergy-labs/alkanes-indexer/internal/trace"
	"github.com/synnergy-labs/alkanes-indexer/internal/types"
)

func compileOrSkip(t *testing.T, name fixtures.Name) []byte {
	t.Helper()
	wasm, err := fixtures.Compile(name, t.TempDir())
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			t.Skip("wat2wasm not installed")
		}
		t.Fatalf("compile %s: %v", name, err)
	}
	return wasm
}

func newTestContext(atomic *kv.AtomicPointer) *runtime.RuntimeContext {
	return &runtime.RuntimeContext{
		Myself: types.NewAlkaneId(2, 1),
		Caller: types.NewAlkaneId(2, 9),
		Message: &runtime.MessageView{
			Atomic: atomic,
		},
		Trace: trace.NewRecorder(),
	}
}

func TestExecuteNoopCommitsEmptyResponse(t *testing.T) {
	wasm := compileOrSkip(t, fixtures.Noop)
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	tank := fueltank.NewChildTank(fueltank.MainnetParams, fueltank.MainnetParams.TotalFuel)

	eng := New()
	resp, err := eng.Execute(newTestContext(atomic), wasm, tank, fueltank.MainnetParams, nil)
	require.NoError(t, err)
	require.Empty(t, resp.Data)
	require.Empty(t, resp.Alkanes)
}

func TestExecuteRevertRollsBack(t *testing.T) {
	wasm := compileOrSkip(t, fixtures.Revert)
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	tank := fueltank.NewChildTank(fueltank.MainnetParams, fueltank.MainnetParams.TotalFuel)

	eng := New()
	_, err := eng.Execute(newTestContext(atomic), wasm, tank, fueltank.MainnetParams, nil)
	require.Error(t, err)
}

func TestExecuteAbortRollsBack(t *testing.T) {
	wasm := compileOrSkip(t, fixtures.Abort)
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	tank := fueltank.NewChildTank(fueltank.MainnetParams, fueltank.MainnetParams.TotalFuel)

	eng := New()
	_, err := eng.Execute(newTestContext(atomic), wasm, tank, fueltank.MainnetParams, nil)
	require.ErrorIs(t, err, ErrGuestAbort)
}

func TestExecuteLoggerRunsHostLogImport(t *testing.T) {
	wasm := compileOrSkip(t, fixtures.Logger)
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	tank := fueltank.NewChildTank(fueltank.MainnetParams, fueltank.MainnetParams.TotalFuel)

	eng := New()
	_, err := eng.Execute(newTestContext(atomic), wasm, tank, fueltank.MainnetParams, nil)
	require.NoError(t, err)
}

func TestExecuteStorageWriteIsReturnedInResponse(t *testing.T) {
	wasm := compileOrSkip(t, fixtures.StorageWrite)
	atomic := kv.NewAtomicPointer(kv.NewMemoryBackend())
	tank := fueltank.NewChildTank(fueltank.MainnetParams, fueltank.MainnetParams.TotalFuel)

	eng := New()
	resp, err := eng.Execute(newTestContext(atomic), wasm, tank, fueltank.MainnetParams, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), resp.Storage.Get([]byte("k")))
}
