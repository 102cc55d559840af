package fixtures

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompileEveryFixture(t *testing.T) {
	for _, name := range []Name{Noop, Revert, Abort, Logger, StorageWrite} {
		name := name
		t.Run(string(name), func(t *testing.T) {
			wasm, err := Compile(name, t.TempDir())
			if err != nil {
				if errors.Is(err, exec.ErrNotFound) {
					t.Skip("wat2wasm not installed")
				}
				t.Fatalf("compile %s: %v", name, err)
			}
			require.NotEmpty(t, wasm)
			require.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d}, wasm[:4], "wasm magic number")
		})
	}
}
