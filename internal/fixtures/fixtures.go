// Package fixtures compiles the hand-written minimal WAT contracts
// under wat/ into WASM byte blobs for use by package engine/extcall/
// pipeline's tests, grounded on the teacher's CompileWASM helper in
// core/contracts.go (shells out to the wat2wasm CLI; callers skip
// gracefully when it is not installed, per contract_vm_test.go).
package fixtures

import (
	"embed"
	"os"
	"os/exec"
	"path/filepath"
)

//go:embed wat/*.wat
var watFS embed.FS

// Name enumerates the fixtures available under wat/.
type Name string

const (
	Noop         Name = "noop"
	Revert       Name = "revert"
	Abort        Name = "abort"
	Logger       Name = "logger"
	StorageWrite Name = "storage_write"
)

// Compile reads wat/<name>.wat and compiles it to a WASM byte blob via
// the external wat2wasm CLI, writing the intermediate file under outDir
// (a test's t.TempDir(), conventionally).
func Compile(name Name, outDir string) ([]byte, error) {
	src, err := watFS.ReadFile(filepath.Join("wat", string(name)+".wat"))
	if err != nil {
		return nil, err
	}

	watPath := filepath.Join(outDir, string(name)+".wat")
	if err := os.WriteFile(watPath, src, 0o644); err != nil {
		return nil, err
	}
	wasmPath := filepath.Join(outDir, string(name)+".wasm")

	cmd := exec.Command("wat2wasm", "-o", wasmPath, watPath)
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return os.ReadFile(wasmPath)
}
