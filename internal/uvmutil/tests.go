package uvmutil

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// TempSwapPath returns a scratch path for a backing-store file plus a
// cleanup func, in the manner of the teacher's CreateTempFile helper.
func TempSwapPath(t *testing.T) (string, func()) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, fmt.Sprintf("uvm-swap-%d.dat", rand.Intn(1_000_000)))
	return path, func() {
		os.Remove(path)
	}
}
