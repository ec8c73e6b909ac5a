package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// ReadFixture returns the contents of testdata/<name> relative to this package.
func ReadFixture(t testing.TB, name string) []byte {
	t.Helper()

	_, currentFile, _, _ := runtime.Caller(0)
	dir := filepath.Dir(currentFile)

	data, err := os.ReadFile(filepath.Join(dir, "testdata", name))
	require.NoError(t, err)
	return data
}
