// Package testenv keeps tests away from the real ~/.lens directory.
// It has no dependencies on other internal packages so any test can use
// it without import cycles.
package testenv

import (
	"fmt"
	"os"
	"testing"
)

// SetDataDir points LENS_DATA_DIR at a fresh temp directory for the rest
// of the test and returns it.
func SetDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LENS_DATA_DIR", dir)
	return dir
}

// RunIsolatedMain runs m with LENS_DATA_DIR set to a temp directory and
// LENS_API_URL unset, then fails the run if anything reached the real
// data directory. Use it from TestMain.
func RunIsolatedMain(m *testing.M) int {
	barrier := NewProdBarrier(DefaultProdDataDir())

	tmpDir, err := os.MkdirTemp("", "lens-test-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		return 1
	}
	defer os.RemoveAll(tmpDir)

	restore := setenv("LENS_DATA_DIR", tmpDir)
	defer restore()
	restoreURL := unsetenv("LENS_API_URL")
	defer restoreURL()

	code := m.Run()

	if msg := barrier.Check(); msg != "" {
		fmt.Fprintln(os.Stderr, msg)
		return 1
	}
	return code
}

func setenv(key, value string) func() {
	orig, set := os.LookupEnv(key)
	os.Setenv(key, value)
	return func() {
		if set {
			os.Setenv(key, orig)
		} else {
			os.Unsetenv(key)
		}
	}
}

func unsetenv(key string) func() {
	orig, set := os.LookupEnv(key)
	os.Unsetenv(key)
	return func() {
		if set {
			os.Setenv(key, orig)
		}
	}
}
