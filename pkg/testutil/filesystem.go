package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// =====================================
// File System Testing Utilities
// =====================================

// CreateTestFile writes content to dir/filename, creating parent directories,
// and returns the path.
func CreateTestFile(t *testing.T, dir, filename, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

// AssertFileExists verifies that a file exists
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("expected file to exist: %s", path)
	}
}

// AssertFileNotExists verifies that a file does not exist
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("expected file to not exist: %s", path)
	}
}

// ReadFile returns the content of path, failing the test when it is missing.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

// Tree maps each regular file below a root, as a slash-separated relative
// path, to its content.
type Tree map[string]string

// SnapshotTree reads every regular file below root. A missing root gives an
// empty tree.
func SnapshotTree(t *testing.T, root string) Tree {
	t.Helper()
	out := Tree{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(b)
		return nil
	})
	require.NoError(t, err)
	return out
}

// Without returns a copy of the tree minus the named paths.
func (tr Tree) Without(paths ...string) Tree {
	drop := make(map[string]bool, len(paths))
	for _, p := range paths {
		drop[p] = true
	}
	out := make(Tree, len(tr))
	for k, v := range tr {
		if !drop[k] {
			out[k] = v
		}
	}
	return out
}

// =====================================
// Time and Concurrency Testing Utilities
// =====================================

// Eventually runs a function repeatedly until it succeeds or times out
func Eventually(t *testing.T, condition func() bool, timeout time.Duration, interval time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}

	t.Fatalf("condition was not met within %v", timeout)
}

// Consistently runs a function repeatedly and ensures it consistently returns true
func Consistently(t *testing.T, condition func() bool, duration time.Duration, interval time.Duration) {
	t.Helper()
	deadline := time.Now().Add(duration)

	for time.Now().Before(deadline) {
		if !condition() {
			t.Fatal("condition failed during consistency check")
		}
		time.Sleep(interval)
	}
}
