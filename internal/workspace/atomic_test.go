package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rogers-F/governance-engine/internal/domain"
)

func TestWriteFileAtomic_WritesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "repo-cache.yaml")

	err := WriteFileAtomic(context.Background(), path, []byte("a: 1\r\nb: 2\rc: 3\n"), WriteOptions{})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a: 1\nb: 2\nc: 3\n", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(DefaultFilePerm), info.Mode().Perm())
}

func TestWriteFileAtomic_ReplacesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decision-pack.md")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteFileAtomic(context.Background(), path, []byte("new"), WriteOptions{Perm: 0o600}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "decision-pack.md", entries[0].Name())
}

func TestWriteFileAtomic_NonRetryableFailsFast(t *testing.T) {
	dir := t.TempDir()
	// The target is an existing non-empty directory, so rename fails with a
	// non-permission error.
	path := filepath.Join(dir, "target")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "child"), 0o755))

	start := time.Now()
	err := WriteFileAtomic(context.Background(), path, []byte("x"), WriteOptions{Attempts: 5, Backoff: time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAtomicWrite)
	assert.Less(t, time.Since(start), time.Second, "non-retryable errors must not back off")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestIsRetryableWriteError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&fs.PathError{Op: "rename", Path: "x", Err: syscall.EACCES}, true},
		{&fs.PathError{Op: "rename", Path: "x", Err: syscall.EPERM}, true},
		{&os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EBUSY}, true},
		{fmt.Errorf("wrapped: %w", syscall.ETXTBSY), true},
		{&fs.PathError{Op: "open", Path: "x", Err: syscall.ENOENT}, false},
		{&os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.ENOTEMPTY}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableWriteError(tt.err), "%v", tt.err)
	}
}
