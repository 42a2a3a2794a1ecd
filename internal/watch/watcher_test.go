package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rogers-F/governance-engine/internal/logging"
	"github.com/Rogers-F/governance-engine/internal/workspace"
)

func startWatcher(t *testing.T, cfg Config, onChange func(context.Context) error) (*SessionWatcher, chan error, context.CancelFunc) {
	t.Helper()
	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, onChange) }()

	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return w, done, cancel
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Path: filepath.Join(t.TempDir(), "missing", "SESSION_STATE.json")})
	assert.Error(t, err)
}

func TestSessionWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SESSION_STATE.json")

	var calls atomic.Int32
	startWatcher(t, Config{Path: path, Debounce: 300 * time.Millisecond}, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, workspace.WriteFileAtomic(context.Background(), path, []byte(`{"phase":"1.1"}`), workspace.WriteOptions{}))
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(700 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSessionWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SESSION_STATE.json")

	var calls atomic.Int32
	startWatcher(t, Config{Path: path, Debounce: 20 * time.Millisecond}, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "repo-cache.yaml"), []byte("a: 1\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, workspace.LockDirName), 0o755))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestSessionWatcher_HandlerErrorKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SESSION_STATE.json")
	logger, logs := logging.NewObserved()

	var calls atomic.Int32
	startWatcher(t, Config{Path: path, Debounce: 20 * time.Millisecond, Logger: logger}, func(context.Context) error {
		calls.Add(1)
		return errors.New("evaluation failed")
	})

	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	seen := calls.Load()

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return calls.Load() > seen }, 3*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, logs.FilterMessage("session change handler failed").Len(), 1)
}

func TestSessionWatcher_CancelStopsRun(t *testing.T) {
	w, err := New(Config{Path: filepath.Join(t.TempDir(), "SESSION_STATE.json")})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(context.Context) error { return nil }) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSessionWatcher_RunTwice(t *testing.T) {
	dir := t.TempDir()
	w, _, _ := startWatcher(t, Config{Path: filepath.Join(dir, "SESSION_STATE.json")}, func(context.Context) error { return nil })

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.running
	}, time.Second, 5*time.Millisecond)

	err := w.Run(context.Background(), func(context.Context) error { return nil })
	assert.ErrorContains(t, err, "already running")
}

func TestSessionWatcher_ClosedRejectsRun(t *testing.T) {
	w, err := New(Config{Path: filepath.Join(t.TempDir(), "SESSION_STATE.json")})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	err = w.Run(context.Background(), func(context.Context) error { return nil })
	assert.ErrorContains(t, err, "closed")
}
