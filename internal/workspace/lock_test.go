package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/logging"
)

func newTestLockDir(t *testing.T) string {
	t.Helper()
	dir, err := LockDir(t.TempDir(), "0123456789abcdef01234567")
	require.NoError(t, err)
	return dir
}

func fastOptions() LockOptions {
	return LockOptions{Timeout: 300 * time.Millisecond, PollInterval: 10 * time.Millisecond}
}

func TestLockDir(t *testing.T) {
	dir, err := LockDir("/ws", "abc123")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/ws", "abc123", ".lock"), dir)

	for _, bad := range []string{"", ".", "..", "../x", "a/b", `a\b`, "-x"} {
		_, err := LockDir("/ws", bad)
		assert.ErrorIs(t, err, domain.ErrFingerprintBad, "fingerprint %q", bad)
	}
}

func TestAcquireLock_WritesOwnerAndReleases(t *testing.T) {
	dir := newTestLockDir(t)

	l, err := AcquireLock(context.Background(), dir, fastOptions())
	require.NoError(t, err)
	assert.Equal(t, dir, l.Dir())

	data, err := os.ReadFile(filepath.Join(dir, OwnerFileName))
	require.NoError(t, err)
	var owner Owner
	require.NoError(t, json.Unmarshal(data, &owner))
	assert.Equal(t, l.Owner().LockID, owner.LockID)
	assert.Equal(t, os.Getpid(), owner.PID)
	assert.False(t, owner.AcquiredAt.IsZero())

	require.NoError(t, l.Release())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "lock directory should be removed")

	assert.NoError(t, l.Release(), "second release is a no-op")
}

func TestAcquireLock_TimesOutWhileHeld(t *testing.T) {
	dir := newTestLockDir(t)
	held, err := AcquireLock(context.Background(), dir, fastOptions())
	require.NoError(t, err)
	defer held.Release()

	start := time.Now()
	_, err = AcquireLock(context.Background(), dir, fastOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.True(t, domain.IsRetryable(err))
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestAcquireLock_ContextCancelled(t *testing.T) {
	dir := newTestLockDir(t)
	held, err := AcquireLock(context.Background(), dir, fastOptions())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := fastOptions()
	opts.Timeout = 5 * time.Second
	_, err = AcquireLock(ctx, dir, opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func writeRawOwner(t *testing.T, dir string, o Owner) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o700))
	data, err := json.Marshal(o)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, OwnerFileName), data, 0o600))
}

func TestAcquireLock_ReclaimsStaleOwner(t *testing.T) {
	dir := newTestLockDir(t)
	writeRawOwner(t, dir, Owner{
		LockID:     "stale-owner",
		PID:        999999,
		Hostname:   "elsewhere",
		AcquiredAt: time.Now().Add(-10 * time.Minute).UTC(),
	})

	logger, logs := logging.NewObserved()
	opts := fastOptions()
	opts.Logger = logger
	l, err := AcquireLock(context.Background(), dir, opts)
	require.NoError(t, err)
	defer l.Release()

	assert.NotEqual(t, "stale-owner", l.Owner().LockID)
	assert.Equal(t, 1, logs.FilterMessage("reclaimed stale workspace lock").Len())

	entries, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "tombstones must be removed")
}

func TestRestoreDisplaced_LeavesTombWhenDirRetaken(t *testing.T) {
	dir := newTestLockDir(t)
	tomb := dir + ".stale-test"
	writeRawOwner(t, tomb, Owner{LockID: "live", PID: 1, AcquiredAt: time.Now().UTC()})
	writeRawOwner(t, dir, Owner{LockID: "newcomer", PID: 2, AcquiredAt: time.Now().UTC()})

	logger, logs := logging.NewObserved()
	restoreDisplaced(dir, tomb, Owner{LockID: "live"}, logger)

	assert.FileExists(t, filepath.Join(tomb, OwnerFileName), "live owner's tombstone must not be deleted")
	got, ok := readOwner(dir)
	require.True(t, ok)
	assert.Equal(t, "newcomer", got.LockID)
	assert.Equal(t, 1, logs.FilterMessage("workspace lock displaced during reclaim").Len())
}

func TestRestoreDisplaced_MovesTombBack(t *testing.T) {
	dir := newTestLockDir(t)
	tomb := dir + ".stale-test"
	writeRawOwner(t, tomb, Owner{LockID: "live", PID: 1, AcquiredAt: time.Now().UTC()})

	restoreDisplaced(dir, tomb, Owner{LockID: "live"}, zap.NewNop())

	got, ok := readOwner(dir)
	require.True(t, ok)
	assert.Equal(t, "live", got.LockID)
	assert.NoDirExists(t, tomb)
}

func TestAcquireLock_RespectsFreshOwner(t *testing.T) {
	dir := newTestLockDir(t)
	writeRawOwner(t, dir, Owner{LockID: "live", PID: 1, AcquiredAt: time.Now().UTC()})

	_, err := AcquireLock(context.Background(), dir, fastOptions())
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
}

func TestAcquireLock_TTLUsesInjectedClock(t *testing.T) {
	dir := newTestLockDir(t)
	writeRawOwner(t, dir, Owner{LockID: "live", PID: 1, AcquiredAt: time.Now().UTC()})

	opts := fastOptions()
	opts.TTL = time.Minute
	opts.Now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	l, err := AcquireLock(context.Background(), dir, opts)
	require.NoError(t, err)
	assert.NoError(t, l.Release())
}

func TestAcquireLock_UnreadableOwner(t *testing.T) {
	t.Run("within grace window", func(t *testing.T) {
		dir := newTestLockDir(t)
		require.NoError(t, os.MkdirAll(dir, 0o700))
		require.NoError(t, os.WriteFile(filepath.Join(dir, OwnerFileName), []byte("{not json"), 0o600))

		_, err := AcquireLock(context.Background(), dir, fastOptions())
		assert.ErrorIs(t, err, domain.ErrLockTimeout)
	})

	t.Run("past grace window", func(t *testing.T) {
		dir := newTestLockDir(t)
		require.NoError(t, os.MkdirAll(dir, 0o700))
		require.NoError(t, os.WriteFile(filepath.Join(dir, OwnerFileName), []byte("{not json"), 0o600))
		old := time.Now().Add(-time.Minute)
		require.NoError(t, os.Chtimes(dir, old, old))

		l, err := AcquireLock(context.Background(), dir, fastOptions())
		require.NoError(t, err)
		assert.NoError(t, l.Release())
	})
}

func TestRelease_AfterReclaimDoesNotRemoveNewOwner(t *testing.T) {
	dir := newTestLockDir(t)
	first, err := AcquireLock(context.Background(), dir, fastOptions())
	require.NoError(t, err)

	opts := fastOptions()
	opts.TTL = time.Second
	opts.Now = func() time.Time { return time.Now().Add(time.Hour) }
	second, err := AcquireLock(context.Background(), dir, opts)
	require.NoError(t, err)

	err = first.Release()
	assert.ErrorIs(t, err, domain.ErrLockNotHeld)

	_, statErr := os.Stat(filepath.Join(dir, OwnerFileName))
	assert.NoError(t, statErr, "new owner's lock must survive")
	assert.NoError(t, second.Release())
}

func TestAcquireLock_MutualExclusion(t *testing.T) {
	dir := newTestLockDir(t)
	const workers = 8

	var active, maxActive, done int32
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			opts := LockOptions{Timeout: 10 * time.Second, PollInterval: 5 * time.Millisecond, Logger: zap.NewNop()}
			err := WithLock(context.Background(), dir, opts, func() error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				atomic.AddInt32(&done, 1)
				return nil
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("worker failed: %v", err)
	}
	assert.Equal(t, int32(1), maxActive, "two holders overlapped")
	assert.Equal(t, int32(workers), done)
}

func TestWithLock_PropagatesError(t *testing.T) {
	dir := newTestLockDir(t)
	boom := errors.New("boom")
	err := WithLock(context.Background(), dir, fastOptions(), func() error { return boom })
	assert.ErrorIs(t, err, boom)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "lock must be released after fn fails")
}
