package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/logging"
)

// Lock layout and defaults.
const (
	LockDirName   = ".lock"
	OwnerFileName = "owner.json"

	DefaultLockTTL      = 120 * time.Second
	DefaultLockTimeout  = 10 * time.Second
	DefaultPollInterval = 50 * time.Millisecond

	// unreadableGrace covers the window between creating the lock directory
	// and writing its owner file.
	unreadableGrace = 2 * time.Second
)

var fingerprintPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// LockDir returns <workspacesHome>/<fingerprint>/.lock.
func LockDir(workspacesHome, fingerprint string) (string, error) {
	if err := ValidateFingerprint(fingerprint); err != nil {
		return "", err
	}
	return filepath.Join(workspacesHome, fingerprint, LockDirName), nil
}

// RepoWorkspace returns <workspacesHome>/<fingerprint>.
func RepoWorkspace(workspacesHome, fingerprint string) (string, error) {
	if err := ValidateFingerprint(fingerprint); err != nil {
		return "", err
	}
	return filepath.Join(workspacesHome, fingerprint), nil
}

// ValidateFingerprint rejects fingerprints that could escape the workspaces home.
func ValidateFingerprint(fp string) error {
	if !fingerprintPattern.MatchString(fp) || fp == "." || fp == ".." {
		return domain.WrapEngineError(domain.ErrFingerprintBad, fmt.Sprintf("%q", fp), nil)
	}
	return nil
}

// Owner is the metadata written into a held lock directory.
type Owner struct {
	LockID     string    `json:"lock_id"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockOptions controls AcquireLock. Zero values take the defaults.
type LockOptions struct {
	TTL          time.Duration
	Timeout      time.Duration
	PollInterval time.Duration
	// Now is the clock used for owner timestamps and staleness. Defaults to time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

func (o *LockOptions) applyDefaults() {
	if o.TTL <= 0 {
		o.TTL = DefaultLockTTL
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultLockTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Logger = logging.OrNop(o.Logger)
}

// Lock is a held workspace lock.
type Lock struct {
	dir    string
	owner  Owner
	logger *zap.Logger

	mu       sync.Mutex
	released bool
}

// Dir returns the lock directory.
func (l *Lock) Dir() string { return l.dir }

// Owner returns the metadata this lock was acquired with.
func (l *Lock) Owner() Owner { return l.owner }

// AcquireLock takes the lock at dir, polling until opts.Timeout. A lock whose
// owner is older than opts.TTL is reclaimed. Timeout returns a retryable
// ErrLockTimeout; cancellation returns the context error.
func AcquireLock(ctx context.Context, dir string, opts LockOptions) (*Lock, error) {
	opts.applyDefaults()
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, domain.WrapEngineError(domain.ErrLockIO, "create lock parent", err)
	}

	start := time.Now()
	attempts := 0
	for {
		attempts++
		l, err := tryAcquireOrSteal(dir, opts)
		if err != nil {
			return nil, err
		}
		if l != nil {
			opts.Logger.Debug("workspace lock acquired",
				zap.String("dir", dir),
				zap.String("lock_id", l.owner.LockID),
				zap.Int("attempts", attempts),
			)
			return l, nil
		}

		waited := time.Since(start)
		if waited >= opts.Timeout {
			return nil, domain.WrapEngineError(domain.ErrLockTimeout,
				fmt.Sprintf("%s after %s (%d attempts)", dir, waited.Round(time.Millisecond), attempts), nil)
		}

		timer := time.NewTimer(opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// WithLock runs fn while holding the lock at dir.
func WithLock(ctx context.Context, dir string, opts LockOptions, fn func() error) (err error) {
	l, err := AcquireLock(ctx, dir, opts)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}

// tryAcquireOrSteal makes one acquisition attempt. It returns (nil, nil)
// when the lock is held by a live owner.
func tryAcquireOrSteal(dir string, opts LockOptions) (*Lock, error) {
	l, err := create(dir, opts)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return nil, err
	}

	observed, readable, stale, err := inspect(dir, opts)
	if err != nil || !stale {
		return nil, err
	}

	tomb := fmt.Sprintf("%s.stale-%s", dir, uuid.NewString())
	if err := os.Rename(dir, tomb); err != nil {
		// Another acquirer moved or released it first.
		return nil, nil
	}

	current, currentReadable := readOwner(tomb)
	if currentReadable != readable || current.LockID != observed.LockID {
		// The directory changed hands between inspection and rename.
		restoreDisplaced(dir, tomb, current, opts.Logger)
		return nil, nil
	}

	if err := os.RemoveAll(tomb); err != nil {
		return nil, domain.WrapEngineError(domain.ErrLockIO, "remove stale lock", err)
	}
	opts.Logger.Warn("reclaimed stale workspace lock",
		zap.String("dir", dir),
		zap.String("stale_lock_id", observed.LockID),
		zap.Int("stale_pid", observed.PID),
		zap.Bool("owner_readable", readable),
	)

	l, err = create(dir, opts)
	if errors.Is(err, fs.ErrExist) {
		return nil, nil
	}
	return l, err
}

// restoreDisplaced moves a live lock that was renamed by mistake back to dir.
// When dir has been taken meanwhile the tombstone is left in place.
func restoreDisplaced(dir, tomb string, owner Owner, logger *zap.Logger) {
	if err := os.Rename(tomb, dir); err != nil {
		logger.Warn("workspace lock displaced during reclaim",
			zap.String("dir", dir),
			zap.String("tomb", tomb),
			zap.String("lock_id", owner.LockID),
			zap.Error(err),
		)
	}
}

// create makes the lock directory exclusively and writes its owner file.
func create(dir string, opts LockOptions) (*Lock, error) {
	if err := os.Mkdir(dir, 0o700); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, err
		}
		return nil, domain.WrapEngineError(domain.ErrLockIO, "create lock directory", err)
	}

	host, _ := os.Hostname()
	owner := Owner{
		LockID:     uuid.NewString(),
		PID:        os.Getpid(),
		Hostname:   host,
		AcquiredAt: opts.Now().UTC(),
	}
	if err := writeOwner(dir, owner); err != nil {
		_ = os.RemoveAll(dir)
		return nil, domain.WrapEngineError(domain.ErrLockIO, "write lock owner", err)
	}
	return &Lock{dir: dir, owner: owner, logger: opts.Logger}, nil
}

// inspect decides whether the lock at dir may be reclaimed. A vanished
// directory is reported as not stale so the caller simply retries.
func inspect(dir string, opts LockOptions) (Owner, bool, bool, error) {
	owner, readable := readOwner(dir)
	now := opts.Now()
	if readable {
		return owner, true, now.Sub(owner.AcquiredAt) > opts.TTL, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Owner{}, false, false, nil
		}
		return Owner{}, false, false, domain.WrapEngineError(domain.ErrLockIO, "stat lock directory", err)
	}
	return Owner{}, false, now.Sub(info.ModTime()) > unreadableGrace, nil
}

func readOwner(dir string) (Owner, bool) {
	data, err := os.ReadFile(filepath.Join(dir, OwnerFileName))
	if err != nil {
		return Owner{}, false
	}
	var o Owner
	if err := json.Unmarshal(data, &o); err != nil || o.LockID == "" || o.AcquiredAt.IsZero() {
		return Owner{}, false
	}
	return o, true
}

// writeOwner publishes the owner file with a rename so readers never see a
// partial document.
func writeOwner(dir string, o Owner) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return writeOnce(filepath.Join(dir, OwnerFileName), append(data, '\n'), 0o600)
}

// Release removes the owner file and then the lock directory. Releasing twice
// is a no-op. Releasing a lock that has been reclaimed by another owner
// returns ErrLockNotHeld and leaves the new owner's directory alone.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}

	current, ok := readOwner(l.dir)
	if !ok || current.LockID != l.owner.LockID {
		l.released = true
		return domain.WrapEngineError(domain.ErrLockNotHeld, l.dir, nil)
	}
	if err := os.Remove(filepath.Join(l.dir, OwnerFileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.WrapEngineError(domain.ErrLockIO, "remove lock owner", err)
	}
	if err := os.Remove(l.dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.WrapEngineError(domain.ErrLockIO, "remove lock directory", err)
	}
	l.released = true
	l.logger.Debug("workspace lock released", zap.String("dir", l.dir), zap.String("lock_id", l.owner.LockID))
	return nil
}
