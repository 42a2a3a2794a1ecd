// Package workspace provides the single-host primitives that make artifact
// persistence safe under concurrent invocation: a per-repository directory
// lock and a crash-safe atomic file write.
package workspace

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/hashing"
	"github.com/Rogers-F/governance-engine/internal/logging"
)

// Default atomic-write retry settings.
const (
	DefaultWriteAttempts = 5
	DefaultWriteBackoff  = 50 * time.Millisecond
	DefaultFilePerm      = 0o644
)

// WriteOptions controls WriteFileAtomic. Zero values take the defaults.
type WriteOptions struct {
	Attempts int
	Backoff  time.Duration
	Perm     os.FileMode
	Logger   *zap.Logger
}

func (o *WriteOptions) applyDefaults() {
	if o.Attempts <= 0 {
		o.Attempts = DefaultWriteAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultWriteBackoff
	}
	if o.Perm == 0 {
		o.Perm = DefaultFilePerm
	}
	o.Logger = logging.OrNop(o.Logger)
}

// WriteFileAtomic replaces path with data. Line endings are normalized to
// "\n". The content goes to a temp file in the target directory, is synced
// and renamed over path, and the directory is synced after the rename.
// Permission and busy errors are retried with a constant backoff; any other
// error fails immediately. The temp file never outlives the call.
func WriteFileAtomic(ctx context.Context, path string, data []byte, opts WriteOptions) error {
	opts.applyDefaults()
	content := []byte(hashing.NormalizeNewlines(string(data)))

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.WrapEngineError(domain.ErrAtomicWrite, "create parent directory", err)
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := writeOnce(path, content, opts.Perm)
		if err == nil {
			return struct{}{}, nil
		}
		if !isRetryableWriteError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		opts.Logger.Debug("atomic write retry",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(opts.Backoff)),
		backoff.WithMaxTries(uint(opts.Attempts)),
	)
	if err != nil {
		return domain.WrapEngineError(domain.ErrAtomicWrite, path, err)
	}
	return nil
}

func writeOnce(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
		return err
	}
	return nil
}

// isRetryableWriteError reports the permission and busy errors that a
// concurrent reader or scanner on the same file can cause transiently.
func isRetryableWriteError(err error) bool {
	return errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY)
}
