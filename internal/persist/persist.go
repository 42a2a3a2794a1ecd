// Package persist is the collaborator that owns every write under the
// workspaces home. Writes are serialized per repository by the workspace lock
// and land through atomic replacement.
package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/logging"
	"github.com/Rogers-F/governance-engine/internal/repo"
	"github.com/Rogers-F/governance-engine/internal/workspace"
)

// Options configures the persistence collaborators.
type Options struct {
	WorkspacesHome string
	Lock           workspace.LockOptions
	Write          workspace.WriteOptions
	Now            func() time.Time
	Logger         *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Logger = logging.OrNop(o.Logger)
	if o.Lock.Logger == nil {
		o.Lock.Logger = o.Logger
	}
	if o.Write.Logger == nil {
		o.Write.Logger = o.Logger
	}
}

func (o *Options) validate() error {
	if o.WorkspacesHome == "" {
		return domain.WrapEngineError(domain.ErrConfigInvalid, "workspaces home is required", nil)
	}
	if !filepath.IsAbs(o.WorkspacesHome) {
		return domain.WrapEngineError(domain.ErrConfigInvalid, fmt.Sprintf("workspaces home %q is not absolute", o.WorkspacesHome), nil)
	}
	return nil
}

// base holds what both collaborators share.
type base struct {
	opts Options
}

func newBase(opts Options) (base, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return base{}, err
	}
	return base{opts: opts}, nil
}

// paths returns the repository workspace and its lock directory.
func (b base) paths(rc repo.Context) (string, string, error) {
	if !rc.Resolved() || rc.Fingerprint == "" {
		return "", "", domain.WrapEngineError(domain.ErrRepoNotResolved, fmt.Sprintf("reason %s", rc.ReasonCode), nil)
	}
	dir, err := workspace.RepoWorkspace(b.opts.WorkspacesHome, rc.Fingerprint)
	if err != nil {
		return "", "", err
	}
	lockDir, err := workspace.LockDir(b.opts.WorkspacesHome, rc.Fingerprint)
	if err != nil {
		return "", "", err
	}
	return dir, lockDir, nil
}

// locked runs fn while holding the repository's workspace lock.
func (b base) locked(ctx context.Context, rc repo.Context, fn func(dir string) error) error {
	dir, lockDir, err := b.paths(rc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.WrapEngineError(domain.ErrLockIO, dir, err)
	}
	return workspace.WithLock(ctx, lockDir, b.opts.Lock, func() error {
		return fn(dir)
	})
}
