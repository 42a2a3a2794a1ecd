package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/repo"
	"github.com/Rogers-F/governance-engine/internal/session"
	"github.com/Rogers-F/governance-engine/internal/workspace"
)

// Session keys written by the committer.
const (
	keyWorkspaceReady   = "workspace_ready_gate_committed"
	keyRepoFingerprint  = "repo_fingerprint"
	keyWorkspaceReadyAt = "workspace_ready_committed_at"
)

// WorkspaceReadyCommitter records the workspace-ready gate in the repository's
// session state file.
type WorkspaceReadyCommitter struct {
	base
}

// NewWorkspaceReadyCommitter validates opts and creates a committer.
func NewWorkspaceReadyCommitter(opts Options) (*WorkspaceReadyCommitter, error) {
	b, err := newBase(opts)
	if err != nil {
		return nil, err
	}
	return &WorkspaceReadyCommitter{base: b}, nil
}

// SessionPath is the session state file for a repository.
func (c *WorkspaceReadyCommitter) SessionPath(rc repo.Context) (string, error) {
	dir, _, err := c.paths(rc)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, domain.SessionStateFileName), nil
}

// CommitWorkspaceReady marks the gate committed for rc. Every other field of
// the session document is preserved, including a SESSION_STATE wrapper.
func (c *WorkspaceReadyCommitter) CommitWorkspaceReady(ctx context.Context, rc repo.Context) error {
	return c.locked(ctx, rc, func(dir string) error {
		path := filepath.Join(dir, domain.SessionStateFileName)
		outer, inner, err := readSessionForUpdate(path)
		if err != nil {
			return err
		}
		inner[keyWorkspaceReady] = true
		inner[keyRepoFingerprint] = rc.Fingerprint
		inner[keyWorkspaceReadyAt] = c.opts.Now().UTC().Format(time.RFC3339)

		data, err := json.MarshalIndent(outer, "", "  ")
		if err != nil {
			return domain.WrapEngineError(domain.ErrAtomicWrite, path, err)
		}
		if err := workspace.WriteFileAtomic(ctx, path, append(data, '\n'), c.opts.Write); err != nil {
			return err
		}
		c.opts.Logger.Info("workspace ready gate committed",
			zap.String("repo_fingerprint", rc.Fingerprint),
			zap.String("path", path),
		)
		return nil
	})
}

// readSessionForUpdate returns the full document and the map that holds the
// state fields. A missing file starts a new unwrapped document.
func readSessionForUpdate(path string) (map[string]any, map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		m := map[string]any{}
		return m, m, nil
	}
	if err != nil {
		return nil, nil, domain.WrapEngineError(domain.ErrLockIO, path, err)
	}

	outer := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &outer); err != nil {
			return nil, nil, domain.WrapEngineError(domain.ErrSessionInvalid, path, err)
		}
		if outer == nil {
			outer = map[string]any{}
		}
	}
	if inner, ok := outer[session.RootKey].(map[string]any); ok {
		return outer, inner, nil
	}
	return outer, outer, nil
}
