package repo

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// GitProbe answers repository questions about a directory.
type GitProbe interface {
	// IsRoot reports whether path is the top of a git working tree.
	IsRoot(path string) bool
	// RemoteURL returns the first URL of the "origin" remote, or "".
	RemoteURL(path string) string
	// TopLevel asks the git binary for the working tree containing dir.
	TopLevel(ctx context.Context, dir string) (string, error)
}

// DefaultGitProbe reads repository metadata with go-git and shells out to git
// only for TopLevel.
type DefaultGitProbe struct{}

// IsRoot implements GitProbe.
func (DefaultGitProbe) IsRoot(path string) bool {
	_, err := git.PlainOpen(path)
	return err == nil
}

// RemoteURL implements GitProbe.
func (DefaultGitProbe) RemoteURL(path string) string {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return ""
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return ""
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

// TopLevel implements GitProbe.
func (DefaultGitProbe) TopLevel(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse --show-toplevel: %w", err)
	}
	top := strings.TrimSpace(string(out))
	if top == "" {
		return "", fmt.Errorf("git rev-parse --show-toplevel: empty output")
	}
	return filepath.Clean(top), nil
}
