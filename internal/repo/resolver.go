// Package repo resolves the repository a unit of work belongs to and derives
// its stable fingerprint.
package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Rogers-F/governance-engine/internal/config"
	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/logging"
	"github.com/Rogers-F/governance-engine/internal/reason"
)

// CandidateEnvVars are consulted in priority order.
var CandidateEnvVars = []string{
	"OPENCODE_REPO_ROOT",
	"OPENCODE_WORKSPACE_ROOT",
	"REPO_ROOT",
	"GITHUB_WORKSPACE",
}

// Discovery sources other than the environment variable names themselves.
const (
	SourceCWD         = "cwd"
	SourceCWDAncestor = "cwd_ancestor"
	SourceGitTopLevel = "git_toplevel"
	SourceNone        = "none"
)

// Context is the resolved repository identity for one evaluation.
type Context struct {
	RepoRoot    string      `json:"repo_root,omitempty"`
	Source      string      `json:"source"`
	IsGitRoot   bool        `json:"is_git_root"`
	RemoteURL   string      `json:"remote_url,omitempty"`
	Fingerprint string      `json:"repo_fingerprint,omitempty"`
	ReasonCode  reason.Code `json:"reason_code"`
	// Candidates records why each rejected candidate was skipped.
	Candidates []string `json:"candidates,omitempty"`
}

// Resolved reports whether a repository root was found.
func (c Context) Resolved() bool {
	return c.ReasonCode == reason.CodeNone && c.RepoRoot != ""
}

// Identity is the value the activation hash binds to: the canonical remote
// when known, else the fingerprint.
func (c Context) Identity() string {
	if canon := CanonicalRemoteURL(c.RemoteURL); canon != "" {
		return canon
	}
	return c.Fingerprint
}

// ResolveInput is everything one resolution reads.
type ResolveInput struct {
	Env          config.Env
	CWD          string
	CWDTrust     domain.CWDTrust
	ExecAllowed  bool
	GitAvailable bool
}

// Resolver discovers repository roots. It holds no state between calls.
type Resolver struct {
	Git           GitProbe
	GitTimeout    time.Duration
	AncestorDepth int
	Logger        *zap.Logger
}

// NewResolver creates a resolver with the default git probe.
func NewResolver(gitTimeout time.Duration, ancestorDepth int, logger *zap.Logger) *Resolver {
	return &Resolver{
		Git:           DefaultGitProbe{},
		GitTimeout:    gitTimeout,
		AncestorDepth: ancestorDepth,
		Logger:        logging.OrNop(logger),
	}
}

// Resolve finds the repository root. Environment candidates win, then the
// working directory (and its ancestors when untrusted), then git itself when
// the host may run it.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) Context {
	log := logging.OrNop(r.Logger)
	var notes []string

	for _, name := range CandidateEnvVars {
		v := in.Env.Get(name)
		if v == "" {
			continue
		}
		switch {
		case !filepath.IsAbs(v):
			notes = append(notes, fmt.Sprintf("%s: not absolute", name))
		case filepath.Clean(v) != v:
			notes = append(notes, fmt.Sprintf("%s: not normalized", name))
		case !r.Git.IsRoot(v):
			notes = append(notes, fmt.Sprintf("%s: not a git root", name))
		default:
			return r.found(v, name, notes)
		}
	}

	if in.CWD != "" && filepath.IsAbs(in.CWD) {
		cwd := filepath.Clean(in.CWD)
		if r.Git.IsRoot(cwd) {
			return r.found(cwd, SourceCWD, notes)
		}
		if in.CWDTrust == domain.CWDUntrusted {
			if root, ok := r.walkAncestors(cwd); ok {
				return r.found(root, SourceCWDAncestor, notes)
			}
		}
		notes = append(notes, "cwd: not a git root")
	}

	failed := Context{Source: SourceNone, Candidates: notes}
	switch {
	case !in.ExecAllowed:
		failed.ReasonCode = reason.BlockedExecDisallowed
		return failed
	case !in.GitAvailable:
		failed.ReasonCode = reason.BlockedRepoIdentityResolution
		return failed
	case in.CWD == "":
		failed.ReasonCode = reason.BlockedRepoIdentityResolution
		return failed
	}

	timeout := r.GitTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	top, err := r.Git.TopLevel(cctx, in.CWD)
	if err != nil {
		log.Debug("git toplevel lookup failed", zap.String("cwd", in.CWD), zap.Error(err))
		failed.Candidates = append(failed.Candidates, "git: "+err.Error())
		failed.ReasonCode = reason.BlockedRepoIdentityResolution
		return failed
	}
	return r.found(top, SourceGitTopLevel, notes)
}

func (r *Resolver) walkAncestors(start string) (string, bool) {
	cur := start
	for i := 0; i < r.AncestorDepth; i++ {
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", false
		}
		cur = parent
		if r.Git.IsRoot(cur) {
			return cur, true
		}
	}
	return "", false
}

func (r *Resolver) found(root, source string, notes []string) Context {
	remote := r.Git.RemoteURL(root)
	return Context{
		RepoRoot:    root,
		Source:      source,
		IsGitRoot:   true,
		RemoteURL:   remote,
		Fingerprint: Fingerprint(remote, root),
		ReasonCode:  reason.CodeNone,
		Candidates:  notes,
	}
}
