package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/orchestrator"
	"github.com/Rogers-F/governance-engine/internal/persist"
	"github.com/Rogers-F/governance-engine/internal/store"
)

type persistView struct {
	Evaluation orchestrator.Output `json:"evaluation"`
	Result     *persist.Result     `json:"result,omitempty"`
}

func newPersistCmd(a *app) *cobra.Command {
	f := &evaluateFlags{}
	var contentFile string
	cmd := &cobra.Command{
		Use:   "persist",
		Short: "Evaluate, then write a workspace artifact when allowed",
		Long: `Run an evaluation carrying the persistence intent and, when it is not
blocked, write the artifact into the repository's workspace under the
workspace lock.

Examples:
  # Persist the repo cache from a file
  govengine persist --persist-kind repo_cache --phase 2 --content-file cache.yaml

  # Record a workspace memory observation from stdin
  echo "uses sqlc" | govengine persist --persist-kind workspace_memory \
    --memory-scope observation --phase 2 --content-file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.persistKind == "" {
				return errors.New("--persist-kind is required")
			}
			content, err := readContent(cmd.InOrStdin(), contentFile)
			if err != nil {
				return err
			}

			out, err := a.evaluate(cmd.Context(), f)
			if err != nil {
				return err
			}
			view := persistView{Evaluation: out}
			if out.Blocked() {
				if err := a.render(cmd.OutOrStdout(), view); err != nil {
					return err
				}
				return &exitError{code: exitBlocked, msg: "persistence blocked: " + string(out.Reason.ReasonCode)}
			}

			paths, err := a.paths()
			if err != nil {
				return err
			}
			w, err := persist.NewArtifactWriter(a.persistOptions(paths))
			if err != nil {
				return err
			}
			res, perr := w.Persist(cmd.Context(), persist.Request{
				Kind:                  domain.ArtifactKind(f.persistKind),
				RepoContext:           out.RepoContext,
				Phase:                 string(out.Phase.Token),
				Mode:                  out.Mode.Effective,
				BusinessRulesExecuted: out.BusinessRulesExecuted,
				MemoryScope:           f.memoryScope,
				GateApproved:          f.gateApproved,
				Confirmation:          f.confirmation,
				Content:               content,
			})
			if err := a.auditPersist(cmd.Context(), f.auditDB, domain.ArtifactKind(f.persistKind), out, res, perr); err != nil {
				return err
			}
			if perr != nil {
				return perr
			}
			view.Result = &res
			return a.render(cmd.OutOrStdout(), view)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&contentFile, "content-file", "", "artifact content file, or - for stdin")
	return cmd
}

func newCommitWorkspaceReadyCmd(a *app) *cobra.Command {
	var cwd string
	var untrusted bool
	cmd := &cobra.Command{
		Use:   "commit-workspace-ready",
		Short: "Commit the workspace-ready gate for a verified git repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := a.paths()
			if err != nil {
				return err
			}
			dir, err := cwdOrDefault(cwd)
			if err != nil {
				return err
			}
			path, rc := a.defaultSessionPath(cmd.Context(), paths, dir, trustFlag(untrusted))
			if path == "" {
				return domain.WrapEngineError(domain.ErrRepoNotResolved, string(rc.ReasonCode), nil)
			}
			if !rc.IsGitRoot {
				return domain.WrapEngineError(domain.ErrRepoNotResolved, rc.RepoRoot+" is not a verified git root", nil)
			}
			c, err := persist.NewWorkspaceReadyCommitter(a.persistOptions(paths))
			if err != nil {
				return err
			}
			if err := c.CommitWorkspaceReady(cmd.Context(), rc); err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]any{
				"repo_context": rc,
				"session_path": path,
				"committed":    true,
			})
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory (default: process cwd)")
	cmd.Flags().BoolVar(&untrusted, "untrusted-cwd", false, "treat the working directory as untrusted and search its ancestors")
	return cmd
}

func readContent(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	switch path {
	case "":
		return "", errors.New("--content-file is required")
	case "-":
		data, err = io.ReadAll(io.LimitReader(stdin, persist.MaxArtifactBytes+1))
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return string(data), nil
}

// auditPersist records the persistence attempt when an audit ledger is
// configured. Denials are recorded as well as writes.
func (a *app) auditPersist(ctx context.Context, dbPath string, kind domain.ArtifactKind, out orchestrator.Output, res persist.Result, perr error) error {
	if dbPath == "" {
		dbPath = a.cfg.Audit.DBPath
	}
	if dbPath == "" {
		return nil
	}
	db, err := store.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rec := domain.PersistRecord{
		ID:               uuid.NewString(),
		RepoFingerprint:  out.RepoContext.Fingerprint,
		ArtifactKind:     kind,
		Phase:            out.Phase.Phase,
		Allowed:          res.Decision.Allowed && perr == nil,
		PolicyReasonCode: string(res.Decision.ReasonCode),
		Path:             res.Path,
		Bytes:            res.Bytes,
		CreatedAt:        time.Now().Unix(),
	}
	return (&store.PersistRepo{}).Record(ctx, db, rec)
}
