package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Rogers-F/governance-engine/internal/config"
	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/guard"
	"github.com/Rogers-F/governance-engine/internal/host"
	"github.com/Rogers-F/governance-engine/internal/orchestrator"
	"github.com/Rogers-F/governance-engine/internal/persist"
	"github.com/Rogers-F/governance-engine/internal/repo"
	"github.com/Rogers-F/governance-engine/internal/session"
	"github.com/Rogers-F/governance-engine/internal/store"
	"github.com/Rogers-F/governance-engine/internal/watch"
)

// exitBlocked is the process exit code for a blocked evaluation under
// --fail-on-blocked.
const exitBlocked = 2

type evaluateFlags struct {
	mode                 string
	cwd                  string
	untrustedCWD         bool
	phase                string
	sessionPath          string
	transitionEvidence   bool
	commitWorkspaceReady bool

	writeTarget           string
	persistKind           string
	memoryScope           string
	gateApproved          bool
	confirmation          string
	businessRulesExecuted bool

	requireEvidence []string
	repoDocs        []string

	maxPrompts      int
	usedPrompts     int
	repoDocsPrompts int
	maxRepoDocs     int

	packLock         string
	expectRuleset    string
	expectActivation string

	auditDB       string
	failOnBlocked bool
}

func (f *evaluateFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.mode, "mode", "", "requested mode: user, system, pipeline, agents_strict")
	fl.StringVar(&f.cwd, "cwd", "", "working directory to resolve the repository from (default: process cwd)")
	fl.BoolVar(&f.untrustedCWD, "untrusted-cwd", false, "treat the working directory as untrusted and search its ancestors")
	fl.StringVar(&f.phase, "phase", "", "requested phase token or label")
	fl.StringVar(&f.sessionPath, "session", "", "session state file (default: <workspaces_home>/<fingerprint>/"+domain.SessionStateFileName+")")
	fl.BoolVar(&f.transitionEvidence, "transition-evidence", false, "caller holds evidence for a multi-step phase jump")
	fl.BoolVar(&f.commitWorkspaceReady, "commit-workspace-ready", false, "commit the workspace-ready gate when the repository is verified")

	fl.StringVar(&f.writeTarget, "write-target", "", "persistence target to validate, e.g. ${REPO_CACHE_FILE}")
	fl.StringVar(&f.persistKind, "persist-kind", "", "artifact kind the caller intends to persist")
	fl.StringVar(&f.memoryScope, "memory-scope", "", "workspace memory scope: observation or decision")
	fl.BoolVar(&f.gateApproved, "gate-approved", false, "the active phase 5 gate is approved")
	fl.StringVar(&f.confirmation, "confirmation", "", "workspace memory confirmation text")
	fl.BoolVar(&f.businessRulesExecuted, "business-rules-executed", false, "business-rules discovery has run")

	fl.StringSliceVar(&f.requireEvidence, "require-evidence", nil, "evidence ids that must be fresh")
	fl.StringSliceVar(&f.repoDocs, "repo-doc", nil, "repository instruction documents to classify (e.g. AGENTS.md)")

	fl.IntVar(&f.maxPrompts, "max-prompts", 0, "prompt budget limit (0 disables)")
	fl.IntVar(&f.usedPrompts, "used-prompts", 0, "prompts used so far")
	fl.IntVar(&f.repoDocsPrompts, "repo-docs-prompts", 0, "prompts triggered by repository documents")
	fl.IntVar(&f.maxRepoDocs, "max-repo-docs-prompts", 0, "repository-document prompt limit (0 disables)")

	fl.StringVar(&f.packLock, "pack-lock", "", "expected pack lock hash")
	fl.StringVar(&f.expectRuleset, "expect-ruleset-hash", "", "expected ruleset hash")
	fl.StringVar(&f.expectActivation, "expect-activation-hash", "", "expected activation hash")

	fl.StringVar(&f.auditDB, "audit-db", "", "record the evaluation in this SQLite ledger (default: audit.db_path)")
	fl.BoolVar(&f.failOnBlocked, "fail-on-blocked", false, "exit with status 2 when the evaluation is blocked")
}

func (f *evaluateFlags) trust() domain.CWDTrust { return trustFlag(f.untrustedCWD) }

func newEvaluateCmd(a *app) *cobra.Command {
	f := &evaluateFlags{}
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one governance evaluation",
		Long: `Run one governance evaluation and print the output with its reason payload.

Examples:
  # Evaluate the repository in the current directory
  govengine evaluate --binding ~/.config/opencode/commands/governance.paths.json

  # Check a write before persisting the repo cache, failing CI on a block
  govengine evaluate --phase 2 --write-target '${REPO_CACHE_FILE}' \
    --persist-kind repo_cache --fail-on-blocked

  # Record the decision in the audit ledger as YAML output
  govengine evaluate --audit-db ~/.local/state/govengine/audit.db -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.evaluate(cmd.Context(), f)
			if err != nil {
				return err
			}
			if err := a.render(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if f.failOnBlocked && out.Blocked() {
				return &exitError{code: exitBlocked, msg: "evaluation blocked: " + string(out.Reason.ReasonCode)}
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	f := &evaluateFlags{}
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-evaluate whenever the session state file changes",
		Long: `Evaluate once, then again after every change to the repository's session
state file, printing each output. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Committing rewrites the watched file and would re-trigger itself.
			if f.commitWorkspaceReady {
				return errors.New("--commit-workspace-ready cannot be used with watch")
			}
			ctx := cmd.Context()
			path := f.sessionPath
			if path == "" {
				paths, err := a.paths()
				if err != nil {
					return err
				}
				cwd, err := cwdOrDefault(f.cwd)
				if err != nil {
					return err
				}
				p, rc := a.defaultSessionPath(ctx, paths, cwd, f.trust())
				if p == "" {
					return domain.WrapEngineError(domain.ErrRepoNotResolved, string(rc.ReasonCode), nil)
				}
				path = p
			}

			w, err := watch.New(watch.Config{Path: path, Debounce: debounce, Logger: a.logger})
			if err != nil {
				return err
			}
			defer w.Close()

			run := func(ctx context.Context) error {
				out, err := a.evaluate(ctx, f)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), out)
			}
			if err := run(ctx); err != nil {
				return err
			}
			return w.Run(ctx, run)
		},
	}
	f.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before re-evaluating")
	return cmd
}

// evaluate builds the engine and input from flags and runs one evaluation.
func (a *app) evaluate(ctx context.Context, f *evaluateFlags) (orchestrator.Output, error) {
	paths, err := a.paths()
	if err != nil {
		return orchestrator.Output{}, err
	}
	committer, err := persist.NewWorkspaceReadyCommitter(a.persistOptions(paths))
	if err != nil {
		return orchestrator.Output{}, err
	}
	eng, err := a.engine(paths, committer)
	if err != nil {
		return orchestrator.Output{}, err
	}

	cwd, err := cwdOrDefault(f.cwd)
	if err != nil {
		return orchestrator.Output{}, err
	}
	doc, err := a.loadSession(ctx, f, paths, cwd)
	if err != nil {
		return orchestrator.Output{}, err
	}
	docs, err := readRepoDocs(cwd, f.repoDocs)
	if err != nil {
		return orchestrator.Output{}, err
	}

	in := orchestrator.Input{
		RequestedMode:        f.mode,
		CWD:                  cwd,
		CWDTrust:             f.trust(),
		Env:                  config.OSEnv(),
		Now:                  time.Now().UTC(),
		Session:              doc,
		RequestedPhase:       f.phase,
		TransitionEvidence:   f.transitionEvidence,
		CommitWorkspaceReady: f.commitWorkspaceReady,
		WriteTarget:          f.writeTarget,
		RequiredEvidence:     f.requireEvidence,
		RepoDocs:             docs,
		PromptBudget: guard.PromptBudget{
			MaxPrompts:      f.maxPrompts,
			UsedPrompts:     f.usedPrompts,
			RepoDocsPrompts: f.repoDocsPrompts,
			MaxRepoDocs:     f.maxRepoDocs,
		},
		PackLock:               f.packLock,
		ExpectedRulesetHash:    f.expectRuleset,
		ExpectedActivationHash: f.expectActivation,
	}
	if f.persistKind != "" {
		in.Persistence = &orchestrator.PersistenceIntent{
			Kind:                  domain.ArtifactKind(f.persistKind),
			MemoryScope:           f.memoryScope,
			GateApproved:          f.gateApproved,
			Confirmation:          f.confirmation,
			BusinessRulesExecuted: f.businessRulesExecuted,
		}
	}

	out := eng.Evaluate(ctx, in)
	if err := a.audit(ctx, f.auditDB, out); err != nil {
		return out, err
	}
	return out, nil
}

// loadSession reads the explicit session file, or the repository's session
// file under the workspaces home when one exists.
func (a *app) loadSession(ctx context.Context, f *evaluateFlags, paths config.Paths, cwd string) (session.Document, error) {
	if f.sessionPath != "" {
		return session.Load(f.sessionPath)
	}
	path, _ := a.defaultSessionPath(ctx, paths, cwd, f.trust())
	if path == "" {
		return session.Document{}, nil
	}
	doc, err := session.Load(path)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return session.Document{}, nil
	}
	return doc, err
}

// defaultSessionPath resolves the repository and returns its session file
// path, or "" when the repository cannot be resolved.
func (a *app) defaultSessionPath(ctx context.Context, paths config.Paths, cwd string, trust domain.CWDTrust) (string, repo.Context) {
	caps := host.NewProber(paths).Probe(trust)
	rc := a.resolver().Resolve(ctx, repo.ResolveInput{
		Env:          config.OSEnv(),
		CWD:          cwd,
		CWDTrust:     trust,
		ExecAllowed:  caps.ExecAllowed,
		GitAvailable: caps.GitAvailable,
	})
	if !rc.Resolved() || rc.Fingerprint == "" {
		return "", rc
	}
	return filepath.Join(paths.RepoHome(rc.Fingerprint), domain.SessionStateFileName), rc
}

func readRepoDocs(cwd string, names []string) ([]guard.RepoDoc, error) {
	docs := make([]guard.RepoDoc, 0, len(names))
	for _, name := range names {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read repo doc: %w", err)
		}
		docs = append(docs, guard.RepoDoc{Path: name, Content: string(data)})
	}
	return docs, nil
}

// audit records out in the evaluation ledger when one is configured.
func (a *app) audit(ctx context.Context, dbPath string, out orchestrator.Output) error {
	if dbPath == "" {
		dbPath = a.cfg.Audit.DBPath
	}
	if dbPath == "" {
		return nil
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	db, err := store.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rec := out.Record(uuid.NewString(), string(payload))
	if err := (&store.EvaluationRepo{}).Record(ctx, db, rec); err != nil {
		return err
	}
	a.logger.Debug("evaluation recorded", zap.String("id", rec.ID), zap.String("db", dbPath))
	return nil
}
