package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/store"
)

type evaluationView struct {
	ID              string        `json:"id"`
	RepoFingerprint string        `json:"repo_fingerprint"`
	Status          domain.Status `json:"status"`
	ReasonCode      string        `json:"reason_code"`
	Phase           string        `json:"phase"`
	EffectiveMode   string        `json:"effective_mode"`
	ActivationHash  string        `json:"activation_hash"`
	CreatedAt       int64         `json:"created_at"`
}

type persistRecordView struct {
	ID               string              `json:"id"`
	ArtifactKind     domain.ArtifactKind `json:"artifact_kind"`
	Phase            string              `json:"phase"`
	Allowed          bool                `json:"allowed"`
	PolicyReasonCode string              `json:"policy_reason_code,omitempty"`
	Path             string              `json:"path,omitempty"`
	Bytes            int                 `json:"bytes"`
	CreatedAt        int64               `json:"created_at"`
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		cwd         string
		fingerprint string
		limit       int
		dbPath      string
		persists    bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded evaluations for a repository",
		Long: `List evaluations recorded in the audit ledger for one repository, oldest
first. The repository is resolved from --cwd unless --repo-fingerprint is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = a.cfg.Audit.DBPath
			}
			if dbPath == "" {
				return errors.New("no audit ledger: pass --audit-db or set audit.db_path")
			}

			if fingerprint == "" {
				paths, err := a.paths()
				if err != nil {
					return err
				}
				dir, err := cwdOrDefault(cwd)
				if err != nil {
					return err
				}
				_, rc := a.defaultSessionPath(cmd.Context(), paths, dir, domain.CWDTrusted)
				if rc.Fingerprint == "" {
					return domain.WrapEngineError(domain.ErrRepoNotResolved, string(rc.ReasonCode), nil)
				}
				fingerprint = rc.Fingerprint
			}

			db, err := store.NewDB(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if persists {
				recs, err := (&store.PersistRepo{}).ListByRepo(cmd.Context(), db, fingerprint)
				if err != nil {
					return err
				}
				views := make([]persistRecordView, 0, len(recs))
				for _, r := range recs {
					views = append(views, persistRecordView{
						ID:               r.ID,
						ArtifactKind:     r.ArtifactKind,
						Phase:            r.Phase,
						Allowed:          r.Allowed,
						PolicyReasonCode: r.PolicyReasonCode,
						Path:             r.Path,
						Bytes:            r.Bytes,
						CreatedAt:        r.CreatedAt,
					})
				}
				return a.render(cmd.OutOrStdout(), views)
			}

			recs, err := (&store.EvaluationRepo{}).ListByRepo(cmd.Context(), db, fingerprint, limit)
			if err != nil {
				return err
			}
			views := make([]evaluationView, 0, len(recs))
			for _, r := range recs {
				views = append(views, evaluationView{
					ID:              r.ID,
					RepoFingerprint: r.RepoFingerprint,
					Status:          r.Status,
					ReasonCode:      r.ReasonCode,
					Phase:           r.Phase,
					EffectiveMode:   r.EffectiveMode,
					ActivationHash:  r.ActivationHash,
					CreatedAt:       r.CreatedAt,
				})
			}
			return a.render(cmd.OutOrStdout(), views)
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory (default: process cwd)")
	cmd.Flags().StringVar(&fingerprint, "repo-fingerprint", "", "repository fingerprint (skips resolution)")
	cmd.Flags().IntVar(&limit, "limit", 20, "most recent evaluations to list (0 for all)")
	cmd.Flags().StringVar(&dbPath, "audit-db", "", "audit ledger path (default: audit.db_path)")
	cmd.Flags().BoolVar(&persists, "persists", false, "list artifact persistence attempts instead")
	return cmd
}
