package main

import (
	"github.com/spf13/cobra"

	"github.com/Rogers-F/governance-engine/internal/config"
	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/guard"
	"github.com/Rogers-F/governance-engine/internal/host"
	"github.com/Rogers-F/governance-engine/internal/repo"
	"github.com/Rogers-F/governance-engine/internal/session"
	"github.com/Rogers-F/governance-engine/internal/workflow"
)

func trustFlag(untrusted bool) domain.CWDTrust {
	if untrusted {
		return domain.CWDUntrusted
	}
	return domain.CWDTrusted
}

type capabilitiesView struct {
	Capabilities     host.Capabilities   `json:"capabilities"`
	CapabilitiesHash string              `json:"capabilities_hash"`
	Mode             host.ModeResolution `json:"mode"`
}

func newCapabilitiesCmd(a *app) *cobra.Command {
	var mode string
	var untrusted bool
	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Probe host capabilities and resolve the effective mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := a.paths()
			if err != nil {
				return err
			}
			caps := host.NewProber(paths).Probe(trustFlag(untrusted))
			return a.render(cmd.OutOrStdout(), capabilitiesView{
				Capabilities:     caps,
				CapabilitiesHash: caps.Hash(),
				Mode:             host.ResolveEffectiveMode(mode, host.Adapter(a.cfg.Engine.Adapter), config.OSEnv(), caps),
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "requested mode")
	cmd.Flags().BoolVar(&untrusted, "untrusted-cwd", false, "treat the working directory as untrusted")
	return cmd
}

func newRepoContextCmd(a *app) *cobra.Command {
	var cwd string
	var untrusted bool
	cmd := &cobra.Command{
		Use:   "repo-context",
		Short: "Resolve the repository root and fingerprint",
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
			trust := trustFlag(untrusted)
			caps := host.NewProber(paths).Probe(trust)
			rc := a.resolver().Resolve(cmd.Context(), repo.ResolveInput{
				Env:          config.OSEnv(),
				CWD:          dir,
				CWDTrust:     trust,
				ExecAllowed:  caps.ExecAllowed,
				GitAvailable: caps.GitAvailable,
			})
			return a.render(cmd.OutOrStdout(), rc)
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory (default: process cwd)")
	cmd.Flags().BoolVar(&untrusted, "untrusted-cwd", false, "treat the working directory as untrusted and search its ancestors")
	return cmd
}

func newRouteCmd(a *app) *cobra.Command {
	var (
		phase         string
		sessionPath   string
		evidence      bool
		workspaceOpen bool
	)
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route a requested phase against a session state document",
		Long: `Route a requested phase against a session state document without probing
the host. Useful for checking how a session will be routed before running a
full evaluation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := session.Document{}
			if sessionPath != "" {
				var err error
				if doc, err = session.Load(sessionPath); err != nil {
					return err
				}
			}
			routed := workflow.NewRouter(nil).Route(workflow.RouteInput{
				RequestedPhase:     phase,
				Session:            doc,
				WorkspaceReady:     workspaceOpen,
				TransitionEvidence: evidence,
			})
			return a.render(cmd.OutOrStdout(), routed)
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "requested phase token or label")
	cmd.Flags().StringVar(&sessionPath, "session", "", "session state file")
	cmd.Flags().BoolVar(&evidence, "transition-evidence", false, "caller holds evidence for a multi-step phase jump")
	cmd.Flags().BoolVar(&workspaceOpen, "workspace-ready", false, "treat the workspace-ready gate as committed")
	return cmd
}

func newTargetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "target <path>",
		Short: "Validate a persistence write target",
		Long: `Validate a persistence write target such as ${REPO_CACHE_FILE}.
Quote the argument so the shell does not expand the variable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.render(cmd.OutOrStdout(), guard.EvaluateTargetPath(args[0]))
		},
	}
}
