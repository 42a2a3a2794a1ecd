package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Rogers-F/governance-engine/internal/config"
	"github.com/Rogers-F/governance-engine/internal/host"
	"github.com/Rogers-F/governance-engine/internal/logging"
	"github.com/Rogers-F/governance-engine/internal/orchestrator"
	"github.com/Rogers-F/governance-engine/internal/persist"
	"github.com/Rogers-F/governance-engine/internal/repo"
	"github.com/Rogers-F/governance-engine/internal/workspace"
)

// Output formats.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// BindingEnv names the binding evidence file when neither the flag nor the
// config file does.
const BindingEnv = "GOVENGINE_BINDING"

type rootOptions struct {
	configPath  string
	bindingPath string
	output      string
	logLevel    string
}

// app is the per-invocation state shared by every subcommand.
type app struct {
	opts   *rootOptions
	cfg    *config.Config
	logger *zap.Logger
	errOut io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:   "govengine",
		Short: "Deterministic governance engine for coding-agent workflows",
		Long: `govengine evaluates whether a unit of agent work may proceed.

Each evaluation probes host capabilities, resolves the effective mode and the
repository identity, routes the workflow phase, applies the persistence and
repository-document policies, and emits one reason payload with a stable
status: ok, warn, blocked or not_verified.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path (YAML)")
	root.PersistentFlags().StringVar(&opts.bindingPath, "binding", "", "path binding evidence file ("+config.BindingFileName+")")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", formatJSON, "output format: json, yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newEvaluateCmd(a),
		newCapabilitiesCmd(a),
		newRepoContextCmd(a),
		newRouteCmd(a),
		newTargetCmd(a),
		newPersistCmd(a),
		newCommitWorkspaceReadyCmd(a),
		newHistoryCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	switch a.opts.output {
	case formatJSON, formatYAML:
	default:
		return fmt.Errorf("unsupported output format %q (want json or yaml)", a.opts.output)
	}

	cfg, err := config.Load(a.opts.configPath)
	if err != nil {
		return err
	}
	if a.opts.logLevel != "" {
		cfg.Log.Level = a.opts.logLevel
	}
	a.errOut = cmd.ErrOrStderr()
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: a.errOut})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// paths loads the binding evidence. Flag, then config, then environment.
func (a *app) paths() (config.Paths, error) {
	path := a.opts.bindingPath
	if path == "" {
		path = a.cfg.Engine.BindingFile
	}
	if path == "" {
		path = os.Getenv(BindingEnv)
	}
	if path == "" {
		return config.Paths{}, fmt.Errorf("no binding file: pass --binding, set engine.binding_file or %s", BindingEnv)
	}
	return config.LoadBinding(path)
}

func (a *app) resolver() *repo.Resolver {
	return repo.NewResolver(a.cfg.Repo.GitTimeout, a.cfg.Repo.AncestorDepth, a.logger)
}

func (a *app) persistOptions(paths config.Paths) persist.Options {
	return persist.Options{
		WorkspacesHome: paths.WorkspacesHome,
		Lock: workspace.LockOptions{
			TTL:          a.cfg.Lock.TTL,
			Timeout:      a.cfg.Lock.Timeout,
			PollInterval: a.cfg.Lock.PollInterval,
		},
		Write: workspace.WriteOptions{
			Attempts: a.cfg.Write.Attempts,
			Backoff:  a.cfg.Write.Backoff,
		},
		Logger: a.logger,
	}
}

// engine wires an orchestrator over the bound paths. committer may be nil.
func (a *app) engine(paths config.Paths, committer orchestrator.GateCommitter) (*orchestrator.Engine, error) {
	return orchestrator.NewEngine(orchestrator.Options{
		Adapter:   host.Adapter(a.cfg.Engine.Adapter),
		Version:   a.cfg.Engine.Version,
		Packs:     a.cfg.Engine.PolicyPacks,
		Prober:    host.NewProber(paths),
		Resolver:  a.resolver(),
		Committer: committer,
		Logger:    a.logger,
	})
}

// render writes v to w in the selected format. YAML goes through JSON first so
// both formats share field names.
func (a *app) render(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if a.opts.output != formatYAML {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encode yaml output: %w", err)
	}
	return enc.Close()
}

// exitError carries a non-default process exit code.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func cwdOrDefault(cwd string) (string, error) {
	if strings.TrimSpace(cwd) != "" {
		return cwd, nil
	}
	return os.Getwd()
}
