// Package orchestrator composes capability, mode, repository, phase and policy
// evaluation into one cycle that yields a single decision and reason payload.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/Rogers-F/governance-engine/internal/config"
	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/evidence"
	"github.com/Rogers-F/governance-engine/internal/guard"
	"github.com/Rogers-F/governance-engine/internal/host"
	"github.com/Rogers-F/governance-engine/internal/logging"
	"github.com/Rogers-F/governance-engine/internal/repo"
	"github.com/Rogers-F/governance-engine/internal/session"
	"github.com/Rogers-F/governance-engine/internal/workflow"
)

// CapabilityProber snapshots host capabilities.
type CapabilityProber interface {
	Probe(trust domain.CWDTrust) host.Capabilities
}

// RepoResolver discovers the repository for an evaluation.
type RepoResolver interface {
	Resolve(ctx context.Context, in repo.ResolveInput) repo.Context
}

// GateCommitter persists the workspace-ready gate for a verified repository.
// It is the only side effect an evaluation may trigger.
type GateCommitter interface {
	CommitWorkspaceReady(ctx context.Context, rc repo.Context) error
}

// Options configures an Engine.
type Options struct {
	Adapter   host.Adapter
	Version   string
	Packs     []string
	Prober    CapabilityProber
	Resolver  RepoResolver
	Router    *workflow.Router
	Committer GateCommitter
	Budget    *guard.BudgetGovernor
	Logger    *zap.Logger
}

// Engine runs evaluation cycles. It keeps no state between calls.
type Engine struct {
	adapter   host.Adapter
	version   string
	packs     []string
	prober    CapabilityProber
	resolver  RepoResolver
	router    *workflow.Router
	committer GateCommitter
	budget    *guard.BudgetGovernor
	logger    *zap.Logger
}

// NewEngine validates opts and builds an engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Prober == nil {
		return nil, domain.WrapEngineError(domain.ErrConfigInvalid, "capability prober is required", nil)
	}
	if opts.Resolver == nil {
		return nil, domain.WrapEngineError(domain.ErrConfigInvalid, "repo resolver is required", nil)
	}
	if opts.Version == "" {
		opts.Version = config.DefaultVersion
	}
	if _, err := semver.NewVersion(opts.Version); err != nil {
		return nil, domain.WrapEngineError(domain.ErrConfigInvalid, fmt.Sprintf("engine version %q", opts.Version), err)
	}
	if opts.Adapter == "" {
		opts.Adapter = host.AdapterOpenCode
	}
	if opts.Router == nil {
		opts.Router = workflow.NewRouter(nil)
	}
	if opts.Budget == nil {
		opts.Budget = guard.NewBudgetGovernor()
	}
	return &Engine{
		adapter:   opts.Adapter,
		version:   opts.Version,
		packs:     normalizePacks(opts.Packs),
		prober:    opts.Prober,
		resolver:  opts.Resolver,
		router:    opts.Router,
		committer: opts.Committer,
		budget:    opts.Budget,
		logger:    logging.OrNop(opts.Logger),
	}, nil
}

// PersistenceIntent describes an artifact write the caller is about to make.
type PersistenceIntent struct {
	Kind                  domain.ArtifactKind
	MemoryScope           string
	GateApproved          bool
	Confirmation          string
	BusinessRulesExecuted bool
}

// Input is everything one evaluation reads. Now must be set by the caller;
// the engine never reads the clock.
type Input struct {
	RequestedMode        string
	CWD                  string
	CWDTrust             domain.CWDTrust
	Env                  config.Env
	Now                  time.Time
	Session              session.Document
	RequestedPhase       string
	TransitionEvidence   bool
	CommitWorkspaceReady bool

	// WriteTarget is validated when non-empty.
	WriteTarget string
	Persistence *PersistenceIntent

	RequiredEvidence []string
	// Evidence overrides the session's BuildEvidence items when non-nil.
	Evidence []evidence.Item

	RepoDocs     []guard.RepoDoc
	PromptBudget guard.PromptBudget

	// Integrity checks run only when the corresponding value is supplied.
	PackLock               string
	ExpectedRulesetHash    string
	ExpectedActivationHash string
}

// Evaluate runs one cycle. It never fails: every outcome, including an
// internal contract violation, is expressed in the returned payload.
func (e *Engine) Evaluate(ctx context.Context, in Input) Output {
	caps := e.prober.Probe(in.CWDTrust)
	capHash := caps.Hash()
	mode := host.ResolveEffectiveMode(in.RequestedMode, e.adapter, in.Env, caps)

	rc := e.resolver.Resolve(ctx, repo.ResolveInput{
		Env:          in.Env,
		CWD:          in.CWD,
		CWDTrust:     caps.CWDTrust,
		ExecAllowed:  caps.ExecAllowed,
		GitAvailable: caps.GitAvailable,
	})

	committed := false
	if in.CommitWorkspaceReady && rc.Resolved() && rc.IsGitRoot && e.committer != nil {
		if err := e.committer.CommitWorkspaceReady(ctx, rc); err != nil {
			e.logger.Warn("workspace ready commit failed",
				zap.String("repo_fingerprint", rc.Fingerprint),
				zap.Error(err),
			)
		} else {
			committed = true
		}
	}

	routed := e.router.Route(workflow.RouteInput{
		RequestedPhase:     in.RequestedPhase,
		Session:            in.Session,
		WorkspaceReady:     committed,
		TransitionEvidence: in.TransitionEvidence,
	})

	var target *guard.TargetResult
	if in.WriteTarget != "" {
		r := guard.EvaluateTargetPath(in.WriteTarget)
		target = &r
	}

	items := in.Evidence
	if items == nil {
		items = evidence.FromSession(in.Session)
	}
	part := evidence.Evaluate(in.RequiredEvidence, items, in.Now)

	packLock := PackLockHash(e.packs, e.version)
	ruleset := RulesetHash(e.packs, e.version, packLock)
	activation := ActivationHash(ActivationInput{
		Phase:          string(routed.Token),
		ActiveGate:     routed.ActiveGate,
		Mode:           string(mode.Effective),
		CapabilityHash: capHash,
		RepoIdentity:   rc.Identity(),
		RulesetHash:    ruleset,
	})

	rulesExecuted := in.Session.BusinessRulesExecuted()
	if in.Persistence != nil && in.Persistence.BusinessRulesExecuted {
		rulesExecuted = true
	}

	c := &cycle{
		engine:     e,
		in:         in,
		caps:       caps,
		mode:       mode,
		rc:         rc,
		routed:     routed,
		target:     target,
		findings:   guard.ClassifyRepoDocs(in.RepoDocs),
		evidence:   part,
		packLock:   packLock,
		ruleset:    ruleset,
		activation: activation,

		rulesExecuted: rulesExecuted,
	}
	payload, check := c.decide()

	out := Output{
		EngineVersion:           NormalizeVersion(e.version),
		Adapter:                 e.adapter,
		Capabilities:            caps,
		CapabilitiesHash:        capHash,
		Mode:                    mode,
		RepoContext:             rc,
		WorkspaceReadyCommitted: committed,
		BusinessRulesExecuted:   rulesExecuted,
		Phase:                   routed,
		WriteTarget:             target,
		Evidence:                part,
		RepoDocFindings:         c.findings,
		PackLockHash:            packLock,
		RulesetHash:             ruleset,
		ActivationHash:          activation,
		Reason:                  payload,
		Parity: Parity{
			Status:      payload.Status,
			Phase:       routed.Phase,
			ReasonCode:  string(payload.ReasonCode),
			NextCommand: payload.NextCommand,
		},
		EvaluatedAt: in.Now.UTC(),
	}

	e.logger.Debug("evaluation complete",
		zap.String("status", string(out.Parity.Status)),
		zap.String("reason_code", out.Parity.ReasonCode),
		zap.String("phase", routed.Phase),
		zap.String("effective_mode", string(mode.Effective)),
		zap.String("deciding_check", check),
		zap.String("repo_fingerprint", rc.Fingerprint),
	)
	return out
}
