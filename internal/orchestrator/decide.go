package orchestrator

import (
	"sort"

	"github.com/Rogers-F/governance-engine/internal/evidence"
	"github.com/Rogers-F/governance-engine/internal/guard"
	"github.com/Rogers-F/governance-engine/internal/host"
	"github.com/Rogers-F/governance-engine/internal/reason"
	"github.com/Rogers-F/governance-engine/internal/repo"
	"github.com/Rogers-F/governance-engine/internal/workflow"
)

// Check names, in evaluation order.
const (
	CheckRepoIdentity         = "repo_identity"
	CheckWriteTarget          = "write_target"
	CheckUnsafeDirective      = "unsafe_repo_directive"
	CheckInteractiveDirective = "interactive_repo_directive"
	CheckPromptBudget         = "prompt_budget"
	CheckConstraintWidening   = "constraint_widening"
	CheckPersistence          = "persistence"
	CheckSurface              = "write_surface"
	CheckPackLock             = "pack_lock"
	CheckRulesetHash          = "ruleset_hash"
	CheckActivationHash       = "activation_hash"
	CheckEvidence             = "evidence"
	CheckModeDowngrade        = "mode_downgrade"
	CheckPermissionLimited    = "permission_limited"
)

// cycle holds the intermediate results of one evaluation.
type cycle struct {
	engine   *Engine
	in       Input
	caps     host.Capabilities
	mode     host.ModeResolution
	rc       repo.Context
	routed   workflow.RoutedPhase
	target   *guard.TargetResult
	findings []guard.DocFinding
	evidence evidence.Partition

	packLock   string
	ruleset    string
	activation string

	// rulesExecuted merges the caller's claim with the session record.
	rulesExecuted bool
}

// checks returns the blocking checks in their fixed precedence order.
func (c *cycle) checks() []guard.Check {
	return []guard.Check{
		{Name: CheckRepoIdentity, Run: c.checkRepoIdentity},
		{Name: CheckWriteTarget, Run: c.checkWriteTarget},
		{Name: CheckUnsafeDirective, Run: c.directive(guard.DocUnsafe, reason.BlockedUnsafeRepoDirective, false)},
		{Name: CheckInteractiveDirective, Run: c.directive(guard.DocInteractive, reason.BlockedInteractiveRepoDirective, true)},
		{Name: CheckPromptBudget, Run: c.checkPromptBudget},
		{Name: CheckConstraintWidening, Run: c.directive(guard.DocWidening, reason.BlockedConstraintWidening, false)},
		{Name: CheckPersistence, Run: c.checkPersistence},
		{Name: CheckSurface, Run: c.checkSurface},
		{Name: CheckPackLock, Run: c.checkPackLock},
		{Name: CheckRulesetHash, Run: c.checkRulesetHash},
		{Name: CheckActivationHash, Run: c.checkActivationHash},
	}
}

// decide applies the blocking checks, then evidence, then warnings. The
// returned string names the check that produced the payload.
func (c *cycle) decide() (reason.Payload, string) {
	var deviation *reason.Deviation
	if c.mode.Downgraded {
		deviation = c.mode.Deviation
	}

	if v, name := guard.CheckAll(c.checks()...); v != nil {
		return reason.BuildOrSelfCheck(reason.Spec{
			Code:            v.Code,
			SignalsUsed:     []string{v.Signal},
			MissingEvidence: v.MissingEvidence,
			Deviation:       deviation,
			Context:         v.Context,
		}), name
	}

	if sub := c.evidence.SubReason(); sub != reason.CodeNone {
		return reason.BuildOrSelfCheck(reason.Spec{
			Code:            sub,
			SignalsUsed:     []string{"build_evidence"},
			MissingEvidence: c.evidence.Unbacked(),
			Deviation:       deviation,
			Context: reason.EvidenceContext{
				Required: sortedCopy(c.in.RequiredEvidence),
				Stale:    nonNil(c.evidence.Stale),
				Missing:  nonNil(c.evidence.Missing),
			},
		}), CheckEvidence
	}

	if c.mode.Downgraded {
		return reason.BuildOrSelfCheck(reason.Spec{
			Code:        reason.WarnModeDowngraded,
			SignalsUsed: []string{"capabilities", "requested_mode"},
			Deviation:   deviation,
			Context: reason.ModeContext{
				RequestedMode: string(c.mode.Candidate),
				EffectiveMode: string(c.mode.Effective),
				Missing:       nonNil(c.mode.Missing),
			},
		}), CheckModeDowngrade
	}

	// Git is only a convenience once the repository is resolved.
	if !c.caps.GitAvailable {
		return reason.BuildOrSelfCheck(reason.Spec{
			Code:        reason.WarnPermissionLimited,
			SignalsUsed: []string{host.CapGitAvailable},
			Context: reason.CapabilityContext{
				RequiredCapability: host.CapGitAvailable,
				EffectiveMode:      string(c.mode.Effective),
				Missing:            []string{host.CapGitAvailable},
			},
		}), CheckPermissionLimited
	}

	return reason.BuildOrSelfCheck(reason.Spec{
		Code:        reason.CodeNone,
		SignalsUsed: c.signals(),
	}), ""
}

func (c *cycle) signals() []string {
	out := []string{"capabilities", "effective_mode", "repo_context", "routed_phase"}
	if c.target != nil {
		out = append(out, "write_target")
	}
	if len(c.in.RepoDocs) > 0 {
		out = append(out, "repo_docs")
	}
	if len(c.in.RequiredEvidence) > 0 {
		out = append(out, "build_evidence")
	}
	if c.in.Persistence != nil {
		out = append(out, "persistence")
	}
	return out
}

func (c *cycle) checkRepoIdentity() *guard.Violation {
	if c.rc.Resolved() {
		return nil
	}
	code := c.rc.ReasonCode
	if code == reason.CodeNone || code == "" {
		code = reason.BlockedRepoIdentityResolution
	}
	return &guard.Violation{
		Code:            code,
		Signal:          "repo_context",
		MissingEvidence: []string{"repo_root"},
		Context: reason.RepoIdentityContext{
			Source:       c.rc.Source,
			Candidates:   nonNil(c.rc.Candidates),
			ExecAllowed:  c.caps.ExecAllowed,
			GitAvailable: c.caps.GitAvailable,
		},
	}
}

func (c *cycle) checkWriteTarget() *guard.Violation {
	if c.target == nil || c.target.Valid {
		return nil
	}
	return &guard.Violation{
		Code:    c.target.ReasonCode,
		Signal:  "write_target",
		Context: c.target.Context(c.in.WriteTarget),
	}
}

// directive blocks on the first finding of class. Interactive directives only
// block in pipeline mode, which has no interactive channel.
func (c *cycle) directive(class guard.DocClass, code reason.Code, pipelineOnly bool) func() *guard.Violation {
	return func() *guard.Violation {
		if pipelineOnly && c.mode.Effective != host.ModePipeline {
			return nil
		}
		f, ok := guard.FirstOfClass(c.findings, class)
		if !ok {
			return nil
		}
		return &guard.Violation{Code: code, Signal: "repo_docs:" + f.DocPath, Context: f.Context()}
	}
}

func (c *cycle) checkPromptBudget() *guard.Violation {
	if c.engine.budget.Evaluate(c.in.PromptBudget) != guard.BudgetHalt {
		return nil
	}
	return &guard.Violation{
		Code:    reason.BlockedPromptBudgetExceeded,
		Signal:  "prompt_budget",
		Context: c.in.PromptBudget.Context(),
	}
}

func (c *cycle) checkPersistence() *guard.Violation {
	intent := c.in.Persistence
	if intent == nil {
		return nil
	}
	d := guard.AuthorizePersistence(guard.PersistenceRequest{
		Kind:                  intent.Kind,
		Phase:                 string(c.routed.Token),
		Mode:                  c.mode.Effective,
		BusinessRulesExecuted: c.rulesExecuted,
		MemoryScope:           intent.MemoryScope,
		GateApproved:          intent.GateApproved,
		Confirmation:          intent.Confirmation,
	})
	if d.Allowed {
		return nil
	}
	return &guard.Violation{
		Code:   reason.BlockedPersistencePhaseGate,
		Signal: "persistence:" + string(intent.Kind),
		Context: reason.PersistenceContext{
			ArtifactKind:     string(intent.Kind),
			PolicyReasonCode: string(d.ReasonCode),
			Phase:            c.routed.Phase,
			Reason:           d.Reason,
		},
	}
}

func (c *cycle) checkSurface() *guard.Violation {
	if c.target == nil || !c.target.Valid {
		return nil
	}
	res := guard.EvaluateSurface(c.target.Variable, c.target.Suffix, c.mode.Effective, c.caps)
	if res.Allowed {
		return nil
	}
	return &guard.Violation{Code: res.ReasonCode, Signal: "write_surface:" + c.target.Variable, Context: res.Context}
}

func (c *cycle) checkPackLock() *guard.Violation {
	if c.in.PackLock == "" || c.in.PackLock == c.packLock {
		return nil
	}
	return mismatch(reason.BlockedPackLockMismatch, "pack_lock", c.packLock, c.in.PackLock)
}

func (c *cycle) checkRulesetHash() *guard.Violation {
	if c.in.ExpectedRulesetHash == "" || c.in.ExpectedRulesetHash == c.ruleset {
		return nil
	}
	return mismatch(reason.BlockedRulesetHashMismatch, "ruleset_hash", c.in.ExpectedRulesetHash, c.ruleset)
}

func (c *cycle) checkActivationHash() *guard.Violation {
	if c.in.ExpectedActivationHash == "" || c.in.ExpectedActivationHash == c.activation {
		return nil
	}
	return mismatch(reason.BlockedActivationHashMismatch, "activation_hash", c.in.ExpectedActivationHash, c.activation)
}

func mismatch(code reason.Code, subject, expected, actual string) *guard.Violation {
	return &guard.Violation{
		Code:    code,
		Signal:  subject,
		Context: reason.HashMismatchContext{Subject: subject, Expected: expected, Actual: actual},
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}
