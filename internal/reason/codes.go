// Package reason defines the closed reason-code taxonomy and the reason
// payload builder that every evaluation result is rendered through.
package reason

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Rogers-F/governance-engine/internal/domain"
)

// CatalogVersion identifies the revision of the reason-code set. It feeds the
// ruleset hash so a taxonomy change invalidates cached activations.
const CatalogVersion = "2026.10"

// Code is a member of the closed reason-code set.
type Code string

// OK sentinel.
const CodeNone Code = "none"

// Hard stops.
const (
	BlockedEngineSelfCheck          Code = "BLOCKED-ENGINE-SELFCHECK"
	BlockedExecDisallowed           Code = "BLOCKED-EXEC-DISALLOWED"
	BlockedRepoIdentityResolution   Code = "BLOCKED-REPO-IDENTITY-RESOLUTION"
	BlockedPersistenceTargetDegen   Code = "BLOCKED-PERSISTENCE-TARGET-DEGENERATE"
	BlockedPersistencePathViolation Code = "BLOCKED-PERSISTENCE-PATH-VIOLATION"
	BlockedPersistencePhaseGate     Code = "BLOCKED-PERSISTENCE-PHASE-GATE"
	BlockedPermissionDenied         Code = "BLOCKED-PERMISSION-DENIED"
	BlockedModeInsufficient         Code = "BLOCKED-MODE-INSUFFICIENT"
	BlockedSurfacePolicy            Code = "BLOCKED-SURFACE-POLICY"
	BlockedUnsafeRepoDirective      Code = "BLOCKED-UNSAFE-REPO-DIRECTIVE"
	BlockedInteractiveRepoDirective Code = "BLOCKED-INTERACTIVE-REPO-DIRECTIVE"
	BlockedPromptBudgetExceeded     Code = "BLOCKED-PROMPT-BUDGET-EXCEEDED"
	BlockedConstraintWidening       Code = "BLOCKED-CONSTRAINT-WIDENING"
	BlockedPackLockMismatch         Code = "BLOCKED-PACK-LOCK-MISMATCH"
	BlockedRulesetHashMismatch      Code = "BLOCKED-RULESET-HASH-MISMATCH"
	BlockedActivationHashMismatch   Code = "BLOCKED-ACTIVATION-HASH-MISMATCH"
)

// Degraded but proceeding.
const (
	WarnModeDowngraded    Code = "WARN-MODE-DOWNGRADED"
	WarnPermissionLimited Code = "WARN-PERMISSION-LIMITED"
)

// Claims lacking fresh evidence.
const (
	NotVerifiedMissingEvidence Code = "NOT_VERIFIED-MISSING-EVIDENCE"
	NotVerifiedEvidenceStale   Code = "NOT_VERIFIED-EVIDENCE-STALE"
)

type entry struct {
	surface          string
	recovery         []string
	nextCommand      string
	requiresEvidence bool
}

var catalog = map[Code]entry{
	CodeNone: {
		surface:     "governance",
		recovery:    []string{"No action required; continue with the active gate."},
		nextCommand: "/continue",
	},
	BlockedEngineSelfCheck: {
		surface:     "engine",
		recovery:    []string{"Report the engine self-check failure with the attached context.", "Re-run the evaluation after upgrading the governance engine."},
		nextCommand: "/audit",
	},
	BlockedExecDisallowed: {
		surface:          "repo_identity",
		recovery:         []string{"Allow process execution for the host adapter.", "Or set OPENCODE_REPO_ROOT to the absolute repository root."},
		nextCommand:      "/start",
		requiresEvidence: true,
	},
	BlockedRepoIdentityResolution: {
		surface:          "repo_identity",
		recovery:         []string{"Run from inside a git repository.", "Or set OPENCODE_REPO_ROOT to the absolute repository root.", "Ensure git is installed and on PATH."},
		nextCommand:      "/start",
		requiresEvidence: true,
	},
	BlockedPersistenceTargetDegen: {
		surface:     "persistence",
		recovery:    []string{"Use a fully-qualified ${VARIABLE}/path write target."},
		nextCommand: "/continue",
	},
	BlockedPersistencePathViolation: {
		surface:     "persistence",
		recovery:    []string{"Start the write target with an allow-listed ${VARIABLE}.", "Remove any '..' segments from the target path."},
		nextCommand: "/continue",
	},
	BlockedPersistencePhaseGate: {
		surface:     "persistence",
		recovery:    []string{"Complete the phase that owns this artifact before persisting it.", "Provide the required confirmation or gate approval."},
		nextCommand: "/continue",
	},
	BlockedPermissionDenied: {
		surface:     "capabilities",
		recovery:    []string{"Grant the host the filesystem permission required for this write target.", "Or choose a write target under WORKSPACES_HOME."},
		nextCommand: "/start",
	},
	BlockedModeInsufficient: {
		surface:     "mode",
		recovery:    []string{"Re-run in a mode that satisfies the write target's minimum mode."},
		nextCommand: "/start",
	},
	BlockedSurfacePolicy: {
		surface:     "mode",
		recovery:    []string{"agents_strict mode may only write workspace artifacts; choose a workspace target."},
		nextCommand: "/continue",
	},
	BlockedUnsafeRepoDirective: {
		surface:     "repo_docs",
		recovery:    []string{"Remove the unsafe directive from the repository document.", "Re-run the evaluation once the document is clean."},
		nextCommand: "/continue",
	},
	BlockedInteractiveRepoDirective: {
		surface:     "repo_docs",
		recovery:    []string{"Pipeline mode has no interactive channel; remove the interactive directive.", "Or re-run in user mode."},
		nextCommand: "/continue",
	},
	BlockedPromptBudgetExceeded: {
		surface:     "prompt_budget",
		recovery:    []string{"Resolve open questions without further prompts.", "Or raise the prompt budget for this session."},
		nextCommand: "/continue",
	},
	BlockedConstraintWidening: {
		surface:     "repo_docs",
		recovery:    []string{"Repository documents may narrow but never widen governance constraints; remove the widening directive."},
		nextCommand: "/continue",
	},
	BlockedPackLockMismatch: {
		surface:     "integrity",
		recovery:    []string{"Reinstall the policy packs so the pack lock matches.", "Re-run with the regenerated pack lock."},
		nextCommand: "/start",
	},
	BlockedRulesetHashMismatch: {
		surface:     "integrity",
		recovery:    []string{"Reload the ruleset; the loaded packs differ from the expected ruleset."},
		nextCommand: "/start",
	},
	BlockedActivationHashMismatch: {
		surface:     "integrity",
		recovery:    []string{"Re-run activation; phase, mode, capabilities or repo identity drifted."},
		nextCommand: "/start",
	},
	WarnModeDowngraded: {
		surface:     "mode",
		recovery:    []string{"Grant the missing capabilities to run in the requested mode.", "Or continue in user mode with reduced automation."},
		nextCommand: "/continue",
	},
	WarnPermissionLimited: {
		surface:     "capabilities",
		recovery:    []string{"Install git or put it on PATH to enable convenience features."},
		nextCommand: "/continue",
	},
	NotVerifiedMissingEvidence: {
		surface:          "evidence",
		recovery:         []string{"Provide the missing evidence items.", "Re-run the evaluation after collecting evidence."},
		nextCommand:      "/continue",
		requiresEvidence: true,
	},
	NotVerifiedEvidenceStale: {
		surface:          "evidence",
		recovery:         []string{"Refresh the stale evidence items.", "Re-run the evaluation with fresh observations."},
		nextCommand:      "/continue",
		requiresEvidence: true,
	},
}

// Known reports whether c is part of the closed set.
func Known(c Code) bool {
	_, ok := catalog[c]
	return ok
}

// All returns every known code, sorted.
func All() []Code {
	out := make([]Code, 0, len(catalog))
	for c := range catalog {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Status maps a code to the terminal status it implies.
func (c Code) Status() domain.Status {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "BLOCKED-"):
		return domain.StatusBlocked
	case strings.HasPrefix(s, "NOT_VERIFIED-"):
		return domain.StatusNotVerified
	case strings.HasPrefix(s, "WARN-"):
		return domain.StatusWarn
	default:
		return domain.StatusOK
	}
}

// NextCommand returns the catalog's default next command for c.
func (c Code) NextCommand() string {
	return catalog[c].nextCommand
}

// KindFor returns the context variant a payload for c must carry.
// Every code is listed explicitly; an unknown code is an error.
func KindFor(c Code) (ContextKind, error) {
	switch c {
	case CodeNone:
		return KindEmpty, nil
	case BlockedEngineSelfCheck:
		return KindSelfCheck, nil
	case BlockedExecDisallowed, BlockedRepoIdentityResolution:
		return KindRepoIdentity, nil
	case BlockedPersistenceTargetDegen, BlockedPersistencePathViolation:
		return KindTarget, nil
	case BlockedPersistencePhaseGate:
		return KindPersistence, nil
	case BlockedPermissionDenied, BlockedModeInsufficient, BlockedSurfacePolicy, WarnPermissionLimited:
		return KindCapability, nil
	case BlockedUnsafeRepoDirective, BlockedInteractiveRepoDirective, BlockedConstraintWidening:
		return KindDirective, nil
	case BlockedPromptBudgetExceeded:
		return KindPromptBudget, nil
	case BlockedPackLockMismatch, BlockedRulesetHashMismatch, BlockedActivationHashMismatch:
		return KindHashMismatch, nil
	case WarnModeDowngraded:
		return KindMode, nil
	case NotVerifiedMissingEvidence, NotVerifiedEvidenceStale:
		return KindEvidence, nil
	default:
		return "", fmt.Errorf("unknown reason code %q", string(c))
	}
}
