package guard

import (
	"fmt"
	"strings"

	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/host"
	"github.com/Rogers-F/governance-engine/internal/workflow"
)

// PersistCode is the policy-level reason for a persistence decision.
type PersistCode string

const (
	PersistAllowed              PersistCode = "PERSIST_ALLOWED"
	PersistArtifactUnknown      PersistCode = "PERSIST_ARTIFACT_UNKNOWN"
	PersistPhaseMismatch        PersistCode = "PERSIST_PHASE_MISMATCH"
	PersistDiscoveryNotExecuted PersistCode = "PERSIST_DISCOVERY_NOT_EXECUTED"
	PersistDisallowedInPipeline PersistCode = "PERSIST_DISALLOWED_IN_PIPELINE"
	PersistGateNotApproved      PersistCode = "PERSIST_GATE_NOT_APPROVED"
	PersistConfirmationRequired PersistCode = "PERSIST_CONFIRMATION_REQUIRED"
	PersistConfirmationInvalid  PersistCode = "PERSIST_CONFIRMATION_INVALID"
)

// WorkspaceMemoryConfirmation must be supplied verbatim to persist a decision.
const WorkspaceMemoryConfirmation = "Persist to workspace memory: YES"

// Workspace-memory scopes.
const (
	MemoryScopeObservation = "observation"
	MemoryScopeDecision    = "decision"
)

// minPhase is the phase each artifact kind requires. Kinds absent here fail closed.
var minPhase = map[domain.ArtifactKind]workflow.Phase{
	domain.ArtifactRepoCache:       workflow.Phase2,
	domain.ArtifactRepoMapDigest:   workflow.Phase2,
	domain.ArtifactDecisionPack:    workflow.Phase2_1,
	domain.ArtifactBusinessRules:   workflow.Phase1_5,
	domain.ArtifactWorkspaceMemory: workflow.Phase2,
}

// PersistenceDecision is the outcome of a persistence check.
type PersistenceDecision struct {
	Allowed    bool        `json:"allowed"`
	ReasonCode PersistCode `json:"reason_code"`
	Reason     string      `json:"reason"`
}

// PersistenceRequest describes one artifact write.
type PersistenceRequest struct {
	Kind                  domain.ArtifactKind
	Phase                 string
	Mode                  host.Mode
	BusinessRulesExecuted bool
	// MemoryScope applies to workspace memory only; empty means decision.
	MemoryScope  string
	GateApproved bool
	Confirmation string
}

// PersistencePhaseGate checks only the phase requirement of an artifact kind.
func PersistencePhaseGate(kind domain.ArtifactKind, phase string) PersistenceDecision {
	required, ok := minPhase[kind]
	if !ok {
		return deny(PersistArtifactUnknown, fmt.Sprintf("artifact kind %q is not in the persistence table", kind))
	}
	token := workflow.NormalizePhaseToken(phase)
	if !token.AtLeast(required) {
		return deny(PersistPhaseMismatch, fmt.Sprintf("%s requires phase %s or later; current phase is %q", kind, required.Label(), phase))
	}
	return allow(fmt.Sprintf("%s may be persisted from phase %s", kind, required.Label()))
}

// AuthorizePersistence applies the full policy for one artifact write.
func AuthorizePersistence(req PersistenceRequest) PersistenceDecision {
	switch req.Kind {
	case domain.ArtifactRepoCache, domain.ArtifactRepoMapDigest, domain.ArtifactDecisionPack:
		return PersistencePhaseGate(req.Kind, req.Phase)

	case domain.ArtifactBusinessRules:
		if d := PersistencePhaseGate(req.Kind, req.Phase); !d.Allowed {
			return d
		}
		if !req.BusinessRulesExecuted {
			return deny(PersistDiscoveryNotExecuted, "business-rules discovery has not run for this repository")
		}
		return allow("business-rules inventory backed by an executed discovery")

	case domain.ArtifactWorkspaceMemory:
		return authorizeWorkspaceMemory(req)
	}
	return deny(PersistArtifactUnknown, fmt.Sprintf("artifact kind %q is not in the persistence table", req.Kind))
}

func authorizeWorkspaceMemory(req PersistenceRequest) PersistenceDecision {
	token := workflow.NormalizePhaseToken(req.Phase)

	if strings.EqualFold(strings.TrimSpace(req.MemoryScope), MemoryScopeObservation) {
		return PersistencePhaseGate(req.Kind, req.Phase)
	}

	if req.Mode == host.ModePipeline {
		return deny(PersistDisallowedInPipeline, "workspace-memory decisions need an interactive confirmation, which pipeline mode cannot provide")
	}
	if !token.InPhase5Family() {
		return deny(PersistPhaseMismatch, fmt.Sprintf("workspace-memory decisions are persisted during phase 5 review; current phase is %q", req.Phase))
	}
	if !req.GateApproved {
		return deny(PersistGateNotApproved, "the active phase 5 gate has not been approved")
	}
	if strings.TrimSpace(req.Confirmation) == "" {
		return deny(PersistConfirmationRequired, fmt.Sprintf("confirmation %q is required", WorkspaceMemoryConfirmation))
	}
	if req.Confirmation != WorkspaceMemoryConfirmation {
		return deny(PersistConfirmationInvalid, fmt.Sprintf("confirmation must match %q exactly", WorkspaceMemoryConfirmation))
	}
	return allow("workspace-memory decision confirmed after gate approval")
}

func allow(reason string) PersistenceDecision {
	return PersistenceDecision{Allowed: true, ReasonCode: PersistAllowed, Reason: reason}
}

func deny(code PersistCode, reason string) PersistenceDecision {
	return PersistenceDecision{ReasonCode: code, Reason: reason}
}
