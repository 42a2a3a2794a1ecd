package guard

import (
	"testing"

	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/host"
)

func TestPersistencePhaseGate(t *testing.T) {
	tests := []struct {
		name  string
		kind  domain.ArtifactKind
		phase string
		want  PersistCode
	}{
		{"cache before phase 2", domain.ArtifactRepoCache, "1.1", PersistPhaseMismatch},
		{"cache at phase 2", domain.ArtifactRepoCache, "2", PersistAllowed},
		{"cache later phase", domain.ArtifactRepoCache, "Phase 4: Implementation", PersistAllowed},
		{"digest without phase", domain.ArtifactRepoMapDigest, "", PersistPhaseMismatch},
		{"decision pack at 2", domain.ArtifactDecisionPack, "2", PersistPhaseMismatch},
		{"decision pack at 2.1", domain.ArtifactDecisionPack, "2.1-DecisionPack", PersistAllowed},
		{"business rules at 1.3", domain.ArtifactBusinessRules, "1.3", PersistPhaseMismatch},
		{"business rules at 1.5", domain.ArtifactBusinessRules, "1.5", PersistAllowed},
		{"unknown kind", domain.ArtifactKind("session_notes"), "6", PersistArtifactUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PersistencePhaseGate(tt.kind, tt.phase)
			if got.ReasonCode != tt.want {
				t.Errorf("ReasonCode = %s, want %s (%s)", got.ReasonCode, tt.want, got.Reason)
			}
			if got.Allowed != (tt.want == PersistAllowed) {
				t.Errorf("Allowed = %v for %s", got.Allowed, got.ReasonCode)
			}
		})
	}
}

func TestAuthorizePersistence_BusinessRules(t *testing.T) {
	req := PersistenceRequest{Kind: domain.ArtifactBusinessRules, Phase: "1.5", Mode: host.ModeUser}
	if got := AuthorizePersistence(req); got.ReasonCode != PersistDiscoveryNotExecuted {
		t.Errorf("without discovery: %s, want %s", got.ReasonCode, PersistDiscoveryNotExecuted)
	}
	req.BusinessRulesExecuted = true
	if got := AuthorizePersistence(req); !got.Allowed {
		t.Errorf("with discovery: %s, want allowed", got.ReasonCode)
	}
	req.Phase = "1.2"
	if got := AuthorizePersistence(req); got.ReasonCode != PersistPhaseMismatch {
		t.Errorf("early phase: %s, want %s", got.ReasonCode, PersistPhaseMismatch)
	}
}

func TestAuthorizePersistence_UnknownKindFailsClosed(t *testing.T) {
	got := AuthorizePersistence(PersistenceRequest{Kind: "repo_cahce", Phase: "6", Mode: host.ModeSystem})
	if got.Allowed || got.ReasonCode != PersistArtifactUnknown {
		t.Errorf("got %+v, want fail-closed unknown artifact", got)
	}
}

func TestAuthorizePersistence_WorkspaceMemoryInPipeline(t *testing.T) {
	got := AuthorizePersistence(PersistenceRequest{
		Kind:  domain.ArtifactWorkspaceMemory,
		Phase: "5",
		Mode:  host.ModePipeline,
	})
	if got.Allowed {
		t.Fatal("workspace-memory decision must never be allowed in pipeline mode")
	}
	if got.ReasonCode != PersistDisallowedInPipeline {
		t.Errorf("ReasonCode = %s, want %s", got.ReasonCode, PersistDisallowedInPipeline)
	}

	// A correct confirmation does not help either.
	got = AuthorizePersistence(PersistenceRequest{
		Kind:         domain.ArtifactWorkspaceMemory,
		Phase:        "5.3",
		Mode:         host.ModePipeline,
		GateApproved: true,
		Confirmation: WorkspaceMemoryConfirmation,
	})
	if got.ReasonCode != PersistDisallowedInPipeline {
		t.Errorf("ReasonCode = %s, want %s", got.ReasonCode, PersistDisallowedInPipeline)
	}
}

func TestAuthorizePersistence_WorkspaceMemoryDecision(t *testing.T) {
	base := PersistenceRequest{Kind: domain.ArtifactWorkspaceMemory, Mode: host.ModeUser}
	tests := []struct {
		name string
		mut  func(r *PersistenceRequest)
		want PersistCode
	}{
		{"outside phase 5", func(r *PersistenceRequest) { r.Phase = "4" }, PersistPhaseMismatch},
		{"gate not approved", func(r *PersistenceRequest) { r.Phase = "5.3" }, PersistGateNotApproved},
		{"no confirmation", func(r *PersistenceRequest) {
			r.Phase, r.GateApproved = "5.4", true
		}, PersistConfirmationRequired},
		{"wrong case confirmation", func(r *PersistenceRequest) {
			r.Phase, r.GateApproved, r.Confirmation = "5", true, "persist to workspace memory: yes"
		}, PersistConfirmationInvalid},
		{"exact confirmation", func(r *PersistenceRequest) {
			r.Phase, r.GateApproved, r.Confirmation = "5.6", true, WorkspaceMemoryConfirmation
		}, PersistAllowed},
		{"explicit decision scope", func(r *PersistenceRequest) {
			r.MemoryScope, r.Phase = MemoryScopeDecision, "2"
		}, PersistPhaseMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mut(&req)
			got := AuthorizePersistence(req)
			if got.ReasonCode != tt.want {
				t.Errorf("ReasonCode = %s, want %s (%s)", got.ReasonCode, tt.want, got.Reason)
			}
		})
	}
}

func TestAuthorizePersistence_WorkspaceMemoryObservation(t *testing.T) {
	req := PersistenceRequest{
		Kind:        domain.ArtifactWorkspaceMemory,
		Phase:       "2",
		Mode:        host.ModePipeline,
		MemoryScope: MemoryScopeObservation,
	}
	if got := AuthorizePersistence(req); !got.Allowed {
		t.Errorf("observation at phase 2: %s, want allowed", got.ReasonCode)
	}
	req.Phase = "1.5"
	if got := AuthorizePersistence(req); got.ReasonCode != PersistPhaseMismatch {
		t.Errorf("observation at 1.5: %s, want %s", got.ReasonCode, PersistPhaseMismatch)
	}
}
