package orchestrator

import (
	"time"

	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/evidence"
	"github.com/Rogers-F/governance-engine/internal/guard"
	"github.com/Rogers-F/governance-engine/internal/host"
	"github.com/Rogers-F/governance-engine/internal/reason"
	"github.com/Rogers-F/governance-engine/internal/repo"
	"github.com/Rogers-F/governance-engine/internal/workflow"
)

// Parity is the compact projection callers compare across evaluations.
type Parity struct {
	Status      domain.Status `json:"status"`
	Phase       string        `json:"phase"`
	ReasonCode  string        `json:"reason_code"`
	NextCommand string        `json:"next_command"`
}

// Output is the result of one evaluation.
type Output struct {
	EngineVersion           string               `json:"engine_version"`
	Adapter                 host.Adapter         `json:"adapter"`
	Capabilities            host.Capabilities    `json:"capabilities"`
	CapabilitiesHash        string               `json:"capabilities_hash"`
	Mode                    host.ModeResolution  `json:"mode"`
	RepoContext             repo.Context         `json:"repo_context"`
	WorkspaceReadyCommitted bool                 `json:"workspace_ready_committed"`
	BusinessRulesExecuted   bool                 `json:"business_rules_executed"`
	Phase                   workflow.RoutedPhase `json:"routed_phase"`
	WriteTarget             *guard.TargetResult  `json:"write_target,omitempty"`
	Evidence                evidence.Partition   `json:"evidence"`
	RepoDocFindings         []guard.DocFinding   `json:"repo_doc_findings,omitempty"`
	PackLockHash            string               `json:"pack_lock_hash"`
	RulesetHash             string               `json:"ruleset_hash"`
	ActivationHash          string               `json:"activation_hash"`
	Reason                  reason.Payload       `json:"reason"`
	Parity                  Parity               `json:"parity"`
	EvaluatedAt             time.Time            `json:"evaluated_at"`
}

// Status is the terminal status of the evaluation.
func (o Output) Status() domain.Status { return o.Reason.Status }

// Blocked reports whether the evaluation stopped the unit of work.
func (o Output) Blocked() bool { return o.Reason.Status == domain.StatusBlocked }

// Record projects the output into an audit ledger row.
func (o Output) Record(id, payloadJSON string) domain.EvaluationRecord {
	return domain.EvaluationRecord{
		ID:              id,
		RepoFingerprint: o.RepoContext.Fingerprint,
		Status:          o.Reason.Status,
		ReasonCode:      string(o.Reason.ReasonCode),
		Phase:           o.Phase.Phase,
		EffectiveMode:   string(o.Mode.Effective),
		ActivationHash:  o.ActivationHash,
		PayloadJSON:     payloadJSON,
		CreatedAt:       o.EvaluatedAt.Unix(),
	}
}
