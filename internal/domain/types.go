// Package domain defines the core types shared across the governance engine.
package domain

// Status is the terminal state of one evaluation cycle.
type Status string

const (
	StatusOK          Status = "ok"
	StatusWarn        Status = "warn"
	StatusBlocked     Status = "blocked"
	StatusNotVerified Status = "not_verified"
)

// Severity orders statuses for precedence decisions. Higher wins.
func (s Status) Severity() int {
	switch s {
	case StatusBlocked:
		return 3
	case StatusNotVerified:
		return 2
	case StatusWarn:
		return 1
	default:
		return 0
	}
}

// CWDTrust describes whether the caller trusts the process working directory.
type CWDTrust string

const (
	CWDTrusted   CWDTrust = "trusted"
	CWDUntrusted CWDTrust = "untrusted"
)

// ArtifactKind identifies a persisted workspace artifact.
type ArtifactKind string

const (
	ArtifactRepoCache       ArtifactKind = "repo_cache"
	ArtifactRepoMapDigest   ArtifactKind = "repo_map_digest"
	ArtifactDecisionPack    ArtifactKind = "decision_pack"
	ArtifactBusinessRules   ArtifactKind = "business_rules"
	ArtifactWorkspaceMemory ArtifactKind = "workspace_memory"
)

// ArtifactFiles maps each artifact kind to its file name under the repo workspace.
var ArtifactFiles = map[ArtifactKind]string{
	ArtifactRepoCache:       "repo-cache.yaml",
	ArtifactRepoMapDigest:   "repo-map-digest.md",
	ArtifactDecisionPack:    "decision-pack.md",
	ArtifactBusinessRules:   "business-rules.md",
	ArtifactWorkspaceMemory: "workspace-memory.yaml",
}

// SessionStateFileName is the per-repo session state document name.
const SessionStateFileName = "SESSION_STATE.json"

// EvaluationRecord is one orchestrator output captured in the audit ledger.
type EvaluationRecord struct {
	ID              string
	RepoFingerprint string
	Status          Status
	ReasonCode      string
	Phase           string
	EffectiveMode   string
	ActivationHash  string
	PayloadJSON     string
	CreatedAt       int64
}

// PersistRecord is one artifact persistence attempt captured in the audit ledger.
type PersistRecord struct {
	ID               string
	RepoFingerprint  string
	ArtifactKind     ArtifactKind
	Phase            string
	Allowed          bool
	PolicyReasonCode string
	Path             string
	Bytes            int
	CreatedAt        int64
}
