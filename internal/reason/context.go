package reason

// ContextKind names one variant of the reason context union.
type ContextKind string

const (
	KindEmpty        ContextKind = "empty"
	KindSelfCheck    ContextKind = "self_check"
	KindRepoIdentity ContextKind = "repo_identity"
	KindTarget       ContextKind = "write_target"
	KindPersistence  ContextKind = "persistence"
	KindCapability   ContextKind = "capability"
	KindDirective    ContextKind = "repo_directive"
	KindPromptBudget ContextKind = "prompt_budget"
	KindHashMismatch ContextKind = "hash_mismatch"
	KindMode         ContextKind = "mode"
	KindEvidence     ContextKind = "evidence"
)

// Context is the reason-specific detail attached to a payload. The set of
// implementations is closed; each reason code admits exactly one kind.
type Context interface {
	Kind() ContextKind
	sealed()
}

// EmptyContext carries no detail.
type EmptyContext struct{}

// SelfCheckContext records why the payload builder rejected a payload.
type SelfCheckContext struct {
	OriginalCode string `json:"original_reason_code"`
	Error        string `json:"error"`
}

// RepoIdentityContext describes a failed repo-root resolution.
type RepoIdentityContext struct {
	Source       string   `json:"source"`
	Candidates   []string `json:"candidates"`
	ExecAllowed  bool     `json:"exec_allowed"`
	GitAvailable bool     `json:"git_available"`
}

// TargetContext describes a rejected write target.
type TargetContext struct {
	Target    string `json:"target"`
	DetailKey string `json:"detail_key"`
	Detail    string `json:"detail"`
}

// PersistenceContext describes a denied artifact persistence.
type PersistenceContext struct {
	ArtifactKind     string `json:"artifact_kind"`
	PolicyReasonCode string `json:"policy_reason_code"`
	Phase            string `json:"phase"`
	Reason           string `json:"reason"`
}

// CapabilityContext describes a capability or mode gate on a write surface.
type CapabilityContext struct {
	Variable           string   `json:"variable"`
	RequiredCapability string   `json:"required_capability,omitempty"`
	RequiredMode       string   `json:"required_mode,omitempty"`
	EffectiveMode      string   `json:"effective_mode"`
	Missing            []string `json:"missing"`
}

// DirectiveContext points at the repository document that triggered a block.
type DirectiveContext struct {
	DocPath          string `json:"doc_path"`
	DocHash          string `json:"doc_hash"`
	DirectiveExcerpt string `json:"directive_excerpt"`
}

// PromptBudgetContext carries the budget counters at the time of the block.
type PromptBudgetContext struct {
	MaxPrompts      int `json:"max_prompts"`
	UsedPrompts     int `json:"used_prompts"`
	RepoDocsPrompts int `json:"repo_docs_prompts"`
	MaxRepoDocs     int `json:"max_repo_docs_prompts"`
}

// HashMismatchContext records an integrity comparison that failed.
type HashMismatchContext struct {
	Subject  string `json:"subject"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ModeContext records a mode downgrade.
type ModeContext struct {
	RequestedMode string   `json:"requested_mode"`
	EffectiveMode string   `json:"effective_mode"`
	Missing       []string `json:"missing_capabilities"`
}

// EvidenceContext partitions the required evidence.
type EvidenceContext struct {
	Required []string `json:"required"`
	Stale    []string `json:"stale"`
	Missing  []string `json:"missing"`
}

func (EmptyContext) Kind() ContextKind        { return KindEmpty }
func (SelfCheckContext) Kind() ContextKind    { return KindSelfCheck }
func (RepoIdentityContext) Kind() ContextKind { return KindRepoIdentity }
func (TargetContext) Kind() ContextKind       { return KindTarget }
func (PersistenceContext) Kind() ContextKind  { return KindPersistence }
func (CapabilityContext) Kind() ContextKind   { return KindCapability }
func (DirectiveContext) Kind() ContextKind    { return KindDirective }
func (PromptBudgetContext) Kind() ContextKind { return KindPromptBudget }
func (HashMismatchContext) Kind() ContextKind { return KindHashMismatch }
func (ModeContext) Kind() ContextKind         { return KindMode }
func (EvidenceContext) Kind() ContextKind     { return KindEvidence }

func (EmptyContext) sealed()        {}
func (SelfCheckContext) sealed()    {}
func (RepoIdentityContext) sealed() {}
func (TargetContext) sealed()       {}
func (PersistenceContext) sealed()  {}
func (CapabilityContext) sealed()   {}
func (DirectiveContext) sealed()    {}
func (PromptBudgetContext) sealed() {}
func (HashMismatchContext) sealed() {}
func (ModeContext) sealed()         {}
func (EvidenceContext) sealed()     {}
