package guard

import "github.com/Rogers-F/governance-engine/internal/reason"

// BudgetAction is the outcome of a prompt-budget evaluation.
type BudgetAction string

const (
	BudgetContinue BudgetAction = "continue"
	BudgetWarn     BudgetAction = "warn"
	BudgetHalt     BudgetAction = "halt"
)

// PromptBudget carries the prompt counters for the current session.
// A zero maximum means unlimited.
type PromptBudget struct {
	MaxPrompts      int `json:"max_prompts"`
	UsedPrompts     int `json:"used_prompts"`
	RepoDocsPrompts int `json:"repo_docs_prompts"`
	MaxRepoDocs     int `json:"max_repo_docs_prompts"`
}

// Context renders the counters as a reason context.
func (b PromptBudget) Context() reason.PromptBudgetContext {
	return reason.PromptBudgetContext{
		MaxPrompts:      b.MaxPrompts,
		UsedPrompts:     b.UsedPrompts,
		RepoDocsPrompts: b.RepoDocsPrompts,
		MaxRepoDocs:     b.MaxRepoDocs,
	}
}

// BudgetGovernor enforces prompt-budget limits.
type BudgetGovernor struct {
	// WarnRatio is the fraction of budget at which a warning is issued (default 0.8).
	WarnRatio float64
	// HaltRatio is the fraction of budget beyond which evaluation is blocked (default 1.0).
	HaltRatio float64
}

// NewBudgetGovernor creates a governor with standard thresholds.
func NewBudgetGovernor() *BudgetGovernor {
	return &BudgetGovernor{WarnRatio: 0.8, HaltRatio: 1.0}
}

// Evaluate returns the most severe action across the session and repo-doc counters.
func (g *BudgetGovernor) Evaluate(b PromptBudget) BudgetAction {
	a := g.evaluate(b.UsedPrompts, b.MaxPrompts)
	if d := g.evaluate(b.RepoDocsPrompts, b.MaxRepoDocs); severity(d) > severity(a) {
		a = d
	}
	return a
}

func (g *BudgetGovernor) evaluate(used, limit int) BudgetAction {
	if limit <= 0 {
		return BudgetContinue
	}
	ratio := float64(used) / float64(limit)
	if ratio > g.HaltRatio {
		return BudgetHalt
	}
	if ratio >= g.WarnRatio {
		return BudgetWarn
	}
	return BudgetContinue
}

func severity(a BudgetAction) int {
	switch a {
	case BudgetHalt:
		return 2
	case BudgetWarn:
		return 1
	}
	return 0
}
