// Package guard holds the policy checks an evaluation runs before it may
// proceed: write-target validation, persistence authorization, repository
// document directives, prompt budget, and write-surface gates.
package guard

import "github.com/Rogers-F/governance-engine/internal/reason"

// Violation is the outcome of a failed check.
type Violation struct {
	Code    reason.Code
	Context reason.Context
	// Signal names the input that triggered the violation.
	Signal string
	// MissingEvidence lists what the caller must supply to clear the violation.
	MissingEvidence []string
}

// Check is one named policy check. Run returns nil when the check passes.
type Check struct {
	Name string
	Run  func() *Violation
}

// CheckAll runs checks in order and short-circuits on the first violation.
// It returns the violation and the name of the check that produced it.
func CheckAll(checks ...Check) (*Violation, string) {
	for _, c := range checks {
		if v := c.Run(); v != nil {
			return v, c.Name
		}
	}
	return nil, ""
}
