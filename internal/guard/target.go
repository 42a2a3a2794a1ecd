package guard

import (
	"regexp"
	"strings"

	"github.com/Rogers-F/governance-engine/internal/reason"
)

// Detail keys reported by EvaluateTargetPath, in check order.
const (
	DetailEmpty             = "empty"
	DetailDriveLetter       = "drive_letter"
	DetailDriveRoot         = "drive_root"
	DetailDriveRelative     = "drive_relative"
	DetailSingleSegment     = "single_segment"
	DetailNonVariable       = "non_variable"
	DetailMalformedVariable = "malformed_variable"
	DetailUnknownVariable   = "unknown_variable"
	DetailParentTraversal   = "parent_traversal"
)

// CanonicalVariables is the allow-list of write-target variables.
var CanonicalVariables = map[string]bool{
	"COMMANDS_HOME":              true,
	"CONFIG_ROOT":                true,
	"WORKSPACES_HOME":            true,
	"WORKSPACE_MEMORY_FILE":      true,
	"REPO_CACHE_FILE":            true,
	"REPO_DECISION_PACK_FILE":    true,
	"REPO_DIGEST_FILE":           true,
	"REPO_BUSINESS_RULES_FILE":   true,
	"SESSION_STATE_FILE":         true,
	"SESSION_STATE_POINTER_FILE": true,
	"REPO_HOME":                  true,
	"PROFILES_HOME":              true,
	"OPENCODE_HOME":              true,
	"ERROR_LOGS_HOME":            true,
}

var (
	driveLetter   = regexp.MustCompile(`^[A-Za-z]:$`)
	driveRoot     = regexp.MustCompile(`^[A-Za-z]:[\\/]+$`)
	driveRelative = regexp.MustCompile(`^[A-Za-z]:[^\\/]`)
	variableToken = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}(?:$|[\\/])`)
)

// TargetResult is the outcome of validating one write target.
type TargetResult struct {
	Valid      bool        `json:"valid"`
	ReasonCode reason.Code `json:"reason_code"`
	DetailKey  string      `json:"detail_key"`
	Detail     string      `json:"detail"`
	Variable   string      `json:"variable,omitempty"`
	Suffix     string      `json:"suffix,omitempty"`
}

// Context renders the result as a reason context.
func (r TargetResult) Context(target string) reason.TargetContext {
	return reason.TargetContext{Target: target, DetailKey: r.DetailKey, Detail: r.Detail}
}

// EvaluateTargetPath validates a persistence target. Checks run in a fixed
// order and the first failure is reported, so equal input always yields the
// same reason.
func EvaluateTargetPath(target string) TargetResult {
	s := strings.TrimSpace(target)

	if s == "" {
		return degenerate(DetailEmpty, "write target is empty")
	}
	switch {
	case driveLetter.MatchString(s):
		return degenerate(DetailDriveLetter, "write target is a bare drive letter")
	case driveRoot.MatchString(s):
		return degenerate(DetailDriveRoot, "write target is a drive root")
	case driveRelative.MatchString(s):
		return degenerate(DetailDriveRelative, "write target is drive-relative")
	}

	normalized := strings.ReplaceAll(s, `\`, "/")
	if !strings.HasPrefix(normalized, "${") && !strings.Contains(strings.Trim(normalized, "/"), "/") {
		return degenerate(DetailSingleSegment, "write target is a single path segment")
	}

	if !strings.HasPrefix(normalized, "${") {
		return violation(DetailNonVariable, "write target must start with an allow-listed ${VARIABLE}")
	}
	m := variableToken.FindStringSubmatch(normalized)
	if m == nil {
		return violation(DetailMalformedVariable, "write target variable token is malformed")
	}
	name := m[1]
	if !CanonicalVariables[name] {
		r := violation(DetailUnknownVariable, "variable ${"+name+"} is not allow-listed")
		r.Variable = name
		return r
	}

	suffix := strings.TrimPrefix(normalized, "${"+name+"}")
	for _, seg := range strings.Split(suffix, "/") {
		if seg == ".." {
			r := violation(DetailParentTraversal, "write target suffix contains a '..' segment")
			r.Variable = name
			return r
		}
	}

	return TargetResult{
		Valid:      true,
		ReasonCode: reason.CodeNone,
		DetailKey:  "ok",
		Detail:     "write target is allow-listed",
		Variable:   name,
		Suffix:     strings.TrimPrefix(suffix, "/"),
	}
}

func degenerate(key, detail string) TargetResult {
	return TargetResult{ReasonCode: reason.BlockedPersistenceTargetDegen, DetailKey: key, Detail: detail}
}

func violation(key, detail string) TargetResult {
	return TargetResult{ReasonCode: reason.BlockedPersistencePathViolation, DetailKey: key, Detail: detail}
}
