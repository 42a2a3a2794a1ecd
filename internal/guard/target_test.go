package guard

import (
	"reflect"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Rogers-F/governance-engine/internal/reason"
)

func TestEvaluateTargetPath(t *testing.T) {
	tests := []struct {
		target    string
		valid     bool
		code      reason.Code
		detailKey string
	}{
		{"", false, reason.BlockedPersistenceTargetDegen, DetailEmpty},
		{"   ", false, reason.BlockedPersistenceTargetDegen, DetailEmpty},
		{"C:", false, reason.BlockedPersistenceTargetDegen, DetailDriveLetter},
		{`C:\`, false, reason.BlockedPersistenceTargetDegen, DetailDriveRoot},
		{"d:/", false, reason.BlockedPersistenceTargetDegen, DetailDriveRoot},
		{`C:repo\cache.yaml`, false, reason.BlockedPersistenceTargetDegen, DetailDriveRelative},
		{"repo-cache.yaml", false, reason.BlockedPersistenceTargetDegen, DetailSingleSegment},
		{"/cache.yaml", false, reason.BlockedPersistenceTargetDegen, DetailSingleSegment},
		{"/tmp/x.yaml", false, reason.BlockedPersistencePathViolation, DetailNonVariable},
		{"workspaces/x.yaml", false, reason.BlockedPersistencePathViolation, DetailNonVariable},
		{"${WORKSPACES_HOME", false, reason.BlockedPersistencePathViolation, DetailMalformedVariable},
		{"${1BAD}/x.yaml", false, reason.BlockedPersistencePathViolation, DetailMalformedVariable},
		{"${WORKSPACES_HOME}x.yaml", false, reason.BlockedPersistencePathViolation, DetailMalformedVariable},
		{"${UNKNOWN_VAR}/x.yaml", false, reason.BlockedPersistencePathViolation, DetailUnknownVariable},
		{"${WORKSPACES_HOME}/../x.yaml", false, reason.BlockedPersistencePathViolation, DetailParentTraversal},
		{`${WORKSPACES_HOME}\abc\..\x.yaml`, false, reason.BlockedPersistencePathViolation, DetailParentTraversal},
		{"${WORKSPACES_HOME}/abc/repo-cache.yaml", true, reason.CodeNone, "ok"},
		{"${REPO_CACHE_FILE}", true, reason.CodeNone, "ok"},
		{"${WORKSPACES_HOME}/a..b/x.yaml", true, reason.CodeNone, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got := EvaluateTargetPath(tt.target)
			if got.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v", got.Valid, tt.valid)
			}
			if got.ReasonCode != tt.code {
				t.Errorf("ReasonCode = %s, want %s", got.ReasonCode, tt.code)
			}
			if got.DetailKey != tt.detailKey {
				t.Errorf("DetailKey = %q, want %q", got.DetailKey, tt.detailKey)
			}
			if got.Detail == "" {
				t.Error("Detail must not be empty")
			}
		})
	}
}

func TestEvaluateTargetPath_ValidCarriesVariableAndSuffix(t *testing.T) {
	got := EvaluateTargetPath("${WORKSPACES_HOME}/abc/repo-cache.yaml")
	if got.Variable != "WORKSPACES_HOME" {
		t.Errorf("Variable = %q", got.Variable)
	}
	if got.Suffix != "abc/repo-cache.yaml" {
		t.Errorf("Suffix = %q", got.Suffix)
	}
}

func TestEvaluateTargetPath_UnknownVariableIsNamed(t *testing.T) {
	got := EvaluateTargetPath("${UNKNOWN_VAR}/x.yaml")
	if got.Variable != "UNKNOWN_VAR" {
		t.Errorf("Variable = %q, want UNKNOWN_VAR", got.Variable)
	}
	ctx := got.Context("${UNKNOWN_VAR}/x.yaml")
	if ctx.Target != "${UNKNOWN_VAR}/x.yaml" || ctx.DetailKey != DetailUnknownVariable {
		t.Errorf("context = %+v", ctx)
	}
}

func TestCanonicalVariables_Count(t *testing.T) {
	if len(CanonicalVariables) != 14 {
		t.Errorf("len(CanonicalVariables) = %d, want 14", len(CanonicalVariables))
	}
}

func TestEvaluateTargetPath_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("evaluation is pure", prop.ForAll(
		func(s string) bool {
			return reflect.DeepEqual(EvaluateTargetPath(s), EvaluateTargetPath(s))
		},
		gen.AnyString(),
	))

	names := make([]string, 0, len(CanonicalVariables))
	for name := range CanonicalVariables {
		names = append(names, name)
	}
	sort.Strings(names)
	vars := make([]interface{}, len(names))
	for i, n := range names {
		vars[i] = n
	}

	properties.Property("allow-listed variable with plain suffix is valid", prop.ForAll(
		func(name, suffix string) bool {
			r := EvaluateTargetPath("${" + name + "}/" + suffix)
			return r.Valid && r.Variable == name && r.Suffix == suffix
		},
		gen.OneConstOf(vars...),
		gen.AlphaString(),
	))

	properties.Property("a '..' segment is always rejected", prop.ForAll(
		func(name, prefix string) bool {
			r := EvaluateTargetPath("${" + name + "}/" + prefix + "/../x.yaml")
			return !r.Valid && r.DetailKey == DetailParentTraversal
		},
		gen.OneConstOf(vars...),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
