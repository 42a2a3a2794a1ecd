package orchestrator

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/Rogers-F/governance-engine/internal/hashing"
	"github.com/Rogers-F/governance-engine/internal/reason"
)

// NormalizeVersion renders a semantic version in canonical form so "v1.0" and
// "1.0.0" hash the same. Unparseable input is returned trimmed.
func NormalizeVersion(v string) string {
	s := strings.TrimSpace(v)
	parsed, err := semver.NewVersion(s)
	if err != nil {
		return s
	}
	return parsed.String()
}

// normalizePacks trims, deduplicates and sorts pack ids.
func normalizePacks(packs []string) []string {
	seen := make(map[string]bool, len(packs))
	out := make([]string, 0, len(packs))
	for _, p := range packs {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// PackLockHash is the expected lock hash for a set of policy packs.
func PackLockHash(packs []string, engineVersion string) string {
	return hashing.MustHash(map[string]any{
		"kind":           "pack-lock",
		"packs":          normalizePacks(packs),
		"engine_version": NormalizeVersion(engineVersion),
	})
}

// RulesetHash binds the selected packs, the engine version, the expected pack
// lock and the reason catalog revision.
func RulesetHash(packs []string, engineVersion, packLock string) string {
	return hashing.MustHash(map[string]any{
		"kind":           "ruleset",
		"packs":          normalizePacks(packs),
		"engine_version": NormalizeVersion(engineVersion),
		"pack_lock":      packLock,
		"reason_catalog": reason.CatalogVersion,
	})
}

// ActivationInput is everything the activation hash covers.
type ActivationInput struct {
	Phase          string `json:"phase"`
	ActiveGate     string `json:"active_gate"`
	Mode           string `json:"effective_mode"`
	CapabilityHash string `json:"capabilities_hash"`
	RepoIdentity   string `json:"repo_identity"`
	RulesetHash    string `json:"ruleset_hash"`
}

// ActivationHash detects drift between two evaluations that should agree.
func ActivationHash(in ActivationInput) string {
	return hashing.MustHash(in)
}
