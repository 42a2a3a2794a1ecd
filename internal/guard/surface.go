package guard

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Rogers-F/governance-engine/internal/host"
	"github.com/Rogers-F/governance-engine/internal/reason"
)

// surfaceRule is the capability and mode a write surface demands.
type surfaceRule struct {
	capability string
	minMode    host.Mode
	workspace  bool
}

var surfaceRules = map[string]surfaceRule{
	"CONFIG_ROOT":   {capability: host.CapFSWriteConfigRoot, minMode: host.ModeUser},
	"OPENCODE_HOME": {capability: host.CapFSWriteConfigRoot, minMode: host.ModeUser},
	"COMMANDS_HOME": {capability: host.CapFSWriteCommandsHome, minMode: host.ModeSystem},
	"PROFILES_HOME": {capability: host.CapFSWriteCommandsHome, minMode: host.ModeSystem},
}

var workspaceSurface = surfaceRule{capability: host.CapFSWriteWorkspacesHome, minMode: host.ModeUser, workspace: true}

// ProtectedPatterns are never writable through any surface.
var ProtectedPatterns = []string{".env", "*.key", "*.pem", ".git/*"}

// SurfaceResult is the outcome of the capability and mode gates for a target.
type SurfaceResult struct {
	Allowed    bool                     `json:"allowed"`
	ReasonCode reason.Code              `json:"reason_code"`
	Context    reason.CapabilityContext `json:"context"`
}

// IsWorkspaceSurface reports whether writes through variable stay inside the
// repository workspace.
func IsWorkspaceSurface(variable string) bool {
	return ruleFor(variable).workspace
}

func ruleFor(variable string) surfaceRule {
	if r, ok := surfaceRules[variable]; ok {
		return r
	}
	return workspaceSurface
}

// EvaluateSurface gates a validated write target on mode and capabilities.
// Checks run in order: agents_strict surface restriction, minimum mode,
// required capability, protected file patterns.
func EvaluateSurface(variable, suffix string, mode host.Mode, caps host.Capabilities) SurfaceResult {
	rule := ruleFor(variable)
	ctx := reason.CapabilityContext{
		Variable:           variable,
		RequiredCapability: rule.capability,
		RequiredMode:       string(rule.minMode),
		EffectiveMode:      string(mode),
		Missing:            []string{},
	}

	if mode == host.ModeAgentsStrict && !rule.workspace {
		return SurfaceResult{ReasonCode: reason.BlockedSurfacePolicy, Context: ctx}
	}
	if rule.minMode != host.ModeUser && !mode.Satisfies(rule.minMode) {
		return SurfaceResult{ReasonCode: reason.BlockedModeInsufficient, Context: ctx}
	}
	if !caps.Has(rule.capability) {
		ctx.Missing = []string{rule.capability}
		return SurfaceResult{ReasonCode: reason.BlockedPermissionDenied, Context: ctx}
	}
	if pattern, ok := matchProtected(suffix); ok {
		ctx.RequiredCapability = ""
		ctx.Missing = []string{fmt.Sprintf("protected:%s", pattern)}
		return SurfaceResult{ReasonCode: reason.BlockedPermissionDenied, Context: ctx}
	}
	return SurfaceResult{Allowed: true, ReasonCode: reason.CodeNone, Context: ctx}
}

func matchProtected(suffix string) (string, bool) {
	if suffix == "" {
		return "", false
	}
	clean := strings.TrimPrefix(filepath.ToSlash(suffix), "/")
	for _, pattern := range ProtectedPatterns {
		if matchPattern(pattern, clean) {
			return pattern, true
		}
	}
	return "", false
}

// matchPattern accepts an exact match, a base-name match, a glob over the full
// path or the base name, and a directory pattern such as ".git/*" anywhere in
// the path.
func matchPattern(pattern, path string) bool {
	if path == pattern {
		return true
	}
	base := filepath.Base(path)
	if base == pattern {
		return true
	}
	if ok, err := filepath.Match(pattern, path); err == nil && ok {
		return true
	}
	if ok, err := filepath.Match(pattern, base); err == nil && ok {
		return true
	}
	if dir, ok := strings.CutSuffix(pattern, "/*"); ok {
		for _, seg := range strings.Split(path, "/") {
			if seg == dir {
				return true
			}
		}
	}
	return false
}
