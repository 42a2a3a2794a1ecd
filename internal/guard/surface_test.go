package guard

import (
	"reflect"
	"testing"

	"github.com/Rogers-F/governance-engine/internal/host"
	"github.com/Rogers-F/governance-engine/internal/reason"
)

func allCaps() host.Capabilities {
	return host.Capabilities{
		CWDTrust:              "trusted",
		FSReadCommandsHome:    true,
		FSWriteConfigRoot:     true,
		FSWriteCommandsHome:   true,
		FSWriteWorkspacesHome: true,
		ExecAllowed:           true,
		GitAvailable:          true,
	}
}

func TestEvaluateSurface(t *testing.T) {
	noCommands := allCaps()
	noCommands.FSWriteCommandsHome = false
	noWorkspaces := allCaps()
	noWorkspaces.FSWriteWorkspacesHome = false

	tests := []struct {
		name     string
		variable string
		suffix   string
		mode     host.Mode
		caps     host.Capabilities
		want     reason.Code
		missing  []string
	}{
		{"workspace write in user mode", "WORKSPACES_HOME", "abc/repo-cache.yaml", host.ModeUser, allCaps(), reason.CodeNone, []string{}},
		{"agents_strict on workspace", "REPO_CACHE_FILE", "", host.ModeAgentsStrict, allCaps(), reason.CodeNone, []string{}},
		{"agents_strict on commands home", "COMMANDS_HOME", "rules.md", host.ModeAgentsStrict, allCaps(), reason.BlockedSurfacePolicy, []string{}},
		{"agents_strict on config root", "CONFIG_ROOT", "a.json", host.ModeAgentsStrict, allCaps(), reason.BlockedSurfacePolicy, []string{}},
		{"user on commands home", "COMMANDS_HOME", "rules.md", host.ModeUser, allCaps(), reason.BlockedModeInsufficient, []string{}},
		{"pipeline on profiles home", "PROFILES_HOME", "p.md", host.ModePipeline, allCaps(), reason.CodeNone, []string{}},
		{"system lacking commands write", "COMMANDS_HOME", "rules.md", host.ModeSystem, noCommands, reason.BlockedPermissionDenied, []string{host.CapFSWriteCommandsHome}},
		{"user lacking workspace write", "WORKSPACES_HOME", "x/y.md", host.ModeUser, noWorkspaces, reason.BlockedPermissionDenied, []string{host.CapFSWriteWorkspacesHome}},
		{"protected env file", "WORKSPACES_HOME", "repo/.env", host.ModeUser, allCaps(), reason.BlockedPermissionDenied, []string{"protected:.env"}},
		{"protected key", "REPO_HOME", "certs/server.key", host.ModeUser, allCaps(), reason.BlockedPermissionDenied, []string{"protected:*.key"}},
		{"protected git dir", "REPO_HOME", "src/.git/config", host.ModeUser, allCaps(), reason.BlockedPermissionDenied, []string{"protected:.git/*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateSurface(tt.variable, tt.suffix, tt.mode, tt.caps)
			if got.ReasonCode != tt.want {
				t.Fatalf("ReasonCode = %s, want %s", got.ReasonCode, tt.want)
			}
			if got.Allowed != (tt.want == reason.CodeNone) {
				t.Errorf("Allowed = %v", got.Allowed)
			}
			if !reflect.DeepEqual(got.Context.Missing, tt.missing) {
				t.Errorf("Missing = %v, want %v", got.Context.Missing, tt.missing)
			}
			if got.Context.Variable != tt.variable || got.Context.EffectiveMode != string(tt.mode) {
				t.Errorf("context = %+v", got.Context)
			}
		})
	}
}

func TestIsWorkspaceSurface(t *testing.T) {
	for _, v := range []string{"WORKSPACES_HOME", "REPO_CACHE_FILE", "SESSION_STATE_FILE", "REPO_HOME"} {
		if !IsWorkspaceSurface(v) {
			t.Errorf("%s should be a workspace surface", v)
		}
	}
	for _, v := range []string{"CONFIG_ROOT", "OPENCODE_HOME", "COMMANDS_HOME", "PROFILES_HOME"} {
		if IsWorkspaceSurface(v) {
			t.Errorf("%s should not be a workspace surface", v)
		}
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{".env", ".env", true},
		{".env", "a/b/.env", true},
		{".env", ".envrc", false},
		{"*.pem", "certs/ca.pem", true},
		{"*.pem", "pem.txt", false},
		{".git/*", ".git/HEAD", true},
		{".git/*", "sub/.git/refs/heads/main", true},
		{".git/*", "gitdocs/readme.md", false},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}
