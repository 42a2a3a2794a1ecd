package host

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rogers-F/governance-engine/internal/config"
	"github.com/Rogers-F/governance-engine/internal/domain"
)

func allCaps() Capabilities {
	return Capabilities{
		CWDTrust:              domain.CWDTrusted,
		FSReadCommandsHome:    true,
		FSWriteConfigRoot:     true,
		FSWriteCommandsHome:   true,
		FSWriteWorkspacesHome: true,
		ExecAllowed:           true,
		GitAvailable:          true,
	}
}

func newTestProber(t *testing.T, env map[string]string) (*Prober, config.Paths) {
	t.Helper()
	root := t.TempDir()
	paths := config.Paths{
		ConfigRoot:     filepath.Join(root, "config"),
		CommandsHome:   filepath.Join(root, "config", "commands"),
		WorkspacesHome: filepath.Join(root, "config", "workspaces", "nested"),
		PythonCommand:  filepath.Join(root, "bin", "python3"),
	}
	require.NoError(t, os.MkdirAll(paths.CommandsHome, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.PythonCommand), 0o755))
	require.NoError(t, os.WriteFile(paths.PythonCommand, []byte("#!/bin/sh\n"), 0o755))

	p := &Prober{
		Paths:    paths,
		Env:      config.MapEnv(env),
		LookPath: func(string) (string, error) { return "/usr/bin/git", nil },
		Access:   func(string, AccessMode) error { return nil },
	}
	return p, paths
}

func TestProbe_AllGranted(t *testing.T) {
	p, _ := newTestProber(t, nil)
	caps := p.Probe("")
	assert.Equal(t, allCaps(), caps)
}

func TestProbe_WorkspacesHomeCheckedViaAncestor(t *testing.T) {
	p, paths := newTestProber(t, nil)
	var probed []string
	p.Access = func(path string, mode AccessMode) error {
		if mode == AccessWrite {
			probed = append(probed, path)
		}
		return nil
	}
	caps := p.Probe(domain.CWDUntrusted)

	assert.True(t, caps.FSWriteWorkspacesHome)
	assert.Equal(t, domain.CWDUntrusted, caps.CWDTrust)
	assert.Contains(t, probed, filepath.Dir(filepath.Dir(paths.WorkspacesHome)))
}

func TestProbe_DeniedAccess(t *testing.T) {
	p, paths := newTestProber(t, nil)
	p.Access = func(path string, mode AccessMode) error {
		if path == paths.CommandsHome && mode == AccessRead {
			return errors.New("denied")
		}
		return nil
	}
	caps := p.Probe("")
	assert.False(t, caps.FSReadCommandsHome)
	assert.True(t, caps.FSWriteConfigRoot)
}

func TestProbe_ExecDisabledByEnv(t *testing.T) {
	p, _ := newTestProber(t, map[string]string{DisableExecEnv: "1"})
	assert.False(t, p.Probe("").ExecAllowed)
}

func TestProbe_ExecRequiresExecutableBit(t *testing.T) {
	p, paths := newTestProber(t, nil)
	require.NoError(t, os.Chmod(paths.PythonCommand, 0o644))
	assert.False(t, p.Probe("").ExecAllowed)
}

func TestProbe_GitMissing(t *testing.T) {
	p, _ := newTestProber(t, nil)
	p.LookPath = func(string) (string, error) { return "", errors.New("not found") }
	assert.False(t, p.Probe("").GitAvailable)
}

func TestProbe_UnboundPaths(t *testing.T) {
	p := &Prober{Access: func(string, AccessMode) error { return nil }, LookPath: func(string) (string, error) { return "", nil }}
	caps := p.Probe("")
	assert.False(t, caps.FSReadCommandsHome)
	assert.False(t, caps.FSWriteConfigRoot)
	assert.False(t, caps.FSWriteWorkspacesHome)
}

func TestCapabilities_Hash(t *testing.T) {
	a := allCaps()
	b := allCaps()
	assert.Len(t, a.Hash(), 16)
	assert.Equal(t, a.Hash(), b.Hash())

	b.GitAvailable = false
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestMode_Satisfies(t *testing.T) {
	tests := []struct {
		m, min Mode
		want   bool
	}{
		{ModeUser, ModeUser, true},
		{ModeSystem, ModeUser, true},
		{ModePipeline, ModeSystem, true},
		{ModeUser, ModeSystem, false},
		{ModeAgentsStrict, ModeUser, false},
		{ModeSystem, ModeAgentsStrict, false},
		{ModeAgentsStrict, ModeAgentsStrict, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.m.Satisfies(tt.min), "%s satisfies %s", tt.m, tt.min)
	}
}

func TestResolveEffectiveMode_CapabilityShortfall(t *testing.T) {
	caps := allCaps()
	caps.FSReadCommandsHome = false

	res := ResolveEffectiveMode("system", AdapterOpenCode, config.MapEnv(nil), caps)
	assert.Equal(t, ModeSystem, res.Candidate)
	assert.Equal(t, ModeUser, res.Effective)
	assert.True(t, res.Downgraded)
	assert.Equal(t, []string{CapFSReadCommandsHome}, res.Missing)
	require.NotNil(t, res.Deviation)
	assert.Equal(t, "mode_downgrade", res.Deviation.Type)
}

func TestResolveEffectiveMode_Sources(t *testing.T) {
	caps := allCaps()

	res := ResolveEffectiveMode("", AdapterOpenCode, config.MapEnv(map[string]string{CIEnv: "true"}), caps)
	assert.Equal(t, ModePipeline, res.Effective)
	assert.Equal(t, ModeSourceCISignal, res.Source)

	res = ResolveEffectiveMode("", AdapterDesktop, config.MapEnv(map[string]string{CIEnv: "false"}), caps)
	assert.Equal(t, ModeSystem, res.Effective)
	assert.Equal(t, ModeSourceAdapterDefault, res.Source)

	res = ResolveEffectiveMode("user", AdapterCI, config.MapEnv(map[string]string{CIEnv: "1"}), caps)
	assert.Equal(t, ModeUser, res.Effective)
	assert.Equal(t, ModeSourceRequested, res.Source)
	assert.False(t, res.Downgraded)
}

func TestResolveEffectiveMode_PipelineNeedsGit(t *testing.T) {
	caps := allCaps()
	caps.GitAvailable = false

	res := ResolveEffectiveMode("pipeline", AdapterCI, nil, caps)
	assert.True(t, res.Downgraded)
	assert.Equal(t, []string{CapGitAvailable}, res.Missing)

	res = ResolveEffectiveMode("system", AdapterCI, nil, caps)
	assert.False(t, res.Downgraded)
}
