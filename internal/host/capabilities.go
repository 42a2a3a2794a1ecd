// Package host snapshots what the current process may do on this machine and
// resolves the operating mode those capabilities support.
package host

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/Rogers-F/governance-engine/internal/config"
	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/hashing"
	"github.com/Rogers-F/governance-engine/internal/session"
)

// DisableExecEnv turns off process execution for the host adapter when truthy.
const DisableExecEnv = "GOVENGINE_DISABLE_EXEC"

// Capability names as they appear in the capability snapshot.
const (
	CapFSReadCommandsHome    = "fs_read_commands_home"
	CapFSWriteConfigRoot     = "fs_write_config_root"
	CapFSWriteCommandsHome   = "fs_write_commands_home"
	CapFSWriteWorkspacesHome = "fs_write_workspaces_home"
	CapExecAllowed           = "exec_allowed"
	CapGitAvailable          = "git_available"
)

// Capabilities is an immutable snapshot taken once per evaluation.
type Capabilities struct {
	CWDTrust              domain.CWDTrust `json:"cwd_trust"`
	FSReadCommandsHome    bool            `json:"fs_read_commands_home"`
	FSWriteConfigRoot     bool            `json:"fs_write_config_root"`
	FSWriteCommandsHome   bool            `json:"fs_write_commands_home"`
	FSWriteWorkspacesHome bool            `json:"fs_write_workspaces_home"`
	ExecAllowed           bool            `json:"exec_allowed"`
	GitAvailable          bool            `json:"git_available"`
}

// Hash is the 16-hex-char canonical hash of the snapshot.
func (c Capabilities) Hash() string {
	return hashing.Truncate(hashing.MustHash(c), 16)
}

// Has reports the flag named by a Cap* constant. Unknown names are false.
func (c Capabilities) Has(name string) bool {
	switch name {
	case CapFSReadCommandsHome:
		return c.FSReadCommandsHome
	case CapFSWriteConfigRoot:
		return c.FSWriteConfigRoot
	case CapFSWriteCommandsHome:
		return c.FSWriteCommandsHome
	case CapFSWriteWorkspacesHome:
		return c.FSWriteWorkspacesHome
	case CapExecAllowed:
		return c.ExecAllowed
	case CapGitAvailable:
		return c.GitAvailable
	}
	return false
}

// Missing returns the names from required that c lacks, in order.
func (c Capabilities) Missing(required []string) []string {
	var out []string
	for _, name := range required {
		if !c.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Prober takes capability snapshots against bound paths. Every call to Probe
// re-reads the filesystem.
type Prober struct {
	Paths    config.Paths
	Env      config.Env
	LookPath func(file string) (string, error)
	// Access checks path against one of the access modes below. Defaults to
	// the platform access(2) probe.
	Access func(path string, mode AccessMode) error
}

// AccessMode is the kind of access a probe asks for.
type AccessMode int

const (
	AccessRead AccessMode = iota
	AccessWrite
	AccessExec
)

// NewProber creates a prober over the process environment.
func NewProber(paths config.Paths) *Prober {
	return &Prober{Paths: paths, Env: config.OSEnv(), LookPath: exec.LookPath, Access: platformAccess}
}

// Probe snapshots the capabilities for an evaluation.
func (p *Prober) Probe(trust domain.CWDTrust) Capabilities {
	if trust == "" {
		trust = domain.CWDTrusted
	}
	return Capabilities{
		CWDTrust:              trust,
		FSReadCommandsHome:    p.canRead(p.Paths.CommandsHome),
		FSWriteConfigRoot:     p.canWrite(p.Paths.ConfigRoot),
		FSWriteCommandsHome:   p.canWrite(p.Paths.CommandsHome),
		FSWriteWorkspacesHome: p.canWrite(p.Paths.WorkspacesHome),
		ExecAllowed:           p.execAllowed(),
		GitAvailable:          p.gitAvailable(),
	}
}

func (p *Prober) access(path string, mode AccessMode) bool {
	fn := p.Access
	if fn == nil {
		fn = platformAccess
	}
	return fn(path, mode) == nil
}

func (p *Prober) canRead(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	return p.access(dir, AccessRead)
}

// canWrite checks dir itself when it exists, else the nearest existing
// ancestor, since a writer would create the missing levels.
func (p *Prober) canWrite(dir string) bool {
	if dir == "" || !filepath.IsAbs(dir) {
		return false
	}
	cur := filepath.Clean(dir)
	for {
		info, err := os.Stat(cur)
		if err == nil {
			return info.IsDir() && p.access(cur, AccessWrite)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return false
		}
		cur = parent
	}
}

func (p *Prober) execAllowed() bool {
	if session.IsTruthyString(p.Env.Get(DisableExecEnv)) {
		return false
	}
	target := p.Paths.PythonCommand
	if target == "" {
		self, err := os.Executable()
		if err != nil {
			return false
		}
		target = self
	}
	info, err := os.Stat(target)
	if err != nil || info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return false
	}
	return p.access(target, AccessExec)
}

func (p *Prober) gitAvailable() bool {
	look := p.LookPath
	if look == nil {
		look = exec.LookPath
	}
	_, err := look("git")
	return err == nil
}
