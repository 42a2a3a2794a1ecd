package host

import (
	"fmt"
	"strings"

	"github.com/Rogers-F/governance-engine/internal/config"
	"github.com/Rogers-F/governance-engine/internal/reason"
	"github.com/Rogers-F/governance-engine/internal/session"
)

// Mode is the operating mode an evaluation runs under.
type Mode string

const (
	ModeUser         Mode = "user"
	ModeSystem       Mode = "system"
	ModePipeline     Mode = "pipeline"
	ModeAgentsStrict Mode = "agents_strict"
)

// modeRank orders the comparable modes. agents_strict is deliberately absent.
var modeRank = map[Mode]int{
	ModeUser:     0,
	ModeSystem:   1,
	ModePipeline: 2,
}

// ParseMode accepts a mode name case-insensitively.
func ParseMode(s string) (Mode, bool) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeUser, ModeSystem, ModePipeline, ModeAgentsStrict:
		return m, true
	}
	return "", false
}

// Satisfies reports whether m meets a minimum mode. agents_strict only
// satisfies itself.
func (m Mode) Satisfies(floor Mode) bool {
	if m == floor {
		return true
	}
	rm, ok := modeRank[m]
	if !ok {
		return false
	}
	rmin, ok := modeRank[floor]
	if !ok {
		return false
	}
	return rm >= rmin
}

// RequiredCapabilities lists what a mode needs to run undegraded.
func RequiredCapabilities(m Mode) []string {
	switch m {
	case ModeSystem, ModeAgentsStrict:
		return []string{CapExecAllowed, CapFSReadCommandsHome, CapFSWriteWorkspacesHome}
	case ModePipeline:
		return []string{CapExecAllowed, CapFSReadCommandsHome, CapFSWriteWorkspacesHome, CapFSWriteCommandsHome, CapGitAvailable}
	}
	return nil
}

// Adapter names the host integration invoking the engine.
type Adapter string

const (
	AdapterOpenCode Adapter = "opencode"
	AdapterCI       Adapter = "ci"
	AdapterDesktop  Adapter = "desktop"
)

// DefaultMode is the mode an adapter runs in when nothing else decides.
func (a Adapter) DefaultMode() Mode {
	switch a {
	case AdapterCI:
		return ModePipeline
	case AdapterDesktop:
		return ModeSystem
	default:
		return ModeUser
	}
}

// CIEnv signals a CI runner when set to any truthy value.
const CIEnv = "CI"

// Mode resolution sources.
const (
	ModeSourceRequested      = "requested"
	ModeSourceCISignal       = "ci_signal"
	ModeSourceAdapterDefault = "adapter_default"
)

// ModeResolution is the outcome of ResolveEffectiveMode.
type ModeResolution struct {
	Requested  Mode              `json:"requested_mode,omitempty"`
	Candidate  Mode              `json:"candidate_mode"`
	Effective  Mode              `json:"effective_mode"`
	Source     string            `json:"source"`
	Downgraded bool              `json:"mode_downgraded"`
	Missing    []string          `json:"missing_capabilities,omitempty"`
	Deviation  *reason.Deviation `json:"deviation,omitempty"`
}

// ResolveEffectiveMode picks the requested mode when valid, else pipeline on a
// CI signal, else the adapter default. A mode whose capabilities are not all
// present is downgraded to user; downgrade is a warning, never fatal.
func ResolveEffectiveMode(requested string, adapter Adapter, env config.Env, caps Capabilities) ModeResolution {
	res := ModeResolution{}
	if m, ok := ParseMode(requested); ok {
		res.Requested = m
		res.Candidate, res.Source = m, ModeSourceRequested
	} else if session.IsTruthyString(env.Get(CIEnv)) {
		res.Candidate, res.Source = ModePipeline, ModeSourceCISignal
	} else {
		res.Candidate, res.Source = adapter.DefaultMode(), ModeSourceAdapterDefault
	}

	res.Effective = res.Candidate
	if res.Candidate == ModeUser {
		return res
	}

	missing := caps.Missing(RequiredCapabilities(res.Candidate))
	if len(missing) == 0 {
		return res
	}

	res.Effective = ModeUser
	res.Downgraded = true
	res.Missing = missing
	res.Deviation = &reason.Deviation{
		Type:     "mode_downgrade",
		Scope:    fmt.Sprintf("%s->%s", res.Candidate, ModeUser),
		Impact:   fmt.Sprintf("running with %s privileges; missing %s", ModeUser, strings.Join(missing, ", ")),
		Recovery: fmt.Sprintf("grant %s and re-run in %s mode", strings.Join(missing, ", "), res.Candidate),
	}
	return res
}
