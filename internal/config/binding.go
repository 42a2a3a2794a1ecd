package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Rogers-F/governance-engine/internal/domain"
)

// BindingFileName is the conventional name of the path binding evidence file.
const BindingFileName = "governance.paths.json"

// Paths are the bound filesystem locations every component works against.
// They are resolved once at process start and passed explicitly.
type Paths struct {
	ConfigRoot     string `json:"configRoot"`
	CommandsHome   string `json:"commandsHome"`
	WorkspacesHome string `json:"workspacesHome"`
	PythonCommand  string `json:"pythonCommand"`
}

type bindingFile struct {
	Paths *Paths `json:"paths"`
}

// LoadBinding reads a governance.paths.json file. Every path must be present
// and absolute; anything else is a hard failure.
func LoadBinding(path string) (Paths, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Paths{}, domain.WrapEngineError(domain.ErrBindingMissing, path, err)
		}
		return Paths{}, fmt.Errorf("read binding file: %w", err)
	}
	var bf bindingFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return Paths{}, domain.WrapEngineError(domain.ErrBindingInvalid, "decode "+path, err)
	}
	if bf.Paths == nil {
		return Paths{}, domain.WrapEngineError(domain.ErrBindingInvalid, path+": missing \"paths\" object", nil)
	}
	if err := bf.Paths.Validate(); err != nil {
		return Paths{}, err
	}
	return *bf.Paths, nil
}

// Validate reports every missing or relative path.
func (p Paths) Validate() error {
	var problems []string
	for _, f := range []struct{ name, value string }{
		{"configRoot", p.ConfigRoot},
		{"commandsHome", p.CommandsHome},
		{"workspacesHome", p.WorkspacesHome},
		{"pythonCommand", p.PythonCommand},
	} {
		switch {
		case f.value == "":
			problems = append(problems, f.name+" is required")
		case !filepath.IsAbs(f.value):
			problems = append(problems, fmt.Sprintf("%s %q is not absolute", f.name, f.value))
		}
	}
	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrBindingInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrBindingInvalid.Message, problems),
		}
	}
	return nil
}

// ProfilesHome is where stack profiles live under the commands home.
func (p Paths) ProfilesHome() string {
	return filepath.Join(p.CommandsHome, "profiles")
}

// RepoHome is the per-repository workspace directory.
func (p Paths) RepoHome(fingerprint string) string {
	return filepath.Join(p.WorkspacesHome, fingerprint)
}
