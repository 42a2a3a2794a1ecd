package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Rogers-F/governance-engine/internal/domain"
	"github.com/Rogers-F/governance-engine/internal/guard"
	"github.com/Rogers-F/governance-engine/internal/host"
	"github.com/Rogers-F/governance-engine/internal/repo"
	"github.com/Rogers-F/governance-engine/internal/workspace"
)

// MaxArtifactBytes bounds one encoded artifact.
const MaxArtifactBytes = 1 << 20

const memoryFileVersion = 1

// Request is one artifact write.
type Request struct {
	Kind        domain.ArtifactKind
	RepoContext repo.Context
	// Phase and Mode are the routed phase and effective mode of the
	// evaluation that approved the write.
	Phase                 string
	Mode                  host.Mode
	BusinessRulesExecuted bool
	MemoryScope           string
	GateApproved          bool
	Confirmation          string
	// Content is a string or []byte for markdown artifacts. YAML artifacts
	// also accept any value yaml.v3 can marshal.
	Content any
}

// Result describes a completed write.
type Result struct {
	Path     string                    `json:"path"`
	Bytes    int                       `json:"bytes"`
	Decision guard.PersistenceDecision `json:"decision"`
}

// ArtifactWriter persists workspace artifacts after the persistence policy
// allows them.
type ArtifactWriter struct {
	base
}

// NewArtifactWriter validates opts and creates a writer.
func NewArtifactWriter(opts Options) (*ArtifactWriter, error) {
	b, err := newBase(opts)
	if err != nil {
		return nil, err
	}
	return &ArtifactWriter{base: b}, nil
}

// Persist authorizes req and writes the artifact. A denial returns
// ErrPersistDenied along with the decision that caused it.
func (w *ArtifactWriter) Persist(ctx context.Context, req Request) (Result, error) {
	decision := guard.AuthorizePersistence(guard.PersistenceRequest{
		Kind:                  req.Kind,
		Phase:                 req.Phase,
		Mode:                  req.Mode,
		BusinessRulesExecuted: req.BusinessRulesExecuted,
		MemoryScope:           req.MemoryScope,
		GateApproved:          req.GateApproved,
		Confirmation:          req.Confirmation,
	})
	res := Result{Decision: decision}
	if !decision.Allowed {
		w.opts.Logger.Info("artifact persistence denied",
			zap.String("kind", string(req.Kind)),
			zap.String("policy_reason_code", string(decision.ReasonCode)),
			zap.String("phase", req.Phase),
		)
		return res, domain.WrapEngineError(domain.ErrPersistDenied, fmt.Sprintf("%s: %s", decision.ReasonCode, decision.Reason), nil)
	}

	name, ok := domain.ArtifactFiles[req.Kind]
	if !ok {
		return res, domain.WrapEngineError(domain.ErrPersistDenied, fmt.Sprintf("no file for artifact kind %q", req.Kind), nil)
	}

	err := w.locked(ctx, req.RepoContext, func(dir string) error {
		path := filepath.Join(dir, name)
		var data []byte
		var err error
		if req.Kind == domain.ArtifactWorkspaceMemory {
			data, err = w.appendMemory(path, req)
		} else {
			data, err = encodeArtifact(name, req.Content)
		}
		if err != nil {
			return err
		}
		if len(data) > MaxArtifactBytes {
			return domain.WrapEngineError(domain.ErrArtifactTooLarge, fmt.Sprintf("%s is %d bytes", name, len(data)), nil)
		}
		if err := workspace.WriteFileAtomic(ctx, path, data, w.opts.Write); err != nil {
			return err
		}
		res.Path, res.Bytes = path, len(data)
		return nil
	})
	if err != nil {
		return res, err
	}

	w.opts.Logger.Info("artifact persisted",
		zap.String("kind", string(req.Kind)),
		zap.String("repo_fingerprint", req.RepoContext.Fingerprint),
		zap.String("path", res.Path),
		zap.Int("bytes", res.Bytes),
	)
	return res, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// encodeArtifact renders content for the artifact file. Text handed to a YAML
// artifact must already parse as YAML.
func encodeArtifact(name string, content any) ([]byte, error) {
	var text []byte
	switch c := content.(type) {
	case nil:
		return nil, fmt.Errorf("artifact %s: content is empty", name)
	case string:
		text = []byte(c)
	case []byte:
		text = c
	default:
		if !isYAML(name) {
			return nil, fmt.Errorf("artifact %s: content must be text, got %T", name, content)
		}
		data, err := yaml.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: encode yaml: %w", name, err)
		}
		return data, nil
	}

	if isYAML(name) {
		var probe any
		if err := yaml.Unmarshal(text, &probe); err != nil {
			return nil, fmt.Errorf("artifact %s: content is not valid yaml: %w", name, err)
		}
	}
	return text, nil
}

// memoryFile is the on-disk shape of workspace memory. Entries only grow.
type memoryFile struct {
	Version         int           `yaml:"version"`
	RepoFingerprint string        `yaml:"repo_fingerprint"`
	Entries         []memoryEntry `yaml:"entries"`
}

type memoryEntry struct {
	Scope      string `yaml:"scope"`
	Phase      string `yaml:"phase"`
	RecordedAt string `yaml:"recorded_at"`
	Content    any    `yaml:"content"`
}

// appendMemory adds one entry to the workspace memory file at path.
func (w *ArtifactWriter) appendMemory(path string, req Request) ([]byte, error) {
	mf := memoryFile{Version: memoryFileVersion, RepoFingerprint: req.RepoContext.Fingerprint}
	existing, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, domain.WrapEngineError(domain.ErrLockIO, path, err)
	default:
		if err := yaml.Unmarshal(existing, &mf); err != nil {
			return nil, fmt.Errorf("workspace memory %s: %w", path, err)
		}
		if mf.Version == 0 {
			mf.Version = memoryFileVersion
		}
		if mf.RepoFingerprint == "" {
			mf.RepoFingerprint = req.RepoContext.Fingerprint
		}
	}

	content := req.Content
	switch c := content.(type) {
	case nil:
		return nil, fmt.Errorf("workspace memory entry is empty")
	case []byte:
		content = string(c)
	}

	scope := guard.MemoryScopeDecision
	if strings.EqualFold(strings.TrimSpace(req.MemoryScope), guard.MemoryScopeObservation) {
		scope = guard.MemoryScopeObservation
	}
	mf.Entries = append(mf.Entries, memoryEntry{
		Scope:      scope,
		Phase:      req.Phase,
		RecordedAt: w.opts.Now().UTC().Format(time.RFC3339),
		Content:    content,
	})

	data, err := yaml.Marshal(&mf)
	if err != nil {
		return nil, fmt.Errorf("workspace memory %s: encode: %w", path, err)
	}
	return data, nil
}
