// Package session provides read-only access to the externally owned
// SESSION_STATE document.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Rogers-F/governance-engine/internal/domain"
)

// RootKey is the wrapper key some writers place around the state map.
const RootKey = "SESSION_STATE"

// Document is a normalized, read-only view of the session state. The zero
// value is an empty document.
type Document struct {
	fields map[string]any
}

// FromMap normalizes m, unwrapping {"SESSION_STATE": {...}} when present.
func FromMap(m map[string]any) Document {
	if m == nil {
		return Document{}
	}
	if inner, ok := m[RootKey].(map[string]any); ok {
		return Document{fields: inner}
	}
	return Document{fields: m}
}

// Parse decodes a session document. Empty input yields an empty document.
func Parse(data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Document{}, domain.WrapEngineError(domain.ErrSessionInvalid, "decode", err)
	}
	return FromMap(m), nil
}

// Load reads and parses the document at path.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, domain.WrapEngineError(domain.ErrSessionNotFound, path, err)
		}
		return Document{}, fmt.Errorf("read session state: %w", err)
	}
	return Parse(data)
}

// Empty reports whether the document has no fields.
func (d Document) Empty() bool {
	return len(d.fields) == 0
}

// Raw returns a deep copy of the inner map.
func (d Document) Raw() map[string]any {
	out, _ := deepCopy(d.fields).(map[string]any)
	if out == nil {
		return map[string]any{}
	}
	return out
}

// Lookup resolves a dotted path such as "Scope.ExternalAPIs".
func (d Document) Lookup(path string) (any, bool) {
	var cur any = d.fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the trimmed string at path, or "".
func (d Document) String(path string) string {
	v, ok := d.Lookup(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// Bool returns true for a JSON true or a string such as "true"/"yes"/"1".
func (d Document) Bool(path string) bool {
	v, ok := d.Lookup(path)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return IsTruthyString(t)
	case float64:
		return t != 0
	default:
		return false
	}
}

// Present reports whether path holds a non-empty value.
func (d Document) Present(path string) bool {
	v, ok := d.Lookup(path)
	if !ok {
		return false
	}
	return NonEmpty(v)
}

// Slice returns the array at path, or nil.
func (d Document) Slice(path string) []any {
	v, ok := d.Lookup(path)
	if !ok {
		return nil
	}
	s, _ := v.([]any)
	return s
}

// Phase returns the persisted phase text.
func (d Document) Phase() string { return d.String("phase") }

// ActiveGate returns the persisted active gate.
func (d Document) ActiveGate() string { return d.String("active_gate") }

// NextGateCondition returns the persisted next gate condition text.
func (d Document) NextGateCondition() string { return d.String("next_gate_condition") }

// WorkspaceReady reports whether the workspace-ready gate was committed.
func (d Document) WorkspaceReady() bool { return d.Bool("workspace_ready_gate_committed") }

// RepoFingerprint returns the fingerprint recorded by the persistence collaborator.
func (d Document) RepoFingerprint() string { return d.String("repo_fingerprint") }

// TransitionEvidence reports whether phase transition evidence is recorded.
func (d Document) TransitionEvidence() bool { return d.Present("phase_transition_evidence") }

// ExternalAPIs returns the entries of Scope.ExternalAPIs.
func (d Document) ExternalAPIs() []any { return d.Slice("Scope.ExternalAPIs") }

// OpenAPIDetected reports whether AddonsEvidence.openapi signals an API.
// Accepts a bare boolean or an object with a truthy "detected", "required" or
// "status" field.
func (d Document) OpenAPIDetected() bool {
	v, ok := d.Lookup("AddonsEvidence.openapi")
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return IsTruthyString(t) || strings.EqualFold(t, "detected")
	case map[string]any:
		for _, key := range []string{"detected", "required"} {
			if b, ok := t[key].(bool); ok && b {
				return true
			}
		}
		if s, ok := t["status"].(string); ok {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "detected", "loaded", "required", "active":
				return true
			}
		}
		return false
	default:
		return false
	}
}

// BusinessRulesDecision returns the normalized business-rules discovery decision.
func (d Document) BusinessRulesDecision() string {
	if s := d.String("BusinessRules.Decision"); s != "" {
		return strings.ToLower(s)
	}
	return strings.ToLower(d.String("business_rules_decision"))
}

// BusinessRulesExecuted reports whether business-rules discovery actually ran.
func (d Document) BusinessRulesExecuted() bool {
	return d.Bool("BusinessRules.Executed") || d.BusinessRulesDecision() == "executed"
}

// IsTruthyString reports whether s spells a true value.
func IsTruthyString(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// NonEmpty reports whether a decoded JSON value carries information.
func NonEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			out[k] = deepCopy(elem)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = deepCopy(elem)
		}
		return out
	default:
		return v
	}
}
