package reason

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Rogers-F/governance-engine/internal/domain"
)

// Deviation records a non-fatal departure from the requested configuration.
type Deviation struct {
	Type     string `json:"type"`
	Scope    string `json:"scope"`
	Impact   string `json:"impact"`
	Recovery string `json:"recovery"`
}

// Payload is the machine-readable explanation attached to every evaluation.
type Payload struct {
	Status          domain.Status `json:"status"`
	ReasonCode      Code          `json:"reason_code"`
	Surface         string        `json:"surface"`
	SignalsUsed     []string      `json:"signals_used"`
	RecoverySteps   []string      `json:"recovery_steps"`
	NextCommand     string        `json:"next_command"`
	MissingEvidence []string      `json:"missing_evidence"`
	Deviation       *Deviation    `json:"deviation"`
	Context         Context       `json:"context"`
}

// Spec is the input to Build. Empty Surface, RecoverySteps and NextCommand
// fall back to the catalog defaults for Code.
type Spec struct {
	Code            Code
	Surface         string
	SignalsUsed     []string
	RecoverySteps   []string
	NextCommand     string
	MissingEvidence []string
	Deviation       *Deviation
	Context         Context
}

var (
	ErrUnknownCode      = errors.New("unknown reason code")
	ErrContextMismatch  = errors.New("context kind does not match reason code")
	ErrRecoverySteps    = errors.New("recovery_steps must contain 1 to 3 entries")
	ErrMissingEvidence  = errors.New("missing_evidence is required for this reason code")
	ErrSchemaValidation = errors.New("payload failed schema validation")
)

const payloadSchemaURL = "https://governance-engine.local/schemas/reason-payload.json"

const payloadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["status", "reason_code", "surface", "signals_used", "recovery_steps",
               "next_command", "missing_evidence", "deviation", "context"],
  "properties": {
    "status": {"enum": ["ok", "warn", "blocked", "not_verified"]},
    "reason_code": {
      "type": "string",
      "pattern": "^(none|BLOCKED-[A-Z0-9-]+|WARN-[A-Z0-9-]+|NOT_VERIFIED-[A-Z0-9-]+)$"
    },
    "surface": {"type": "string", "minLength": 1},
    "signals_used": {"type": "array", "items": {"type": "string"}},
    "recovery_steps": {
      "type": "array", "minItems": 1, "maxItems": 3,
      "items": {"type": "string", "minLength": 1}
    },
    "next_command": {"type": "string", "pattern": "^/"},
    "missing_evidence": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "deviation": {
      "oneOf": [
        {"type": "null"},
        {
          "type": "object",
          "required": ["type", "scope", "impact", "recovery"],
          "properties": {
            "type": {"type": "string", "minLength": 1},
            "scope": {"type": "string", "minLength": 1},
            "impact": {"type": "string"},
            "recovery": {"type": "string"}
          }
        }
      ]
    },
    "context": {"type": "object"}
  }
}`

var compiledPayloadSchema = jsonschema.MustCompileString(payloadSchemaURL, payloadSchema)

// Build validates spec against the taxonomy contract and returns the payload.
func Build(spec Spec) (Payload, error) {
	entry, ok := catalog[spec.Code]
	if !ok {
		return Payload{}, fmt.Errorf("%w: %q", ErrUnknownCode, string(spec.Code))
	}
	kind, err := KindFor(spec.Code)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrUnknownCode, err)
	}

	ctx := spec.Context
	if ctx == nil && kind == KindEmpty {
		ctx = EmptyContext{}
	}
	if ctx == nil {
		return Payload{}, fmt.Errorf("%w: %s requires %s, got none", ErrContextMismatch, spec.Code, kind)
	}
	if ctx.Kind() != kind {
		return Payload{}, fmt.Errorf("%w: %s requires %s, got %s", ErrContextMismatch, spec.Code, kind, ctx.Kind())
	}

	recovery := spec.RecoverySteps
	if len(recovery) == 0 {
		recovery = entry.recovery
	}
	if len(recovery) < 1 || len(recovery) > 3 {
		return Payload{}, fmt.Errorf("%w: got %d", ErrRecoverySteps, len(recovery))
	}

	missing := spec.MissingEvidence
	if entry.requiresEvidence && len(missing) == 0 {
		return Payload{}, fmt.Errorf("%w: %s", ErrMissingEvidence, spec.Code)
	}

	p := Payload{
		Status:          spec.Code.Status(),
		ReasonCode:      spec.Code,
		Surface:         firstNonEmpty(spec.Surface, entry.surface),
		SignalsUsed:     nonNil(spec.SignalsUsed),
		RecoverySteps:   append([]string(nil), recovery...),
		NextCommand:     firstNonEmpty(spec.NextCommand, entry.nextCommand),
		MissingEvidence: nonNil(missing),
		Deviation:       spec.Deviation,
		Context:         ctx,
	}

	if err := validateSchema(p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// BuildOrSelfCheck returns Build's payload, or the engine self-check payload
// when the contract would be violated. It never fails.
func BuildOrSelfCheck(spec Spec) Payload {
	p, err := Build(spec)
	if err != nil {
		return SelfCheck(spec.Code, err)
	}
	return p
}

// SelfCheck builds the last-resort BLOCKED-ENGINE-SELFCHECK payload.
func SelfCheck(original Code, cause error) Payload {
	entry := catalog[BlockedEngineSelfCheck]
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return Payload{
		Status:          domain.StatusBlocked,
		ReasonCode:      BlockedEngineSelfCheck,
		Surface:         entry.surface,
		SignalsUsed:     []string{"reason_payload_builder"},
		RecoverySteps:   append([]string(nil), entry.recovery...),
		NextCommand:     entry.nextCommand,
		MissingEvidence: []string{},
		Context:         SelfCheckContext{OriginalCode: string(original), Error: msg},
	}
}

func validateSchema(p Payload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrSchemaValidation, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrSchemaValidation, err)
	}
	if err := compiledPayloadSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaValidation, err)
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string(nil), in...)
}
