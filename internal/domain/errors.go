package domain

import (
	"errors"
	"fmt"
)

// EngineError is the unified error type for the engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code      int
	Message   string
	Retryable bool
	cause     error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *EngineError) Unwrap() error {
	return e.cause
}

// Is matches engine errors by code so wrapped copies compare equal to their sentinel.
func (e *EngineError) Is(target error) bool {
	var other *EngineError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(base *EngineError, msg string, cause error) *EngineError {
	text := fmt.Sprintf("%s: %s", base.Message, msg)
	if cause != nil {
		text = fmt.Sprintf("%s: %v", text, cause)
	}
	return &EngineError{
		Code:      base.Code,
		Message:   text,
		Retryable: base.Retryable,
		cause:     cause,
	}
}

// IsRetryable reports whether err carries an EngineError marked retryable.
func IsRetryable(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// ---- Config / binding errors (-32010 to -32029) ----

var (
	ErrConfigInvalid  = &EngineError{Code: -32010, Message: "invalid configuration"}
	ErrBindingMissing = &EngineError{Code: -32011, Message: "binding evidence file not found"}
	ErrBindingInvalid = &EngineError{Code: -32012, Message: "invalid binding evidence"}
)

// ---- Session state errors (-32030 to -32049) ----

var (
	ErrSessionNotFound = &EngineError{Code: -32030, Message: "session state document not found"}
	ErrSessionInvalid  = &EngineError{Code: -32031, Message: "session state document is not valid JSON"}
)

// ---- Workspace lock / atomic write errors (-32050 to -32079) ----

var (
	ErrLockTimeout    = &EngineError{Code: -32050, Message: "workspace lock acquisition timed out", Retryable: true}
	ErrLockNotHeld    = &EngineError{Code: -32051, Message: "workspace lock is not held"}
	ErrLockIO         = &EngineError{Code: -32052, Message: "workspace lock I/O failed"}
	ErrAtomicWrite    = &EngineError{Code: -32053, Message: "atomic write failed"}
	ErrFingerprintBad = &EngineError{Code: -32054, Message: "invalid repo fingerprint"}
)

// ---- Persistence collaborator errors (-32080 to -32099) ----

var (
	ErrPersistDenied    = &EngineError{Code: -32080, Message: "persistence denied by policy"}
	ErrRepoNotResolved  = &EngineError{Code: -32081, Message: "repository identity is not resolved"}
	ErrArtifactTooLarge = &EngineError{Code: -32082, Message: "artifact exceeds size limit"}
)

// ---- Store errors (-32130 to -32159) ----

var (
	ErrStoreInit  = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite = &EngineError{Code: -32132, Message: "store write failed"}
	ErrNotFound   = &EngineError{Code: -32133, Message: "record not found"}
)
