// Package errors implements the worker runtime's error taxonomy: a closed
// set of Kinds, a RuntimeError wrapping a Kind with a message and optional
// data, and the sentinel programmer-error conditions that never cross the
// wire.
package errors

import (
	sterrors "errors"
	"fmt"

	smithy "github.com/aws/smithy-go"
)

// Kind is the closed taxonomy of runtime error conditions.
type Kind string

const (
	NotFound       Kind = "NotFound"
	ValidationErr  Kind = "ValidationError"
	InvalidPayload Kind = "InvalidPayload"
	Forbidden      Kind = "Forbidden"
	Timeout        Kind = "Timeout"
	TaskTimeout    Kind = "TaskTimeout"
	TaskWorkerLost Kind = "TaskWorkerLost"
	StreamAborted  Kind = "StreamAborted"
	InvalidState   Kind = "InvalidState"
	ScopeMismatch  Kind = "ScopeMismatch"
	DuplicateName  Kind = "DuplicateName"
	Internal       Kind = "Internal"
)

// surfaced marks which Kinds are encoded back to the client. Kinds absent
// here are startup failures or programmer errors: logged, never encoded.
var surfaced = map[Kind]bool{
	NotFound:       true,
	ValidationErr:  true,
	InvalidPayload: true,
	Forbidden:      true,
	Timeout:        true,
	TaskTimeout:    true,
	TaskWorkerLost: true,
	StreamAborted:  true,
	Internal:       true,
}

// Surfaced reports whether errors of this Kind should be encoded to the client.
func Surfaced(k Kind) bool { return surfaced[k] }

// FieldError describes one schema-validation failure for ValidationError.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RuntimeError is the concrete error type carried through dispatch, task
// execution, and supervision. It satisfies smithy.APIError so the taxonomy
// is consumable through that ecosystem-standard contract.
type RuntimeError struct {
	Kind   Kind
	Msg    string
	Data   any
	Fields []FieldError
	cause  error
}

// New builds a RuntimeError of the given Kind.
func New(kind Kind, msg string) *RuntimeError {
	return &RuntimeError{Kind: kind, Msg: msg}
}

// Wrap builds a RuntimeError that preserves the original error for Unwrap.
func Wrap(kind Kind, msg string, cause error) *RuntimeError {
	return &RuntimeError{Kind: kind, Msg: msg, cause: cause}
}

// WithData attaches format-defined error data to the client wire error.
func (e *RuntimeError) WithData(data any) *RuntimeError {
	e.Data = data
	return e
}

// WithFields attaches per-field validation detail.
func (e *RuntimeError) WithFields(fields []FieldError) *RuntimeError {
	e.Fields = fields
	return e
}

func (e *RuntimeError) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *RuntimeError) Unwrap() error { return e.cause }

// ErrorCode implements smithy.APIError.
func (e *RuntimeError) ErrorCode() string { return string(e.Kind) }

// ErrorMessage implements smithy.APIError.
func (e *RuntimeError) ErrorMessage() string { return e.Error() }

// ErrorFault implements smithy.APIError. Validation/Forbidden/NotFound are
// client faults; everything else is a server fault.
func (e *RuntimeError) ErrorFault() smithy.ErrorFault {
	switch e.Kind {
	case NotFound, ValidationErr, InvalidPayload, Forbidden:
		return smithy.FaultClient
	default:
		return smithy.FaultServer
	}
}

var _ smithy.APIError = (*RuntimeError)(nil)

// As reports whether err (or something it wraps) is a *RuntimeError of kind.
func As(err error, kind Kind) (*RuntimeError, bool) {
	var re *RuntimeError
	if sterrors.As(err, &re) && re.Kind == kind {
		return re, true
	}
	return nil, false
}

// Classify maps an arbitrary handler error into a RuntimeError. Errors that
// are already a RuntimeError pass through unchanged; everything else becomes
// Internal with a sanitized message so no unclassified error detail leaks
// to the client.
func Classify(err error) *RuntimeError {
	if err == nil {
		return nil
	}
	var re *RuntimeError
	if sterrors.As(err, &re) {
		return re
	}
	return &RuntimeError{Kind: Internal, Msg: "internal error", cause: err}
}

// Programmer-error sentinels. Never surfaced to a client; logged at the call
// site or returned from Registry/Container setup so startup fails fast.
var (
	ErrContainerDisposed  = sterrors.New("neemata: container is disposed")
	ErrRegistryNotLoaded  = sterrors.New("neemata: registry has not been loaded")
	ErrNoTaskRunners      = sterrors.New("neemata: no task runners available")
	ErrSupervisorStopping = sterrors.New("neemata: supervisor is stopping")
)

// ConfigValidationError wraps configuration validation failures.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("neemata: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err, returning nil if err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
