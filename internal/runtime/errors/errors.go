package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired      = sterrors.New("quoteflow: service is required")
	ErrHandlerNameRequired  = sterrors.New("quoteflow: handler name is required")
	ErrConsumeTopicRequired = sterrors.New("quoteflow: consume topic is required")
	ErrDispatcherRequired   = sterrors.New("quoteflow: dispatcher is required")
	ErrPublisherRequired    = sterrors.New("quoteflow: publisher is required")
	ErrTopicRequired        = sterrors.New("quoteflow: topic is required")
	ErrConfigRequired       = sterrors.New("quoteflow: configuration is required")
	ErrLoggerRequired       = sterrors.New("quoteflow: logger is required")
	ErrStoreRequired        = sterrors.New("quoteflow: outcome store is required")
	ErrRegistrarClosed      = sterrors.New("quoteflow: registrar is closed")
	ErrOutcomeNotFound      = sterrors.New("quoteflow: outcome not found")
)

// Failure kinds. Each typed error below reports one of these sentinels through
// errors.Is so callers never need to switch on concrete types.
var (
	ErrValidation               = sterrors.New("quoteflow: validation failed")
	ErrUnknownSource            = sterrors.New("quoteflow: unknown source")
	ErrRemoteTransient          = sterrors.New("quoteflow: transient remote failure")
	ErrRemoteFatal              = sterrors.New("quoteflow: fatal remote failure")
	ErrUnrecognizedEnvelopeType = sterrors.New("quoteflow: unrecognized envelope type")
	ErrMalformedPayload         = sterrors.New("quoteflow: malformed envelope payload")
	ErrPersistence              = sterrors.New("quoteflow: persistence failed")
	ErrHook                     = sterrors.New("quoteflow: hook failed")
)

// ValidationError describes an intake field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "quoteflow: validation failed: " + e.Reason
	}
	return fmt.Sprintf("quoteflow: validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError returns a ValidationError for the given field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UnknownSourceError is returned when a source has no configured endpoint.
type UnknownSourceError struct {
	Source string
	Detail string
}

func (e *UnknownSourceError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("quoteflow: unknown source %q: %s", e.Source, e.Detail)
	}
	return fmt.Sprintf("quoteflow: unknown source %q", e.Source)
}

func (e *UnknownSourceError) Is(target error) bool {
	return target == ErrUnknownSource
}

// RemoteError is a classified failure of a remote provider call.
type RemoteError struct {
	Transient  bool
	StatusCode int
	Attempts   int
	Cause      error
}

func (e *RemoteError) Error() string {
	class := "fatal"
	if e.Transient {
		class = "transient"
	}
	msg := "quoteflow: " + class + " remote failure"
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempt(s)", msg, e.Attempts)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error {
	return e.Cause
}

func (e *RemoteError) Is(target error) bool {
	if e.Transient {
		return target == ErrRemoteTransient
	}
	return target == ErrRemoteFatal
}

// Transient wraps err as a retryable remote failure.
func Transient(statusCode int, err error) *RemoteError {
	return &RemoteError{Transient: true, StatusCode: statusCode, Cause: err}
}

// Fatal wraps err as a non-retryable remote failure.
func Fatal(statusCode int, err error) *RemoteError {
	return &RemoteError{StatusCode: statusCode, Cause: err}
}

// UnrecognizedEnvelopeTypeError is a protocol error: the envelope type is
// neither SUCCESS nor ERROR.
type UnrecognizedEnvelopeTypeError struct {
	Type string
}

func (e *UnrecognizedEnvelopeTypeError) Error() string {
	return fmt.Sprintf("quoteflow: unrecognized envelope type %q", e.Type)
}

func (e *UnrecognizedEnvelopeTypeError) Is(target error) bool {
	return target == ErrUnrecognizedEnvelopeType
}

// MalformedPayloadError reports a known envelope type whose payload cannot be
// decoded. It is a protocol error like UnrecognizedEnvelopeTypeError.
type MalformedPayloadError struct {
	Type  string
	Cause error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("quoteflow: malformed %s payload: %v", e.Type, e.Cause)
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Cause
}

func (e *MalformedPayloadError) Is(target error) bool {
	return target == ErrMalformedPayload
}

// PersistenceError wraps a failure of the outcome store.
type PersistenceError struct {
	Key   string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("quoteflow: persist outcome %s: %v", e.Key, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// HookError wraps a hook that returned an error or panicked.
type HookError struct {
	Hook  string
	Cause error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("quoteflow: %s hook: %v", e.Hook, e.Cause)
}

func (e *HookError) Unwrap() error {
	return e.Cause
}

func (e *HookError) Is(target error) bool {
	return target == ErrHook
}

// IsProtocolError reports whether err describes a broken envelope rather than
// a business failure.
func IsProtocolError(err error) bool {
	return sterrors.Is(err, ErrUnrecognizedEnvelopeType) || sterrors.Is(err, ErrMalformedPayload)
}

// ConfigValidationError wraps configuration problems detected at startup.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "quoteflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
