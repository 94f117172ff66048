package errors

import (
	"errors"
	"fmt"
)

// Error codes for programmatic handling.
const (
	CodeConfiguration      = "CONFIGURATION_ERROR"
	CodeValidation         = "VALIDATION_ERROR"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
)

// Sentinels for errors.Is. Matching is by code, so any MemError carrying the
// same code satisfies errors.Is(err, ErrPermissionDenied) and friends.
var (
	ErrConfiguration      = New(CodeConfiguration, "configuration error")
	ErrValidation         = New(CodeValidation, "validation error")
	ErrPermissionDenied   = New(CodePermissionDenied, "permission denied")
	ErrStorageUnavailable = New(CodeStorageUnavailable, "storage unavailable")
)

// MemError is a structured error with a code and actionable suggestion.
type MemError struct {
	Code       string // machine-readable code (e.g. PERMISSION_DENIED)
	Message    string // human-readable description
	Scope      string // scope involved, if any
	Suggestion string // actionable fix
	Err        error  // wrapped underlying error
}

// Error implements the error interface.
func (e *MemError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is / errors.As.
func (e *MemError) Unwrap() error {
	return e.Err
}

// New creates a MemError with the given code and message.
func New(code, message string) *MemError {
	return &MemError{Code: code, Message: message}
}

// Wrap creates a MemError wrapping an existing error.
func Wrap(code, message string, err error) *MemError {
	return &MemError{Code: code, Message: message, Err: err}
}

// WithSuggestion returns the error with the suggestion set.
func (e *MemError) WithSuggestion(suggestion string) *MemError {
	e.Suggestion = suggestion
	return e
}

// WithScope returns the error with the scope set.
func (e *MemError) WithScope(scope string) *MemError {
	e.Scope = scope
	return e
}

// Is checks whether target matches this error's code.
func (e *MemError) Is(target error) bool {
	var me *MemError
	if errors.As(target, &me) {
		return e.Code == me.Code
	}
	return false
}

// Configuration reports a reference to an unknown or misconfigured scope.
func Configuration(format string, args ...any) *MemError {
	return New(CodeConfiguration, fmt.Sprintf(format, args...))
}

// Validation reports a missing or invalid caller-supplied field.
func Validation(format string, args ...any) *MemError {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

// PermissionDenied reports an access-control violation on scope.
func PermissionDenied(scope, agent, op string) *MemError {
	return New(CodePermissionDenied,
		fmt.Sprintf("agent %q may not %s scope %q", agent, op, scope)).WithScope(scope)
}

// StorageUnavailable wraps a driver failure.
func StorageUnavailable(store string, err error) *MemError {
	return Wrap(CodeStorageUnavailable, fmt.Sprintf("store %q unavailable", store), err)
}

// AsCode extracts the MemError code from an error, or "" if not a MemError.
func AsCode(err error) string {
	var me *MemError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// Suggestion extracts the suggestion from an error, or "" if not a MemError.
func Suggestion(err error) string {
	var me *MemError
	if errors.As(err, &me) {
		return me.Suggestion
	}
	return ""
}

// IsTransient reports whether a caller may retry later. Only storage
// failures qualify; configuration, validation and permission errors are bugs.
func IsTransient(err error) bool {
	return AsCode(err) == CodeStorageUnavailable
}
