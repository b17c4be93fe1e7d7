// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for the
// PRIMUS core. Policy outcomes (deny, approval required) are decisions,
// not errors; this package covers everything else.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies PRIMUS errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeTokenInvalid indicates a store access token was missing, already
	// consumed, or bound to a different partition or operation.
	CodeTokenInvalid ErrorCode = "TOKEN_INVALID"

	// CodePartitionNotFound indicates the addressed memory partition does
	// not exist.
	CodePartitionNotFound ErrorCode = "PARTITION_NOT_FOUND"

	// CodeTransitionRejected indicates the mode controller refused a state
	// change (e.g. sandbox entry while an approval is pending).
	CodeTransitionRejected ErrorCode = "TRANSITION_REJECTED"

	// CodeActorNotFound indicates an unknown actor identifier.
	CodeActorNotFound ErrorCode = "ACTOR_NOT_FOUND"

	// CodeApprovalNotFound indicates an unknown or already resolved
	// approval identifier.
	CodeApprovalNotFound ErrorCode = "APPROVAL_NOT_FOUND"

	// CodeEntryNotFound indicates an unknown journal entry identifier.
	CodeEntryNotFound ErrorCode = "ENTRY_NOT_FOUND"

	// CodePersonaNotFound indicates an unknown persona document identifier.
	CodePersonaNotFound ErrorCode = "PERSONA_NOT_FOUND"

	// CodeDiffNotFound indicates an unknown or already resolved persona
	// diff identifier.
	CodeDiffNotFound ErrorCode = "DIFF_NOT_FOUND"

	// CodeProtectedTrait indicates a persona change touched a trait that
	// no edit, approved or not, may alter.
	CodeProtectedTrait ErrorCode = "PROTECTED_TRAIT"

	// CodeStorage indicates a storage backend failure.
	CodeStorage ErrorCode = "STORAGE_ERROR"

	// CodeSeal indicates the encryption layer failed to seal or open bytes.
	CodeSeal ErrorCode = "SEAL_ERROR"

	// CodeConfig indicates invalid or unloadable configuration.
	CodeConfig ErrorCode = "CONFIG_ERROR"
)

// PrimusError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type PrimusError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int // For HTTP responses
}

// Error implements the error interface.
func (e *PrimusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *PrimusError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *PrimusError) MarshalJSON() ([]byte, error) {
	type Alias PrimusError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new PrimusError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *PrimusError {
	return &PrimusError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *PrimusError) WithContext(key string, value interface{}) *PrimusError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *PrimusError) WithAttribute(key, value string) *PrimusError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *PrimusError) WithRecoverable(recoverable bool) *PrimusError {
	e.Recoverable = recoverable
	return e
}

// AsPrimusError attempts to convert an error to a PrimusError.
// Returns the error as PrimusError if it is one, or wraps it otherwise.
func AsPrimusError(err error) *PrimusError {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*PrimusError); ok {
		return pe
	}
	// Wrap unknown error as internal
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether err is a PrimusError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	pe, ok := err.(*PrimusError)
	return ok && pe.Code == code
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *PrimusError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodePartitionNotFound, CodeActorNotFound, CodeApprovalNotFound,
		CodeEntryNotFound, CodePersonaNotFound, CodeDiffNotFound:
		return 404 // NOT_FOUND
	case CodeTokenInvalid:
		return 401 // UNAUTHENTICATED
	case CodeInvalidInput:
		return 400 // INVALID_ARGUMENT
	case CodeTransitionRejected:
		return 409 // CONFLICT
	case CodeProtectedTrait:
		return 403 // PERMISSION_DENIED
	default:
		return 500 // INTERNAL
	}
}
