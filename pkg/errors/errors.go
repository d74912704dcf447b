// Package errors provides structured error types for tzctl.
package errors

import (
	"fmt"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeConflict   ErrorCode = "CONFLICT"
	ErrCodeBackend    ErrorCode = "BACKEND_ERROR"
	ErrCodeAdapter    ErrorCode = "ADAPTER_ERROR"
	ErrCodeTimeout    ErrorCode = "TIMEOUT"
	ErrCodeParse      ErrorCode = "PARSE_ERROR"
	ErrCodeExpression ErrorCode = "EXPRESSION_ERROR"
	ErrCodeDocker     ErrorCode = "DOCKER_ERROR"
	ErrCodeContract   ErrorCode = "OUTPUT_CONTRACT_ERROR"
)

// Deployment precondition codes. These are stable: callers and scripts match
// on them, so the string values never change.
const (
	ErrCodeLockTimeout               ErrorCode = "LOCK_TIMEOUT"
	ErrCodeLockStale                 ErrorCode = "LOCK_STALE"
	ErrCodeProdPlanRequired          ErrorCode = "PROD_PLAN_REQUIRED"
	ErrCodeProdPlanStale             ErrorCode = "PROD_PLAN_STALE"
	ErrCodeReplanAfterForceUnlock    ErrorCode = "REPLAN_REQUIRED_AFTER_FORCE_UNLOCK"
	ErrCodeProdDriftConfirm          ErrorCode = "PROD_DRIFT_CONFIRM_REQUIRED"
	ErrCodeDestroyConfirmRequired    ErrorCode = "DESTROY_CONFIRMATION_REQUIRED"
	ErrCodeDestroyEnvMismatch        ErrorCode = "DESTROY_ENVIRONMENT_MISMATCH"
	ErrCodeDestroyPhraseInvalid      ErrorCode = "DESTROY_CONFIRMATION_PHRASE_INVALID"
	ErrCodeProdDestroySecondConfirm  ErrorCode = "PROD_DESTROY_SECOND_CONFIRM_REQUIRED"
	ErrCodeProdDestroyConfirmInvalid ErrorCode = "PROD_DESTROY_CONFIRMATION_INVALID"
)

// Error is the base error type for tzctl
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// ValidationError creates a validation error
func ValidationError(message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// NotFoundError creates a not found error
func NotFoundError(resourceType, name string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resourceType, name),
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"name":          name,
		},
	}
}

// ParseError creates a parse error
func ParseError(filePath string, err error) *Error {
	return &Error{
		Code:    ErrCodeParse,
		Message: fmt.Sprintf("failed to parse %s", filePath),
		Cause:   err,
		Details: map[string]interface{}{
			"file": filePath,
		},
	}
}

// ExpressionError creates an expression evaluation error
func ExpressionError(expression string, err error) *Error {
	return &Error{
		Code:    ErrCodeExpression,
		Message: fmt.Sprintf("failed to evaluate expression: %s", expression),
		Cause:   err,
		Details: map[string]interface{}{
			"expression": expression,
		},
	}
}

// BackendError creates a backend error
func BackendError(backend string, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeBackend,
		Message: fmt.Sprintf("backend %s failed during %s", backend, operation),
		Cause:   err,
		Details: map[string]interface{}{
			"backend":   backend,
			"operation": operation,
		},
	}
}

// AdapterError creates an error for an unexpected provisioning adapter failure
// (transport, crash). Adapter-reported deployment failures travel inside
// results, not through this type.
func AdapterError(driver string, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeAdapter,
		Message: fmt.Sprintf("adapter %s failed during %s", driver, operation),
		Cause:   err,
		Details: map[string]interface{}{
			"driver":    driver,
			"operation": operation,
		},
	}
}

// Precondition creates a deployment precondition error. The remediation hint
// tells the operator how to proceed and is rendered by the CLI.
func Precondition(code ErrorCode, message, remediation string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: map[string]interface{}{
			"remediation": remediation,
		},
	}
}

// Remediation returns the remediation hint carried by a precondition error,
// or an empty string.
func Remediation(err error) string {
	e, ok := err.(*Error)
	if !ok {
		return ""
	}
	if hint, ok := e.Details["remediation"].(string); ok {
		return hint
	}
	return ""
}

// Is checks if the error matches the given code
func Is(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}

// Code returns the code of a structured error, or an empty code.
func Code(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
