// Package errors provides standardized error types for the Turnstile gateway.
package errors

import (
	"errors"
	"fmt"
)

// Error codes surfaced to the calling agent.
const (
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeNotFound         = "NOT_FOUND"
	CodeExecutionFailed  = "EXECUTION_FAILED"
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// GateError represents a gateway error with code, message, and optional details.
type GateError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *GateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *GateError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code.
func (e *GateError) Is(target error) bool {
	t, ok := target.(*GateError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail adds a single detail to the error.
func (e *GateError) WithDetail(key string, value interface{}) *GateError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common errors
var (
	ErrEmptyStatement   = &GateError{Code: CodeInvalidArgument, Message: "SQL statement is empty"}
	ErrTableNotFound    = &GateError{Code: CodeNotFound, Message: "table not found"}
	ErrDatabaseNotFound = &GateError{Code: CodeNotFound, Message: "database not found"}
	ErrPoolClosed       = &GateError{Code: CodeConnectionFailed, Message: "connection pool is closed"}
	ErrQueryTimeout     = &GateError{Code: CodeDeadlineExceeded, Message: "statement execution timeout"}
)

// New creates a new GateError with the given code and message.
func New(code, message string) *GateError {
	return &GateError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new GateError with a formatted message.
func Newf(code, format string, args ...interface{}) *GateError {
	return &GateError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a GateError.
func Wrap(err error, code, message string) *GateError {
	if err == nil {
		return nil
	}
	return &GateError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *GateError {
	if err == nil {
		return nil
	}
	return &GateError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsInvalidArgument checks if an error carries the invalid-argument code.
func IsInvalidArgument(err error) bool {
	return hasCode(err, CodeInvalidArgument)
}

// IsPermissionDenied checks if an error carries the permission-denied code.
func IsPermissionDenied(err error) bool {
	return hasCode(err, CodePermissionDenied)
}

// IsNotFound checks if an error carries the not-found code.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsTimeout checks if an error carries the deadline-exceeded code.
func IsTimeout(err error) bool {
	return hasCode(err, CodeDeadlineExceeded)
}

func hasCode(err error, code string) bool {
	var gateErr *GateError
	if errors.As(err, &gateErr) {
		return gateErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var gateErr *GateError
	if errors.As(err, &gateErr) {
		return gateErr.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var gateErr *GateError
	if errors.As(err, &gateErr) {
		return gateErr.Message
	}
	return err.Error()
}
