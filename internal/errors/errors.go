// Package errors provides standardized error handling for the synthesis service.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code for the synthesis service.
type ErrorCode string

const (
	// Validation errors: caller-supplied data violates a precondition.
	// Never retried automatically.
	SYN_INVALID_INPUT ErrorCode = "SYN_INVALID_INPUT" // Precondition on caller input failed
	SYN_VALIDATION    ErrorCode = "SYN_VALIDATION"    // General request validation error
	SYN_SCHEMA_REJECT ErrorCode = "SYN_SCHEMA_REJECT" // Manifest schema validation failed
	SYN_MEDIA_SIZE    ErrorCode = "SYN_MEDIA_SIZE"    // Media size limit exceeded
	SYN_MEDIA_TYPE    ErrorCode = "SYN_MEDIA_TYPE"    // Media type not allowed

	// Transport/backend failures: surfaced to the caller, who may retry the
	// same operation since state was not advanced on failure.
	SYN_UPLOAD_FAILED           ErrorCode = "SYN_UPLOAD_FAILED"           // Session upload not acknowledged
	SYN_GENERATION_START_FAILED ErrorCode = "SYN_GENERATION_START_FAILED" // Generation start not acknowledged
	SYN_FETCH_FAILED            ErrorCode = "SYN_FETCH_FAILED"            // One catalog listing fetch failed
	SYN_CATALOG_FETCH_FAILED    ErrorCode = "SYN_CATALOG_FETCH_FAILED"    // Aggregate refresh failure, snapshot untouched
	SYN_CHANNEL_INTERRUPTED     ErrorCode = "SYN_CHANNEL_INTERRUPTED"     // Progress transport broke before a terminal event

	// Resource errors
	SYN_NOT_FOUND ErrorCode = "SYN_NOT_FOUND" // Referenced identity key absent
	SYN_CONFLICT  ErrorCode = "SYN_CONFLICT"  // Identity key already exists

	// Server errors
	SYN_INTERNAL    ErrorCode = "SYN_INTERNAL"    // Internal server error
	SYN_UNAVAILABLE ErrorCode = "SYN_UNAVAILABLE" // Service unavailable
)

// Error represents a standardized error response.
type Error struct {
	Code          ErrorCode   `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlationId"`
	Details       interface{} `json:"details,omitempty"`
	HTTPStatus    int         `json:"-"`
	cause         error
}

// New creates a new Error with the specified code and message.
func New(code ErrorCode, message string, correlationID string) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// NewWithDetails creates a new Error with the specified code, message, and details.
func NewWithDetails(code ErrorCode, message string, correlationID string, details interface{}) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		Details:       details,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// Wrap creates a new Error that records err as its cause. The cause is
// reachable through errors.Unwrap for callers that need the underlying
// transport failure.
func Wrap(code ErrorCode, message string, err error) *Error {
	e := New(code, message, "")
	e.cause = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf extracts the error code from err, or empty string when err does not
// carry one.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// httpStatusCodeForCode maps error codes to HTTP status codes.
func httpStatusCodeForCode(code ErrorCode) int {
	switch code {
	case SYN_INVALID_INPUT, SYN_VALIDATION, SYN_SCHEMA_REJECT, SYN_MEDIA_SIZE, SYN_MEDIA_TYPE:
		return http.StatusBadRequest
	case SYN_NOT_FOUND:
		return http.StatusNotFound
	case SYN_CONFLICT:
		return http.StatusConflict
	case SYN_UPLOAD_FAILED, SYN_GENERATION_START_FAILED, SYN_FETCH_FAILED, SYN_CATALOG_FETCH_FAILED:
		return http.StatusBadGateway
	case SYN_CHANNEL_INTERRUPTED, SYN_UNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
