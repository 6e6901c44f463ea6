// Package errors provides structured error handling for Petrel.
//
// Every failure that crosses the DataSource/DataSourceProvider boundary is a
// *Error carrying a classified kind and a message, so call sites can branch
// on the kind without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeNotFound represents lookup misses (e.g. unknown connector name)
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeConnection represents backend connection/resource-acquisition errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeData represents read/decode errors raised mid-stream
	ErrorTypeData ErrorType = "data"
	// ErrorTypeCapability represents operations a backend does not support
	ErrorTypeCapability ErrorType = "capability"
	// ErrorTypeMalformedRange represents scan ranges a backend cannot interpret
	ErrorTypeMalformedRange ErrorType = "malformed_range"
	// ErrorTypeCancelled represents cooperative cancellation
	ErrorTypeCancelled ErrorType = "cancelled"
	// ErrorTypeStreamEpoch represents recoverable stream-epoch failures
	ErrorTypeStreamEpoch ErrorType = "stream_epoch"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// GetType returns the error type of err, or ErrorTypeInternal when err is not
// a structured error.
func GetType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// IsType reports whether err carries the given error type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errType
	}
	return false
}

// IsRetryable returns true if the error is worth retrying by a caller that
// owns a retry budget. This layer itself never retries.
func IsRetryable(err error) bool {
	switch GetType(err) {
	case ErrorTypeConnection, ErrorTypeTimeout, ErrorTypeStreamEpoch:
		return true
	default:
		return false
	}
}
