// Package apperr defines the application error taxonomy shared by the job
// queue, provider adapters, and the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for clients and for dispatch bookkeeping.
type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeExternalService Code = "EXTERNAL_SERVICE_ERROR"
	CodeInternal        Code = "INTERNAL_ERROR"
)

// Error is an operational error carrying a classification code and the
// HTTP status it maps to at the boundary.
type Error struct {
	Code    Code
	Status  int
	Message string

	// Service names the remote system for external-service errors.
	Service string
}

func (e *Error) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s: %s", e.Service, e.Message)
	}
	return e.Message
}

// Validation reports a malformed request. Validation errors are returned
// to the submitter synchronously and never reach the queue.
func Validation(format string, args ...any) *Error {
	return &Error{
		Code:    CodeValidation,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound reports an unknown job or record id.
func NotFound(resource, id string) *Error {
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s (%s) not found", resource, id)
	}
	return &Error{
		Code:    CodeNotFound,
		Status:  http.StatusNotFound,
		Message: msg,
	}
}

// ExternalService wraps a failure reported by a remote provider. The
// provider's own message is preserved and never treated as a local bug.
func ExternalService(service, message string) *Error {
	return &Error{
		Code:    CodeExternalService,
		Status:  http.StatusBadGateway,
		Message: message,
		Service: service,
	}
}

// Internal reports a programming error, such as an unregistered job type.
func Internal(format string, args ...any) *Error {
	return &Error{
		Code:    CodeInternal,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the classification of err, or CodeInternal for errors
// raised outside the taxonomy.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// HTTPStatus maps err to a response status for the HTTP boundary.
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err carries the given classification.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
