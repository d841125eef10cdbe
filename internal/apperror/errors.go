// Package apperror provides the error type shared by the media server's
// handlers, services and storage. An AppError carries the HTTP status and
// the short message a client may see; the central Echo error handler turns
// it into a response.
//
// Filesystem errors carry absolute paths. They go in Internal, never in
// Message.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable error types.
const (
	TypeBadRequest   = "bad_request"
	TypeTooLarge     = "too_large"
	TypeStorageFault = "storage_fault"
	TypeInternal     = "internal_error"
)

// AppError is a client-presentable failure.
type AppError struct {
	// Code is the HTTP status code.
	Code int `json:"-"`

	// Type is one of the Type* constants.
	Type string `json:"type"`

	// Message is safe to send to the client verbatim.
	Message string `json:"message"`

	// Internal is the cause, logged but never sent.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes Internal to errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// NewBadRequest is a 400 for an upload the server cannot use, such as one
// without files.
func NewBadRequest(message string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Type: TypeBadRequest, Message: message}
}

// NewTooLarge is a 413 for a body over MAX_UPLOAD_SIZE.
func NewTooLarge(message string) *AppError {
	return &AppError{Code: http.StatusRequestEntityTooLarge, Type: TypeTooLarge, Message: message}
}

// NewStorageFault is a 500 for an unreadable or unwritable storage
// directory. The caller picks the message because the upload and listing
// endpoints each promise a specific failure string.
func NewStorageFault(message string, err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeStorageFault,
		Message:  message,
		Internal: err,
	}
}

// NewInternal is a 500 with a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeInternal,
		Message:  "Something went wrong on our end. Please try again.",
		Internal: err,
	}
}

// HasType reports whether err is or wraps an AppError of the given type.
func HasType(err error, typ string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == typ
}

// IsStorageFault reports whether err is or wraps a storage fault.
func IsStorageFault(err error) bool {
	return HasType(err, TypeStorageFault)
}

// SafeMessage returns the message of the outermost AppError in err, or a
// generic one so paths and syscall names never reach the client.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the status of the outermost AppError in err, or 500.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
