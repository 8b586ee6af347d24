// Package apperror defines the typed errors returned by the service layer and
// rendered by the HTTP handlers.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes exposed to clients in the error envelope.
const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeAuthFailed         = "AUTH_FAILED"
	CodeNotRegistered      = "NOT_REGISTERED"
	CodeAlreadyRegistered  = "ALREADY_REGISTERED"
	CodeEmailNotRegistered = "EMAIL_NOT_REGISTERED"
	CodeUserNotRegistered  = "USER_NOT_REGISTERED"
	CodeNotHost            = "NOT_HOST"
	CodeNotAMember         = "NOT_A_MEMBER"
	CodeNotInvited         = "NOT_INVITED"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeSessionGone        = "SESSION_GONE"
	CodeMembersNotReady    = "MEMBERS_NOT_READY"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is a client-facing failure. Err carries the underlying cause for logs
// and is never rendered.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code so callers can compare against the
// package-level constructors.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

func newError(status int, code, message string, err error) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

// Validation reports a malformed request.
func Validation(message string) *Error {
	return newError(http.StatusBadRequest, CodeValidationFailed, message, nil)
}

// Unauthorized reports a failed identity verification. diagnostic is the
// verifier's reason code and is kept for logs.
func Unauthorized(diagnostic string, err error) *Error {
	if err == nil && diagnostic != "" {
		err = errors.New(diagnostic)
	} else if diagnostic != "" {
		err = fmt.Errorf("%s: %w", diagnostic, err)
	}
	return newError(http.StatusUnauthorized, CodeAuthFailed, "Authentication failed!", err)
}

// Forbidden reports a failed authorization precondition.
func Forbidden(code, message string) *Error {
	return newError(http.StatusForbidden, code, message, nil)
}

// NotFound reports a missing resource.
func NotFound(code, message string) *Error {
	return newError(http.StatusNotFound, code, message, nil)
}

// Conflict reports a write that collides with existing state.
func Conflict(code, message string) *Error {
	return newError(http.StatusConflict, code, message, nil)
}

// Gone reports a resource that existed but was removed.
func Gone(code, message string) *Error {
	return newError(http.StatusGone, code, message, nil)
}

// Business reports a request that is well formed but cannot proceed.
func Business(code, message string) *Error {
	return newError(http.StatusBadRequest, code, message, nil)
}

// RateLimited reports a caller exceeding its request budget.
func RateLimited() *Error {
	return newError(http.StatusTooManyRequests, CodeRateLimited, "Too many requests, slow down.", nil)
}

// Internal wraps a store or dependency failure. The client only sees a generic
// message; err is kept for logs.
func Internal(message string, err error) *Error {
	if message == "" {
		message = "An internal error has occurred!"
	}
	return newError(http.StatusInternalServerError, CodeInternal, message, err)
}

// As extracts an *Error from err, wrapping anything else as an internal error.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("", err)
}

// HasCode reports whether err is an *Error carrying code.
func HasCode(err error, code string) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
