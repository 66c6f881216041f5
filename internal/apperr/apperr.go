// Package apperr defines the public error contract of the accounts API: stable numeric
// error codes grouped by category and the HTTP status each failure is surfaced with.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// Context identifies a single failure reason on the wire.
type Context struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
}

// Error is a failure that can be rendered as the uniform error envelope.
type Error struct {
	Status   int
	Contexts []Context
	// Err is the underlying cause. It is logged, never serialized.
	Err error
}

func (e *Error) Error() string {
	messages := make([]string, 0, len(e.Contexts))
	for _, c := range e.Contexts {
		messages = append(messages, c.Message)
	}
	msg := strings.Join(messages, "; ")
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by status and first error code, so callers can write
// errors.Is(err, apperr.NotFound(apperr.UserNotFound)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Status != t.Status || len(e.Contexts) == 0 || len(t.Contexts) == 0 {
		return false
	}
	return e.Contexts[0].ErrorCode == t.Contexts[0].ErrorCode
}

// Code returns the first error code carried by err, or 0 when err is not an *Error.
func Code(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && len(appErr.Contexts) > 0 {
		return appErr.Contexts[0].ErrorCode
	}
	return 0
}

func Validation(contexts ...Context) *Error {
	if len(contexts) == 0 {
		contexts = []Context{DefaultValidationError}
	}
	return &Error{Status: http.StatusBadRequest, Contexts: contexts}
}

func NotFound(c Context) *Error {
	return &Error{Status: http.StatusNotFound, Contexts: []Context{c}}
}

func Conflict(c Context) *Error {
	return &Error{Status: http.StatusConflict, Contexts: []Context{c}}
}

func Forbidden(c Context) *Error {
	return &Error{Status: http.StatusForbidden, Contexts: []Context{c}}
}

// Database wraps a storage failure. A nil context falls back to DefaultDatabaseError.
func Database(err error, c Context) *Error {
	if c.ErrorCode == 0 {
		c = DefaultDatabaseError
	}
	return &Error{Status: http.StatusInternalServerError, Contexts: []Context{c}, Err: err}
}

func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Contexts: []Context{InternalServerError}, Err: err}
}

// From converts any error into an *Error, treating unknown errors as internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
