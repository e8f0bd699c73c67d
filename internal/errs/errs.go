// Package errs defines coded errors shared by the harness and the reference
// application. Harness helpers turn them into test failures; the reference
// application maps them onto HTTP status codes.
package errs

import (
	"errors"
	"net/http"
)

// Code is an application error code.
type Code string

const (
	InvalidArgument    Code = "invalid_argument"
	NotFound           Code = "not_found"
	FailedPrecondition Code = "failed_precondition"
	PermissionDenied   Code = "permission_denied"
	Unauthenticated    Code = "unauthenticated"
	Unavailable        Code = "unavailable"
	DeadlineExceeded   Code = "deadline_exceeded"
	Mismatch           Code = "mismatch"
	Internal           Code = "internal"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error with message and cause. The cause stays
// reachable through errors.Is and errors.As.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Is reports whether the outermost coded error in err's chain has code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// outermost returns the first coded error in err's chain, or nil.
func outermost(err error) *Error {
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return nil
}

// CodeOf returns the code of the outermost coded error in err's chain.
// Uncoded errors, and nil, are Internal.
func CodeOf(err error) Code {
	if c := outermost(err); c != nil && c.Code != "" {
		return c.Code
	}
	return Internal
}

// MessageOf returns the message to show a user for err. Uncoded errors
// collapse to "internal error" so SQL text and file paths never reach a
// rendered page.
func MessageOf(err error) string {
	switch c := outermost(err); {
	case err == nil:
		return string(Internal)
	case c != nil && c.Message != "":
		return c.Message
	}
	return "internal error"
}

var statusByCode = map[Code]int{
	InvalidArgument:    http.StatusBadRequest,
	Unauthenticated:    http.StatusUnauthorized,
	PermissionDenied:   http.StatusForbidden,
	NotFound:           http.StatusNotFound,
	FailedPrecondition: http.StatusConflict,
	Unavailable:        http.StatusServiceUnavailable,
	DeadlineExceeded:   http.StatusGatewayTimeout,
}

// HTTPStatus maps an error code to the status the reference application
// responds with. Unknown codes are 500.
func HTTPStatus(code Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
