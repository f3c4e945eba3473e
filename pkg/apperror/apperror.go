// Package apperror holds the error kinds shared by the store, the abuse guard
// and the rating engine. Every *Error unwraps to its kind and to its cause, so
// errors.Is(err, ErrRateLimited) and errors.As(err, &sqlite3.Error{}) both work.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrRateLimited = errors.New("rate limited")
	ErrNotFound    = errors.New("not found")
	ErrStore       = errors.New("store error")
)

const (
	CodeInvalid         = "invalid_request"
	CodeTooManyRequests = "too_many_requests"
	CodeNotFound        = "not_found"
	CodeStore           = "store_failure"
)

type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrValidation, Code: CodeInvalid, Message: fmt.Sprintf(format, args...)}
}

func RateLimited(code, message string) *Error {
	if code == "" {
		code = CodeTooManyRequests
	}
	return &Error{Kind: ErrRateLimited, Code: code, Message: message}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Store wraps a driver error. The driver error stays reachable through Unwrap.
func Store(op string, err error) *Error {
	return &Error{Kind: ErrStore, Code: CodeStore, Message: op, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
