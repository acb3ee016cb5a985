package chat

import (
	"errors"
	"fmt"
)

// Sentinels returned by Store implementations.
var (
	ErrUserConflict    = errors.New("chat: username or email already taken")
	ErrUserNotFound    = errors.New("chat: user not found")
	ErrMessageNotFound = errors.New("chat: message not found")
	ErrChannelClosed   = errors.New("chat: channel closed")
)

type ErrorCode string

const (
	ErrorValidation  ErrorCode = "VALIDATION_FAILED"
	ErrorPersistence ErrorCode = "PERSISTENCE_UNAVAILABLE"
	ErrorNotFound    ErrorCode = "NOT_FOUND"
)

// Error is returned by Service operations. Reason is safe to show to the
// connection that triggered the operation.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("chat: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("chat: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
