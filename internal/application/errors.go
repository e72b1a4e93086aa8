package application

import (
	"errors"
	"fmt"
)

// Error kinds shared by every use case. The HTTP layer maps them to status codes.
var (
	ErrValidation     = errors.New("validation error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrDecode         = errors.New("decode error")
	ErrClassification = errors.New("classification error")
	ErrStorage        = errors.New("storage error")
	ErrTimeout        = errors.New("timeout")
	// ErrCanceled means the caller went away before the work finished.
	ErrCanceled       = errors.New("canceled")
)

// Error carries a kind, a message that is safe to show to clients and the
// internal cause (which must only be logged).
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Fail builds an *Error of the given kind.
func Fail(kind error, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// PublicMessage returns the client-facing message of err, or "" when err
// carries none.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
