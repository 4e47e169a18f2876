package resource

import (
	"context"
	stderrors "errors"
	"fmt"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
	"github.com/mohallaa/mohallaa/pkg/remote"
)

// Codes assigned by Normalize to errors that carry none.
const (
	CodeTimeout  = "timeout"
	CodeCanceled = "canceled"
	CodePanic    = "panic"
)

// Error is the uniform shape of a failed fetch.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Normalize converts any error into an *Error. It returns nil for nil.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var re *Error
	if stderrors.As(err, &re) {
		return re
	}
	var rerr *remote.Error
	if stderrors.As(err, &rerr) {
		return &Error{Message: rerr.Message, Code: rerr.Code, Err: err}
	}
	var aerr *apperrors.Error
	if stderrors.As(err, &aerr) {
		return &Error{Message: aerr.Message, Code: aerr.Code, Err: err}
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return &Error{Message: "request timed out", Code: CodeTimeout, Err: err}
	case stderrors.Is(err, context.Canceled):
		return &Error{Message: "request canceled", Code: CodeCanceled, Err: err}
	}
	return &Error{Message: err.Error(), Err: err}
}

type panicError struct{ value any }

func (p panicError) Error() string { return fmt.Sprintf("fetch panicked: %v", p.value) }

func normalizePanic(v any) *Error {
	return &Error{Message: "unexpected failure while loading", Code: CodePanic, Err: panicError{value: v}}
}
