package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryValidation Category = "validation"
	CategoryRemote     Category = "remote"
	CategoryPartial    Category = "partial"
	CategoryConfig     Category = "config"
)

// Error is a coded error with a user-safe message and an optional cause.
type Error struct {
	// Code is a unique error identifier (e.g., "M100").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short, user-facing description.
	Message string

	// Detail is a longer explanation for logs and CLI output.
	Detail string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		return msg + ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Code == "" {
		return false
	}
	return e.Code == t.Code
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithMessage overrides the user-facing message.
func (e *Error) WithMessage(m string) *Error {
	e.Message = m
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an Error. Errors that already carry
// an *Error in their chain are returned as that *Error.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}

// CategoryOf returns the category of the first *Error in err's chain, or ""
// when there is none.
func CategoryOf(err error) Category {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category
	}
	return ""
}

// IsCategory reports whether err carries an *Error of the given category.
func IsCategory(err error, c Category) bool {
	return err != nil && CategoryOf(err) == c
}

// UserMessage returns the message safe to show to a user. Errors outside the
// taxonomy collapse to the generic remote failure message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return registry[CodeRemoteFailed].Message
}
