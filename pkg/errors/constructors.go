package errors

import (
	"errors"
	"fmt"
)

// New returns an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error whose Cause is err. A nil err yields nil so that
// the usual `return errors.Wrap(err, ...)` tail works on success paths.
//
//	if err := rows.Err(); err != nil {
//	    return errors.Wrap(err, errors.CodeInternalDatabase, "iterate tasks")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Validation returns a CodeValidation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf returns a CodeValidation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// NotFound returns a CodeNotFoundResource error.
func NotFound(message string) *Error {
	return New(CodeNotFoundResource, message)
}

// NotFoundf returns a CodeNotFoundResource error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return Newf(CodeNotFoundResource, format, args...)
}

// Unauthorized returns a CodeAuthenticationRequired error. It is the error
// an operation reports when it needs a principal and has none.
func Unauthorized(message string) *Error {
	return New(CodeAuthenticationRequired, message)
}

// Forbidden returns a CodeAuthorizationDenied error.
func Forbidden(message string) *Error {
	return New(CodeAuthorizationDenied, message)
}

// Conflict returns a CodeConflictAlreadyExists error.
func Conflict(message string) *Error {
	return New(CodeConflictAlreadyExists, message)
}

// Internal returns a CodeInternal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Unavailable returns a CodeUnavailable error.
func Unavailable(message string) *Error {
	return New(CodeUnavailable, message)
}

// FromError returns err as an *Error, wrapping anything foreign as
// CodeInternal with a generic message.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return Wrap(err, CodeInternal, "internal error")
}

// AsError finds the outermost *Error in err's chain.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
