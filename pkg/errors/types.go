package errors

import (
	"fmt"
	"maps"
	"net/http"
)

// Error is the coded error returned across package boundaries. Values are
// treated as immutable; the With* helpers return copies.
type Error struct {
	// Code classifies the failure and selects the HTTP status.
	Code Code

	// Message is safe to return to API clients. It must not contain SQL,
	// token material or other internals; those belong in Cause.
	Message string

	// Cause is the wrapped lower-level error, if any.
	Cause error

	// Details holds structured context such as per-field validation
	// messages. It is rendered into API error bodies.
	Details map[string]any
}

// Error renders "CODE: message" or "CODE: message: cause".
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes Cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the code category to a response status. Unknown
// categories map to 500.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case "VAL":
		return http.StatusBadRequest
	case "AUTH":
		return http.StatusUnauthorized
	case "AUTHZ":
		return http.StatusForbidden
	case "NF":
		return http.StatusNotFound
	case "CONF":
		return http.StatusConflict
	case "UNAVAIL":
		return http.StatusServiceUnavailable
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithDetail returns a copy of e with key set in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	return e.WithDetails(map[string]any{key: value})
}

// WithDetails returns a copy of e with details merged over the existing
// Details. The receiver is left untouched.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	maps.Copy(merged, details)
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: merged,
	}
}

// Format supports %s, %q, %v and %+v. The %+v form prints code, message,
// details and the cause chain on one line for logs.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fmt.Fprint(s, e.Error())
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
