package errors

// GetCode returns the code of the outermost *Error in err's chain, or ""
// when there is none.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether the outermost *Error in err's chain has code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation reports a VAL_ error.
func IsValidation(err error) bool { return hasCategory(err, "VAL") }

// IsAuthentication reports an AUTH_ error.
func IsAuthentication(err error) bool { return hasCategory(err, "AUTH") }

// IsAuthorization reports an AUTHZ_ error.
func IsAuthorization(err error) bool { return hasCategory(err, "AUTHZ") }

// IsNotFound reports an NF_ error.
func IsNotFound(err error) bool { return hasCategory(err, "NF") }

// IsConflict reports a CONF_ error.
func IsConflict(err error) bool { return hasCategory(err, "CONF") }

// IsInternal reports an INT_ error.
func IsInternal(err error) bool { return hasCategory(err, "INT") }

// IsUnavailable reports an UNAVAIL_ error.
func IsUnavailable(err error) bool { return hasCategory(err, "UNAVAIL") }

// IsTimeout reports a TIMEOUT_ error.
func IsTimeout(err error) bool { return hasCategory(err, "TIMEOUT") }

// IsRetryable reports whether retrying the same call later may succeed.
// Rate-limited key refreshes are retryable once the window rolls over.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "UNAVAIL", "TIMEOUT":
		return true
	}
	return false
}

// IsClientError reports an error caused by the request rather than the
// service (4xx).
func IsClientError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "VAL", "AUTH", "AUTHZ", "NF", "CONF":
		return true
	}
	return false
}
