package errors

// Code is a stable, machine-readable error identifier of the form
// CATEGORY_NNN. Codes are never renumbered once published because API
// clients and alerts match on them.
type Code string

const (
	// CodeValidation is a generic payload or parameter rejection.
	CodeValidation Code = "VAL_001"
	// CodeValidationRequired marks a missing mandatory field.
	CodeValidationRequired Code = "VAL_002"
	// CodeValidationFormat marks a field with the wrong shape (bad enum value,
	// unparsable number).
	CodeValidationFormat Code = "VAL_003"
	// CodeValidationRange marks a value outside its permitted length or range.
	CodeValidationRange Code = "VAL_004"

	// CodeAuthentication is a generic authentication failure.
	CodeAuthentication Code = "AUTH_001"
	// CodeAuthenticationExpired means the bearer token's exp is in the past.
	CodeAuthenticationExpired Code = "AUTH_002"
	// CodeAuthenticationInvalid means the bearer token could not be parsed or
	// lacks a key identifier.
	CodeAuthenticationInvalid Code = "AUTH_003"
	// CodeAuthenticationSignature means the token signature does not verify
	// against the resolved key, or the algorithm is not RS256.
	CodeAuthenticationSignature Code = "AUTH_004"
	// CodeAuthenticationIssuer means the token's iss does not equal the
	// configured user-pool issuer.
	CodeAuthenticationIssuer Code = "AUTH_005"
	// CodeAuthenticationKeyNotFound means the token's kid is absent from a
	// freshly fetched key set.
	CodeAuthenticationKeyNotFound Code = "AUTH_006"
	// CodeAuthenticationRequired means the operation needs a principal and the
	// request carried none.
	CodeAuthenticationRequired Code = "AUTH_007"

	// CodeAuthorization is a generic authorization failure.
	CodeAuthorization Code = "AUTHZ_001"
	// CodeAuthorizationDenied means the principal is neither the owner nor an
	// administrator.
	CodeAuthorizationDenied Code = "AUTHZ_002"
	// CodeAuthorizationAdminRequired means the operation is reserved for the
	// ADMIN role.
	CodeAuthorizationAdminRequired Code = "AUTHZ_003"

	// CodeNotFound is a generic not found error.
	CodeNotFound Code = "NF_001"
	// CodeNotFoundUser means no user row matches the id or subject.
	CodeNotFoundUser Code = "NF_002"
	// CodeNotFoundResource means no project or task matches the id.
	CodeNotFoundResource Code = "NF_003"

	// CodeConflict is a generic conflict error.
	CodeConflict Code = "CONF_001"
	// CodeConflictAlreadyExists means a unique constraint rejected the write.
	CodeConflictAlreadyExists Code = "CONF_002"

	// CodeInternal is a generic internal error.
	CodeInternal Code = "INT_001"
	// CodeInternalDatabase means a database statement failed.
	CodeInternalDatabase Code = "INT_002"
	// CodeInternalConfiguration means configuration could not be loaded.
	CodeInternalConfiguration Code = "INT_003"

	// CodeUnavailable is a generic unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"
	// CodeUnavailableDependency means a backing service refused connections.
	CodeUnavailableDependency Code = "UNAVAIL_002"
	// CodeUnavailableKeyFetch means the signing-key endpoint could not be
	// reached, answered non-200, returned an unreadable document, or timed out.
	CodeUnavailableKeyFetch Code = "UNAVAIL_004"
	// CodeUnavailableRateLimited means a key refresh was refused because the
	// refresh ceiling for the current window is spent.
	CodeUnavailableRateLimited Code = "UNAVAIL_005"

	// CodeTimeout is a generic timeout error.
	CodeTimeout Code = "TIMEOUT_001"
	// CodeTimeoutDatabase means a database call hit its deadline.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the code text.
func (c Code) String() string {
	return string(c)
}

// Category returns the part before the first underscore ("AUTH" for
// "AUTH_002"). A code without an underscore is its own category.
func (c Code) Category() string {
	s := string(c)
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			return s[:i]
		}
	}
	return s
}
