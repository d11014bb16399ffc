// Package errors defines the coded error type shared by every taskhub
// package. An [Error] carries a stable machine-readable [Code], a message
// that is safe to show to API clients, an optional cause, and optional
// structured details.
//
// # Codes and HTTP status
//
// Codes have the form CATEGORY_NNN. The category alone decides the HTTP
// status a handler writes (see [Error.HTTPStatus]):
//
//	VAL     400  request payload or parameters rejected
//	AUTH    401  no usable credentials
//	AUTHZ   403  credentials present but not sufficient
//	NF      404  the addressed resource does not exist
//	CONF    409  the write conflicts with stored state
//	INT     500  unexpected failure inside the service
//	UNAVAIL 503  a dependency (database, key endpoint) is not reachable
//	TIMEOUT 504  a dependency did not answer in time
//
// # Usage
//
//	if p.OwnerID != user.ID {
//	    return errors.New(errors.CodeAuthorizationDenied, "project belongs to another user")
//	}
//
//	row, err := db.QueryRow(ctx, q, id)
//	if err != nil {
//	    return errors.Wrap(err, errors.CodeInternalDatabase, "load project")
//	}
//
// Callers branch on category with [IsAuthentication], [IsAuthorization],
// [IsNotFound] and friends, or on an exact code with [HasCode].
package errors
