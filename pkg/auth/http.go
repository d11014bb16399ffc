package auth

import (
	"net/http"
)

// Middleware authenticates each request and passes it on regardless of
// the outcome. On success the [Principal] is attached to the request
// context; the [AuthResult] is attached in every case.
//
// Refusing a request is left to [Guard], so public routes need no
// special casing here.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(authenticator.Middleware)
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		result := a.Authenticate(ctx, r.Header.Get(HeaderAuthorization))
		ctx = ContextWithResult(ctx, result)
		if result.Authenticated() {
			ctx = ContextWithPrincipal(ctx, result.Principal)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
