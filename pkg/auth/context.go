package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is an unexported type used for context keys in this package.
type contextKey int

const (
	principalKey contextKey = iota
	resultKey
)

// ContextWithPrincipal returns a copy of ctx carrying p.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal attached by the
// authentication middleware. ok is false for anonymous requests.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// ContextWithResult records the authentication outcome for the request.
func ContextWithResult(ctx context.Context, r AuthResult) context.Context {
	return context.WithValue(ctx, resultKey, r)
}

// ResultFromContext returns the outcome recorded by the middleware. A
// request that never passed through it reports OutcomeAnonymous.
func ResultFromContext(ctx context.Context) AuthResult {
	r, ok := ctx.Value(resultKey).(AuthResult)
	if !ok {
		return AuthResult{Outcome: OutcomeAnonymous}
	}
	return r
}

// TraceIDFromContext returns the OpenTelemetry trace ID from ctx, or ""
// when there is no valid span context.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
