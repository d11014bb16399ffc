package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// HeaderAuthorization carries the bearer token.
const HeaderAuthorization = "Authorization"

const bearerPrefix = "Bearer "

// TokenVerifier verifies a raw token and returns its claims. *Verifier
// satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (jwt.MapClaims, error)
}

// AuthOutcome is what happened when a request was authenticated.
type AuthOutcome int

const (
	// OutcomeAnonymous means no bearer token was presented.
	OutcomeAnonymous AuthOutcome = iota
	// OutcomeAuthenticated means a token was verified and a principal
	// attached.
	OutcomeAuthenticated
	// OutcomeRejected means a token was presented but failed
	// verification. The request continues as anonymous.
	OutcomeRejected
)

func (o AuthOutcome) String() string {
	switch o {
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// AuthResult is the outcome of [Authenticator.Authenticate]. Principal is
// set only for OutcomeAuthenticated; Err only for OutcomeRejected.
type AuthResult struct {
	Outcome   AuthOutcome
	Principal Principal
	Err       error
}

// Authenticated reports whether a principal was established.
func (r AuthResult) Authenticated() bool { return r.Outcome == OutcomeAuthenticated }

// Authenticator turns an Authorization header into an [AuthResult]. It
// never fails a request itself.
type Authenticator struct {
	verifier TokenVerifier
	logger   *slog.Logger
	metrics  *Metrics
}

// NewAuthenticator returns an authenticator using verifier. logger and
// metrics may be nil.
func NewAuthenticator(verifier TokenVerifier, logger *slog.Logger, metrics *Metrics) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{verifier: verifier, logger: logger, metrics: metrics}
}

// Authenticate verifies the bearer token in header, if any. Verification
// failures are logged at warn level and reported as OutcomeRejected.
func (a *Authenticator) Authenticate(ctx context.Context, header string) AuthResult {
	raw := ExtractBearerToken(header)
	if raw == "" {
		a.metrics.authentication(OutcomeAnonymous)
		return AuthResult{Outcome: OutcomeAnonymous}
	}

	claims, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		a.metrics.authentication(OutcomeRejected)
		a.logger.WarnContext(ctx, "auth: bearer token rejected, continuing unauthenticated",
			"error", err,
			"code", sserr.GetCode(err).String(),
			"trace_id", TraceIDFromContext(ctx),
		)
		return AuthResult{Outcome: OutcomeRejected, Err: err}
	}

	p := ExtractPrincipal(claims)
	a.metrics.authentication(OutcomeAuthenticated)
	a.logger.DebugContext(ctx, "auth: request authenticated",
		"subject", p.Subject,
		"role", p.Role.String(),
	)
	return AuthResult{Outcome: OutcomeAuthenticated, Principal: p}
}

// ExtractBearerToken returns the token from a "Bearer <token>" header
// value. The scheme is matched case-insensitively; anything else yields
// "".
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}
