package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// maxTokenSize is the largest token accepted, in bytes.
const maxTokenSize = 8192

// signingAlgorithm is the only algorithm Cognito uses for ID and access
// tokens, and the only one accepted.
const signingAlgorithm = "RS256"

// KeyResolver looks up a signing key by key ID. *KeyCache satisfies it.
type KeyResolver interface {
	GetKey(ctx context.Context, kid string) (SigningKey, error)
}

// Verifier checks Cognito-issued RS256 tokens. Checks run in this order
// and the first failure wins:
//
//  1. structure, algorithm and kid header  [sserr.CodeAuthenticationInvalid]
//  2. key resolution                       [KeyCache.GetKey] errors as-is
//  3. signature                            [sserr.CodeAuthenticationSignature]
//  4. iss equals the pool issuer exactly   [sserr.CodeAuthenticationIssuer]
//  5. exp is present and in the future     [sserr.CodeAuthenticationExpired]
//  6. nbf, when present, has passed        [sserr.CodeAuthenticationInvalid]
//
// The leeway applies to exp and nbf. aud and iat are not checked.
type Verifier struct {
	keys    KeyResolver
	issuer  string
	leeway  time.Duration
	parser  *jwt.Parser
	tracer  trace.Tracer
	timeNow func() time.Time
}

// NewVerifier returns a verifier trusting tokens from issuer whose keys
// come from keys. leeway is tolerated on exp and nbf.
func NewVerifier(keys KeyResolver, issuer string, leeway time.Duration) *Verifier {
	return &Verifier{
		keys:   keys,
		issuer: issuer,
		leeway: leeway,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingAlgorithm}),
			jwt.WithoutClaimsValidation(),
		),
		tracer:  otel.Tracer(tracerName),
		timeNow: time.Now,
	}
}

// Issuer returns the accepted iss value.
func (v *Verifier) Issuer() string { return v.issuer }

// Verify validates raw and returns its claims. Every failure is an
// *sserr.Error.
func (v *Verifier) Verify(ctx context.Context, raw string) (jwt.MapClaims, error) {
	ctx, span := startSpan(ctx, v.tracer, "auth.Verifier.Verify")
	defer span.End()

	claims, err := v.verify(ctx, raw)
	if err != nil {
		finishSpan(span, err)
		span.SetAttributes(attribute.String("auth.error_code", sserr.GetCode(err).String()))
		return nil, err
	}
	return claims, nil
}

func (v *Verifier) verify(ctx context.Context, raw string) (jwt.MapClaims, error) {
	if raw == "" {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "auth: token must not be empty")
	}
	if len(raw) > maxTokenSize {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "auth: token exceeds maximum size")
	}

	// Reject anything but RS256 before a key is looked up, so a token
	// with a forged header cannot force a key-set refresh.
	unverified, _, err := v.parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is malformed")
	}
	if alg, _ := unverified.Header["alg"].(string); alg != signingAlgorithm {
		return nil, sserr.Newf(sserr.CodeAuthenticationInvalid, "auth: signing algorithm %q is not accepted", alg)
	}
	if kid, _ := unverified.Header["kid"].(string); kid == "" {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "auth: token header has no key id")
	}

	token, err := v.parser.Parse(raw, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := v.keys.GetKey(ctx, kid)
		if err != nil {
			return nil, err
		}
		return key.PublicKey, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "auth: unexpected claims type")
	}

	iss, _ := claims.GetIssuer()
	if iss != v.issuer {
		return nil, sserr.Newf(sserr.CodeAuthenticationIssuer, "auth: token issuer %q is not trusted", iss)
	}

	validator := jwt.NewValidator(
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.timeNow),
	)
	if err := validator.Validate(claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, sserr.Wrap(err, sserr.CodeAuthenticationExpired, "auth: token has expired")
		}
		if errors.Is(err, jwt.ErrTokenRequiredClaimMissing) {
			return nil, sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token has no expiry")
		}
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token claims are invalid")
	}
	return claims, nil
}

// classifyParseError maps a parse failure to an auth code. Key resolution
// errors come back wrapped by the parser and keep their own code.
func classifyParseError(err error) *sserr.Error {
	var ssError *sserr.Error
	if errors.As(err, &ssError) {
		return ssError
	}
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return sserr.Wrap(err, sserr.CodeAuthenticationSignature, "auth: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is unverifiable")
	default:
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token validation failed")
	}
}
