// Package auth turns a bearer token issued by an AWS Cognito user pool
// into a request-scoped [Principal] and decides whether that principal may
// touch a given resource.
//
// The pieces, leaf first:
//
//   - [KeyCache] holds the pool's RSA signing keys by key ID. Entries live
//     for 24 hours; misses trigger a refresh of the whole key set that is
//     collapsed across concurrent callers and throttled by a
//     [RefreshLimiter].
//   - [Verifier] checks an RS256 token against the cached key, then the
//     issuer, then expiry.
//   - [ExtractPrincipal] derives subject, email, name and role from the
//     verified claims using Cognito's fallback claims.
//   - [Authenticator] runs the two steps above for a request. It never
//     rejects a request: a bad or missing token simply leaves the request
//     anonymous, and the outcome is reported as an [AuthResult].
//   - [Guard] is where requests are actually refused. Services call it
//     before disclosing or changing anything.
package auth

import (
	"fmt"
	"strings"
	"time"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// Limiter backends accepted in [Config.RefreshLimiter].
const (
	LimiterLocal = "local"
	LimiterRedis = "redis"
)

// Config describes the user pool whose tokens are trusted and how its
// signing keys are cached.
type Config struct {
	// Region is the AWS region of the user pool, e.g. "eu-west-1".
	Region string `env:"REGION" yaml:"region" json:"region"`

	// UserPoolID is the pool identifier, e.g. "eu-west-1_AbCdEf123".
	UserPoolID string `env:"USER_POOL_ID" yaml:"user_pool_id" json:"user_pool_id"`

	// JWKSURL overrides the key set location derived from the issuer.
	// Only useful for tests and local stand-ins for Cognito.
	JWKSURL string `env:"JWKS_URL" yaml:"jwks_url" json:"jwks_url,omitempty"`

	// IssuerOverride replaces the derived issuer. Same caveat as JWKSURL.
	IssuerOverride string `env:"ISSUER" yaml:"issuer" json:"issuer,omitempty"`

	// KeyCacheTTL is how long a fetched signing key is trusted.
	KeyCacheTTL time.Duration `env:"KEY_CACHE_TTL" envDefault:"24h" yaml:"key_cache_ttl" json:"key_cache_ttl"`

	// KeyCacheCapacity caps how many keys from one key set are kept.
	KeyCacheCapacity int `env:"KEY_CACHE_CAPACITY" envDefault:"10" yaml:"key_cache_capacity" json:"key_cache_capacity"`

	// RefreshLimit is the number of key-set fetches allowed per
	// RefreshWindow across the whole process (or cluster, with redis).
	RefreshLimit int `env:"REFRESH_LIMIT" envDefault:"10" yaml:"refresh_limit" json:"refresh_limit"`

	// RefreshWindow is the period RefreshLimit applies to.
	RefreshWindow time.Duration `env:"REFRESH_WINDOW" envDefault:"1m" yaml:"refresh_window" json:"refresh_window"`

	// RefreshLimiter selects the limiter backend: "local" or "redis".
	RefreshLimiter string `env:"REFRESH_LIMITER" envDefault:"local" yaml:"refresh_limiter" json:"refresh_limiter"`

	// FetchTimeout bounds a single key-set fetch.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"5s" yaml:"fetch_timeout" json:"fetch_timeout"`

	// ClockSkew is tolerated when checking exp. Zero means exp is exact.
	ClockSkew time.Duration `env:"CLOCK_SKEW" yaml:"clock_skew" json:"clock_skew"`
}

// DefaultConfig returns the documented defaults with no pool set.
func DefaultConfig() Config {
	return Config{
		KeyCacheTTL:      24 * time.Hour,
		KeyCacheCapacity: 10,
		RefreshLimit:     10,
		RefreshWindow:    time.Minute,
		RefreshLimiter:   LimiterLocal,
		FetchTimeout:     5 * time.Second,
	}
}

// Issuer is the exact iss value accepted on tokens:
// https://cognito-idp.<region>.amazonaws.com/<poolID>.
func (c Config) Issuer() string {
	if c.IssuerOverride != "" {
		return c.IssuerOverride
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// KeySetURL is where the pool publishes its signing keys.
func (c Config) KeySetURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return strings.TrimRight(c.Issuer(), "/") + "/.well-known/jwks.json"
}

// Validate checks ranges and the limiter backend name.
func (c *Config) Validate() error {
	switch {
	case c.Region == "" && c.IssuerOverride == "":
		return sserr.New(sserr.CodeValidationRequired, "auth: region is required")
	case c.UserPoolID == "" && c.IssuerOverride == "":
		return sserr.New(sserr.CodeValidationRequired, "auth: user pool id is required")
	case c.KeyCacheTTL <= 0:
		return sserr.New(sserr.CodeValidationRange, "auth: key cache TTL must be positive")
	case c.KeyCacheCapacity <= 0:
		return sserr.New(sserr.CodeValidationRange, "auth: key cache capacity must be positive")
	case c.RefreshLimit <= 0 || c.RefreshWindow <= 0:
		return sserr.New(sserr.CodeValidationRange, "auth: refresh limit and window must be positive")
	case c.FetchTimeout <= 0:
		return sserr.New(sserr.CodeValidationRange, "auth: fetch timeout must be positive")
	case c.ClockSkew < 0:
		return sserr.New(sserr.CodeValidationRange, "auth: clock skew must not be negative")
	}
	if c.RefreshLimiter != LimiterLocal && c.RefreshLimiter != LimiterRedis {
		return sserr.Newf(sserr.CodeValidationFormat,
			"auth: refresh limiter must be %q or %q, got %q", LimiterLocal, LimiterRedis, c.RefreshLimiter)
	}
	return nil
}
