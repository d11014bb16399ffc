// Package testutil holds helpers shared by taskhub tests.
//
// Helpers take [testing.TB] and call t.Helper(). Those that stop the test
// use testify's require; those that only record use assert.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// RequireErrorCode halts the test unless err is an *sserr.Error with code.
func RequireErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	ssErr, ok := sserr.AsError(err)
	require.True(t, ok, "expected *sserr.Error, got %T: %v", err, err)
	require.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// AssertErrorCode is the non-fatal form of [RequireErrorCode], for
// table-driven tests.
func AssertErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	ssErr, ok := sserr.AsError(err)
	if !assert.True(t, ok, "expected *sserr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// TempConfigFile writes content to config<ext> in a temp dir and returns
// its path.
func TempConfigFile(t testing.TB, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config"+ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600), "failed to write temp config file %s", path)
	return path
}

// ===========================================================================
// Identity pool stand-in
// ===========================================================================

// IdentityPool imitates a Cognito user pool: it publishes one RSA key on
// an httptest server and signs tokens with it.
type IdentityPool struct {
	Issuer string
	KeyID  string

	key  *rsa.PrivateKey
	srv  *httptest.Server
	hits atomic.Int32
}

// NewIdentityPool starts the key-set server. It is closed when t finishes.
func NewIdentityPool(t testing.TB) *IdentityPool {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")

	p := &IdentityPool{KeyID: "test-key-1", key: key}
	doc, err := json.Marshal(map[string]any{"keys": []map[string]string{{
		"kty": "RSA",
		"kid": p.KeyID,
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}})
	require.NoError(t, err)

	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		p.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(p.srv.Close)

	p.Issuer = p.srv.URL + "/eu-west-1_TestPool"
	return p
}

// KeySetURL is where the pool's keys are published.
func (p *IdentityPool) KeySetURL() string { return p.srv.URL + "/.well-known/jwks.json" }

// KeySetFetches reports how many times the key set was requested.
func (p *IdentityPool) KeySetFetches() int { return int(p.hits.Load()) }

// Claims returns valid claims for subject, expiring in an hour.
func (p *IdentityPool) Claims(subject string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":              subject,
		"iss":              p.Issuer,
		"iat":              now.Unix(),
		"exp":              now.Add(time.Hour).Unix(),
		"token_use":        "id",
		"email":            subject + "@example.com",
		"cognito:username": subject,
	}
}

// Sign signs claims with the pool key.
func (p *IdentityPool) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.KeyID
	s, err := token.SignedString(p.key)
	require.NoError(t, err, "failed to sign token")
	return s
}

// Token returns a signed token for subject. An admin token carries
// custom:role ADMIN.
func (p *IdentityPool) Token(t testing.TB, subject string, admin bool) string {
	t.Helper()
	claims := p.Claims(subject)
	if admin {
		claims["custom:role"] = "ADMIN"
	}
	return p.Sign(t, claims)
}
