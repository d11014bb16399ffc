package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// ---------------------------------------------------------------------------
// Shared test helpers
// ---------------------------------------------------------------------------

const authTestIssuer = "https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_TestPool"

// authTestGenerateRSAKey generates a 2048-bit RSA key for signing tokens.
func authTestGenerateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	return key
}

// authTestSignToken creates an RS256-signed JWT with the given claims and
// kid. An empty kid leaves the header without one.
func authTestSignToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	s, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign RSA token")
	return s
}

// authTestClaims returns claims for a valid, unexpired token from the test
// pool.
func authTestClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   sub,
		"iss":   authTestIssuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
		"email": sub + "@example.com",
	}
}

// authTestJWK encodes an RSA public key as a key-set entry.
func authTestJWK(kid string, pub *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"kid": kid,
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// authTestKeySet is a key-set endpoint whose contents can be swapped
// between requests. Hits counts served requests.
type authTestKeySet struct {
	mu   sync.Mutex
	keys []map[string]string
	Hits atomic.Int32
	srv  *httptest.Server
}

// authTestServeKeySet starts a key-set server publishing keys.
func authTestServeKeySet(t *testing.T, keys map[string]*rsa.PublicKey) *authTestKeySet {
	t.Helper()
	ks := &authTestKeySet{}
	ks.Publish(keys)
	ks.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ks.Hits.Add(1)
		ks.mu.Lock()
		doc, err := json.Marshal(map[string]any{"keys": ks.keys})
		ks.mu.Unlock()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(ks.srv.Close)
	return ks
}

// Publish replaces the published keys.
func (ks *authTestKeySet) Publish(keys map[string]*rsa.PublicKey) {
	entries := make([]map[string]string, 0, len(keys))
	for kid, pub := range keys {
		entries = append(entries, authTestJWK(kid, pub))
	}
	ks.mu.Lock()
	ks.keys = entries
	ks.mu.Unlock()
}

// URL is the key-set location.
func (ks *authTestKeySet) URL() string { return ks.srv.URL + "/.well-known/jwks.json" }

// authTestStaticKeys resolves kids from a fixed map, or returns err for
// every lookup when set.
type authTestStaticKeys struct {
	keys map[string]*rsa.PublicKey
	err  error
}

func (s authTestStaticKeys) GetKey(_ context.Context, kid string) (SigningKey, error) {
	if s.err != nil {
		return SigningKey{}, s.err
	}
	pub, ok := s.keys[kid]
	if !ok {
		return SigningKey{}, sserr.Newf(sserr.CodeAuthenticationKeyNotFound, "signing key %q not found", kid)
	}
	return SigningKey{KeyID: kid, PublicKey: pub}, nil
}

// authTestLimiter answers every Allow with allow and counts calls.
type authTestLimiter struct {
	allow bool
	err   error
	calls atomic.Int32
}

func (l *authTestLimiter) Allow(context.Context) (bool, error) {
	l.calls.Add(1)
	return l.allow, l.err
}

// authTestMustJSON marshals v or fails the test.
func authTestMustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
