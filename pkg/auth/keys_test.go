package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// ===========================================================================
// Lookup and refresh
// ===========================================================================

func TestKeyCache_HitServedWithoutFetch(t *testing.T) {
	t.Parallel()
	key := authTestGenerateRSAKey(t)
	ks := authTestServeKeySet(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	cache := NewKeyCache(KeyCacheConfig{URL: ks.URL()})

	for i := 0; i < 5; i++ {
		got, err := cache.GetKey(context.Background(), "kid-1")
		require.NoError(t, err)
		assert.Equal(t, "kid-1", got.KeyID)
		assert.Equal(t, 0, key.PublicKey.N.Cmp(got.PublicKey.N))
		assert.Equal(t, key.PublicKey.E, got.PublicKey.E)
	}
	assert.Equal(t, int32(1), ks.Hits.Load(), "only the first lookup should fetch")
}

func TestKeyCache_UnknownKidAfterRefresh(t *testing.T) {
	t.Parallel()
	key := authTestGenerateRSAKey(t)
	ks := authTestServeKeySet(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	cache := NewKeyCache(KeyCacheConfig{URL: ks.URL()})

	_, err := cache.GetKey(context.Background(), "kid-unknown")
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeAuthenticationKeyNotFound), "got %v", err)
	assert.Equal(t, int32(1), ks.Hits.Load())
}

func TestKeyCache_FetchFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<html>nope</html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			t.Cleanup(srv.Close)

			cache := NewKeyCache(KeyCacheConfig{URL: srv.URL})
			_, err := cache.GetKey(context.Background(), "kid-1")
			require.Error(t, err)
			assert.True(t, sserr.HasCode(err, sserr.CodeUnavailableKeyFetch), "got %v", err)
		})
	}
}

func TestKeyCache_UnreachableEndpoint(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cache := NewKeyCache(KeyCacheConfig{URL: url})
	_, err := cache.GetKey(context.Background(), "kid-1")
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeUnavailableKeyFetch), "got %v", err)
}

func TestKeyCache_FetchTimeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	cache := NewKeyCache(KeyCacheConfig{URL: srv.URL, FetchTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := cache.GetKey(context.Background(), "kid-1")
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeUnavailableKeyFetch), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second, "fetch should be bounded by the timeout")
}

func TestKeyCache_RefusedRefreshIsRateLimited(t *testing.T) {
	t.Parallel()
	key := authTestGenerateRSAKey(t)
	ks := authTestServeKeySet(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	limiter := &authTestLimiter{allow: false}
	cache := NewKeyCache(KeyCacheConfig{URL: ks.URL(), Limiter: limiter})

	_, err := cache.GetKey(context.Background(), "kid-1")
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeUnavailableRateLimited), "got %v", err)
	assert.Equal(t, int32(0), ks.Hits.Load(), "refused refresh must not fetch")
	assert.Equal(t, int32(1), limiter.calls.Load())
}

func TestKeyCache_EleventhRefreshInWindowRefused(t *testing.T) {
	t.Parallel()
	key := authTestGenerateRSAKey(t)
	ks := authTestServeKeySet(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	cache := NewKeyCache(KeyCacheConfig{URL: ks.URL(), Limiter: NewLocalRefreshLimiter(10, time.Minute)})

	for i := 0; i < 10; i++ {
		_, err := cache.GetKey(context.Background(), fmt.Sprintf("missing-%d", i))
		require.Error(t, err)
		assert.True(t, sserr.HasCode(err, sserr.CodeAuthenticationKeyNotFound), "attempt %d: %v", i, err)
	}

	_, err := cache.GetKey(context.Background(), "missing-10")
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeUnavailableRateLimited), "got %v", err)
	assert.Equal(t, int32(10), ks.Hits.Load())

	// Cached keys are still served while refreshes are refused.
	got, err := cache.GetKey(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, "kid-1", got.KeyID)
}

func TestKeyCache_ConcurrentMissesShareOneFetch(t *testing.T) {
	t.Parallel()
	key := authTestGenerateRSAKey(t)
	ks := authTestServeKeySet(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	cache := NewKeyCache(KeyCacheConfig{URL: ks.URL()})

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.GetKey(context.Background(), "kid-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), ks.Hits.Load())
}

func TestKeyCache_RotationReplacesKeys(t *testing.T) {
	t.Parallel()
	oldKey := authTestGenerateRSAKey(t)
	newKey := authTestGenerateRSAKey(t)
	ks := authTestServeKeySet(t, map[string]*rsa.PublicKey{"old": &oldKey.PublicKey})
	cache := NewKeyCache(KeyCacheConfig{URL: ks.URL()})

	_, err := cache.GetKey(context.Background(), "old")
	require.NoError(t, err)

	ks.Publish(map[string]*rsa.PublicKey{"new": &newKey.PublicKey})
	got, err := cache.GetKey(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, "new", got.KeyID)

	// The retired key was dropped by the refresh above.
	_, err = cache.GetKey(context.Background(), "old")
	assert.True(t, sserr.HasCode(err, sserr.CodeAuthenticationKeyNotFound), "got %v", err)
	assert.Equal(t, int32(3), ks.Hits.Load())
}

func TestKeyCache_ExpiredEntryRefetched(t *testing.T) {
	t.Parallel()
	key := authTestGenerateRSAKey(t)
	ks := authTestServeKeySet(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	cache := NewKeyCache(KeyCacheConfig{URL: ks.URL(), TTL: 50 * time.Millisecond})

	_, err := cache.GetKey(context.Background(), "kid-1")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	_, err = cache.GetKey(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), ks.Hits.Load())
}

func TestKeyCache_CapacityLimitsKeptKeys(t *testing.T) {
	t.Parallel()
	keys := make(map[string]*rsa.PublicKey)
	key := authTestGenerateRSAKey(t)
	for i := 0; i < 4; i++ {
		keys[fmt.Sprintf("kid-%d", i)] = &key.PublicKey
	}
	ks := authTestServeKeySet(t, keys)
	cache := NewKeyCache(KeyCacheConfig{URL: ks.URL(), Capacity: 2})

	_, _ = cache.GetKey(context.Background(), "kid-none")
	assert.Equal(t, 2, cache.entries.ItemCount())
}

func TestKeyCache_SkipsUnusableEntries(t *testing.T) {
	t.Parallel()
	key := authTestGenerateRSAKey(t)
	good := authTestJWK("good", &key.PublicKey)
	noKid := authTestJWK("", &key.PublicKey)
	enc := authTestJWK("enc", &key.PublicKey)
	enc["use"] = "enc"
	ec := map[string]string{"kty": "EC", "kid": "ec", "crv": "P-256", "x": "AA", "y": "AA"}
	broken := map[string]string{"kty": "RSA", "kid": "broken", "n": "!!", "e": "AQAB"}

	doc := authTestMustJSON(t, map[string]any{"keys": []map[string]string{noKid, enc, ec, broken, good}})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	}))
	t.Cleanup(srv.Close)

	cache := NewKeyCache(KeyCacheConfig{URL: srv.URL})
	_, err := cache.GetKey(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.entries.ItemCount())
}

func TestKeyCache_RecordsMetrics(t *testing.T) {
	t.Parallel()
	key := authTestGenerateRSAKey(t)
	ks := authTestServeKeySet(t, map[string]*rsa.PublicKey{"kid-1": &key.PublicKey})
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	cache := NewKeyCache(KeyCacheConfig{URL: ks.URL(), Metrics: metrics})

	_, _ = cache.GetKey(context.Background(), "kid-1")
	_, _ = cache.GetKey(context.Background(), "kid-1")

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.keyLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.keyLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.keyRefreshes.WithLabelValues("ok")))
}

// ===========================================================================
// parseRSAPublicKey
// ===========================================================================

func TestParseRSAPublicKey(t *testing.T) {
	t.Parallel()
	key := authTestGenerateRSAKey(t)
	jwk := authTestJWK("k", &key.PublicKey)

	pub, err := parseRSAPublicKey(jwk["n"], jwk["e"])
	require.NoError(t, err)
	assert.Equal(t, 0, key.PublicKey.N.Cmp(pub.N))
	assert.Equal(t, 65537, pub.E)

	_, err = parseRSAPublicKey("not base64!", jwk["e"])
	assert.Error(t, err)
	_, err = parseRSAPublicKey(jwk["n"], "")
	assert.Error(t, err)
	_, err = parseRSAPublicKey(jwk["n"], "AQ") // e = 1
	assert.Error(t, err)
}
