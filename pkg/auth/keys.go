package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/taskhub/pkg/errors"
)

// maxKeySetSize limits how much of a key-set response is read.
const maxKeySetSize = 1 << 20

// refreshFlight is the singleflight key shared by every refresh.
const refreshFlight = "jwks"

// SigningKey is one RSA verification key from the pool's key set.
type SigningKey struct {
	KeyID     string
	PublicKey *rsa.PublicKey
}

// HTTPClient is the transport used to fetch the key set. *http.Client
// satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeyCacheConfig configures a [KeyCache]. Zero durations and limits take
// the [DefaultConfig] values.
type KeyCacheConfig struct {
	// URL is the key set location, normally [Config.KeySetURL].
	URL string

	TTL          time.Duration
	Capacity     int
	FetchTimeout time.Duration

	// Limiter throttles refreshes. Nil means a [LocalRefreshLimiter] with
	// the default 10 per minute.
	Limiter RefreshLimiter

	// HTTPClient defaults to a plain *http.Client; FetchTimeout is applied
	// through the request context either way.
	HTTPClient HTTPClient

	Metrics *Metrics
	Logger  *slog.Logger
}

// KeyCache resolves key IDs to signing keys. Hits are served from memory
// with no I/O. A miss refreshes the whole key set: concurrent misses share
// a single fetch, and the fetch is refused with
// [sserr.CodeUnavailableRateLimited] when the limiter says no.
//
// KeyCache is safe for concurrent use.
type KeyCache struct {
	url          string
	capacity     int
	ttl          time.Duration
	fetchTimeout time.Duration
	entries      *gocache.Cache
	flight       singleflight.Group
	limiter      RefreshLimiter
	client       HTTPClient
	metrics      *Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewKeyCache builds an empty cache. Nothing is fetched until the first
// lookup.
func NewKeyCache(cfg KeyCacheConfig) *KeyCache {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.KeyCacheTTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.KeyCacheCapacity
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewLocalRefreshLimiter(def.RefreshLimit, def.RefreshWindow)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &KeyCache{
		url:          cfg.URL,
		capacity:     cfg.Capacity,
		ttl:          cfg.TTL,
		fetchTimeout: cfg.FetchTimeout,
		entries:      gocache.New(cfg.TTL, time.Minute),
		limiter:      cfg.Limiter,
		client:       cfg.HTTPClient,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		tracer:       otel.Tracer(tracerName),
	}
}

// GetKey returns the key for kid. Error codes:
//   - [sserr.CodeAuthenticationKeyNotFound]: kid is absent after a refresh
//   - [sserr.CodeUnavailableKeyFetch]: the key set could not be fetched
//   - [sserr.CodeUnavailableRateLimited]: a refresh was needed but refused
func (c *KeyCache) GetKey(ctx context.Context, kid string) (SigningKey, error) {
	if v, ok := c.entries.Get(kid); ok {
		c.metrics.keyLookup("hit")
		return v.(SigningKey), nil
	}
	c.metrics.keyLookup("miss")

	v, err, shared := c.flight.Do(refreshFlight, func() (any, error) {
		if v, ok := c.entries.Get(kid); ok {
			// Another refresh landed between our miss and this flight.
			return c.snapshot(v.(SigningKey)), nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		return SigningKey{}, err
	}

	keys := v.(map[string]SigningKey)
	key, ok := keys[kid]
	if !ok {
		c.logger.DebugContext(ctx, "auth: key id not in refreshed key set",
			"kid", kid,
			"shared_refresh", shared,
		)
		return SigningKey{}, sserr.Newf(sserr.CodeAuthenticationKeyNotFound,
			"auth: signing key %q not found", kid)
	}
	return key, nil
}

// snapshot returns the current unexpired entries, always including known.
func (c *KeyCache) snapshot(known SigningKey) map[string]SigningKey {
	items := c.entries.Items()
	keys := make(map[string]SigningKey, len(items)+1)
	for kid, item := range items {
		keys[kid] = item.Object.(SigningKey)
	}
	keys[known.KeyID] = known
	return keys
}

// refresh fetches the key set and replaces the cache contents with it.
func (c *KeyCache) refresh(ctx context.Context) (map[string]SigningKey, error) {
	ctx, span := startSpan(ctx, c.tracer, "auth.KeyCache.Refresh")
	defer span.End()

	allowed, err := c.limiter.Allow(ctx)
	if err != nil {
		c.metrics.keyRefresh("error")
		wrapped := sserr.Wrap(err, sserr.CodeUnavailableKeyFetch, "auth: refresh limiter failed")
		finishSpan(span, wrapped)
		return nil, wrapped
	}
	if !allowed {
		c.metrics.keyRefresh("rate_limited")
		limited := sserr.New(sserr.CodeUnavailableRateLimited, "auth: signing key refresh rate limit exceeded")
		finishSpan(span, limited)
		return nil, limited
	}

	// The fetch outlives a cancelled caller so that callers sharing this
	// flight still get a result.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	keys, err := c.fetch(fetchCtx)
	if err != nil {
		c.metrics.keyRefresh("error")
		wrapped := sserr.Wrap(err, sserr.CodeUnavailableKeyFetch, "auth: failed to fetch signing keys")
		if errors.Is(err, context.DeadlineExceeded) {
			wrapped = sserr.Wrapf(err, sserr.CodeUnavailableKeyFetch,
				"auth: signing key fetch timed out after %s", c.fetchTimeout)
		}
		finishSpan(span, wrapped)
		c.logger.WarnContext(ctx, "auth: signing key refresh failed",
			"error", wrapped,
			"url", c.url,
		)
		return nil, wrapped
	}

	c.replace(keys)
	c.metrics.keyRefresh("ok")
	span.SetAttributes(attribute.Int("auth.key_count", len(keys)))
	return keys, nil
}

// replace installs keys and drops entries that are no longer published.
// New keys are written before stale ones are removed so readers never see
// an empty cache mid-refresh.
func (c *KeyCache) replace(keys map[string]SigningKey) {
	for kid, key := range keys {
		c.entries.Set(kid, key, c.ttl)
	}
	for kid := range c.entries.Items() {
		if _, keep := keys[kid]; !keep {
			c.entries.Delete(kid)
		}
	}
}

type jwksDocument struct {
	Keys []jwkEntry `json:"keys"`
}

type jwkEntry struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// fetch GETs the key set and decodes its RSA keys. Entries without a kid,
// non-RSA entries, encryption keys and undecodable entries are skipped. At
// most capacity keys are kept, in document order.
func (c *KeyCache) fetch(ctx context.Context) (map[string]SigningKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build key set request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("key set request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key set endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize))
	if err != nil {
		return nil, fmt.Errorf("read key set: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode key set: %w", err)
	}

	keys := make(map[string]SigningKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if len(keys) == c.capacity {
			break
		}
		if k.Kid == "" || k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			c.logger.WarnContext(ctx, "auth: skipping undecodable signing key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = SigningKey{KeyID: k.Kid, PublicKey: pub}
	}
	return keys, nil
}

// parseRSAPublicKey decodes base64url modulus and exponent values.
func parseRSAPublicKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 {
		return nil, errors.New("empty modulus or exponent")
	}
	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
}
