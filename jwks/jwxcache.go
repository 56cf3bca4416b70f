package jwks

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	jwxjwk "github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/oidckit/go-jwt-verify/jws"
	"github.com/oidckit/go-jwt-verify/jwterror"
)

// JwxCache is an alternate Cache implementation backed by lestrrat-go/jwx
// for fetching, parsing, and key materialization, with TTL-based refresh
// instead of pull-based refresh. It trades the penalty-box behavior for
// jwx's battle-tested JWKS handling; use it when the issuer rotates keys
// on a schedule and TTL refresh is the better fit.
type JwxCache struct {
	client *http.Client
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]*jwxEntry
}

type jwxEntry struct {
	set       jwxjwk.Set
	expiresAt time.Time
	fetchMu   sync.Mutex
}

// JwxCacheOption configures a JwxCache.
type JwxCacheOption func(*JwxCache) error

// WithJwxHTTPClient sets the HTTP client used by jwx fetches.
func WithJwxHTTPClient(c *http.Client) JwxCacheOption {
	return func(jc *JwxCache) error {
		if c == nil {
			return errors.New("HTTP client cannot be nil")
		}
		jc.client = c
		return nil
	}
}

// WithJwxTTL sets the refresh interval. The default is 15 minutes.
func WithJwxTTL(ttl time.Duration) JwxCacheOption {
	return func(jc *JwxCache) error {
		if ttl <= 0 {
			return errors.New("TTL must be positive")
		}
		jc.ttl = ttl
		return nil
	}
}

// NewJwxCache builds a JwxCache.
func NewJwxCache(opts ...JwxCacheOption) (*JwxCache, error) {
	c := &JwxCache{
		client:  &http.Client{Timeout: DefaultResponseTimeout},
		ttl:     15 * time.Minute,
		entries: make(map[string]*jwxEntry),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return c, nil
}

// GetKey implements Cache.
func (c *JwxCache) GetKey(ctx context.Context, jwksURI, kid, alg string) (crypto.PublicKey, jws.Algorithm, error) {
	set, err := c.getSet(ctx, jwksURI)
	if err != nil {
		return nil, "", err
	}
	return selectJwxKey(set, kid, alg)
}

// GetCachedKey implements Cache. Only a resident, unexpired set is
// consulted; there is no I/O on this path.
func (c *JwxCache) GetCachedKey(jwksURI, kid, alg string) (crypto.PublicKey, jws.Algorithm, error) {
	c.mu.Lock()
	e, ok := c.entries[jwksURI]
	var set jwxjwk.Set
	if ok && e.set != nil && time.Now().Before(e.expiresAt) {
		set = e.set
	}
	c.mu.Unlock()

	if set == nil {
		return nil, "", jwterror.Newf(jwterror.KindKidNotFound, "no JWKS cached for %s", jwksURI)
	}
	return selectJwxKey(set, kid, alg)
}

// Hydrate implements Cache.
func (c *JwxCache) Hydrate(ctx context.Context, jwksURI string) error {
	_, err := c.getSet(ctx, jwksURI)
	return err
}

// getSet returns the cached set, refreshing it when stale. A per-URI
// fetch mutex keeps concurrent refreshes down to one.
func (c *JwxCache) getSet(ctx context.Context, jwksURI string) (jwxjwk.Set, error) {
	now := time.Now()

	c.mu.Lock()
	e, ok := c.entries[jwksURI]
	if !ok {
		e = &jwxEntry{}
		c.entries[jwksURI] = e
	}
	if e.set != nil && now.Before(e.expiresAt) {
		set := e.set
		c.mu.Unlock()
		return set, nil
	}
	c.mu.Unlock()

	e.fetchMu.Lock()
	defer e.fetchMu.Unlock()

	// Another caller may have refreshed while we waited for the fetch lock.
	c.mu.Lock()
	if e.set != nil && now.Before(e.expiresAt) {
		set := e.set
		c.mu.Unlock()
		return set, nil
	}
	c.mu.Unlock()

	set, err := jwxjwk.Fetch(ctx, jwksURI, jwxjwk.WithHTTPClient(c.client))
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindFetchError, "could not fetch JWKS", err)
	}

	c.mu.Lock()
	e.set = set
	e.expiresAt = time.Now().Add(c.ttl)
	c.mu.Unlock()
	return set, nil
}

// selectJwxKey resolves kid within a jwx set, resolves the effective
// algorithm, and exports the raw native public key.
func selectJwxKey(set jwxjwk.Set, kid, alg string) (crypto.PublicKey, jws.Algorithm, error) {
	var key jwxjwk.Key
	if kid != "" {
		k, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, "", jwterror.Newf(jwterror.KindKidNotFound, "kid %q not found in JWKS", kid)
		}
		key = k
	} else {
		if set.Len() != 1 {
			return nil, "", jwterror.New(jwterror.KindMultipleKeysFound, "token has no kid and the JWKS contains multiple keys")
		}
		k, _ := set.Key(0)
		key = k
	}

	effAlg := jws.Algorithm(alg)
	if a := key.Algorithm(); a != nil && a.String() != "" {
		effAlg = jws.Algorithm(a.String())
	}
	if !effAlg.Valid() {
		return nil, "", jwterror.Newf(jwterror.KindInvalidSignatureAlgorithm, "unsupported algorithm %q", string(effAlg))
	}

	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, "", jwterror.Wrap(jwterror.KindJwkInvalid, "could not materialize key", err)
	}
	return raw, effAlg, nil
}
