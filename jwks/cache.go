// Package jwks caches JSON Web Key Sets per issuer endpoint.
//
// The default MemoryCache refreshes pull-based: a JWKS is (re)fetched only
// when a lookup misses on its kid. At most one fetch per endpoint is in
// flight at any time; concurrent callers coalesce onto it and observe the
// same outcome. Kids that remain unknown after a refresh enter a bounded
// FIFO penalty box that suppresses further refreshes for those kids.
package jwks

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"sync"

	"github.com/oidckit/go-jwt-verify/jwk"
	"github.com/oidckit/go-jwt-verify/jws"
	"github.com/oidckit/go-jwt-verify/jwterror"
)

// Logger is the subset of the module's logging surface used by the cache.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Metrics is the subset of the module's metrics surface used by the cache.
type Metrics interface {
	IncCounter(name string, tags map[string]string)
}

// Cache resolves verification keys by JWKS URI and kid, fetching the key
// set when necessary.
type Cache interface {
	// GetKey returns the key for kid together with the effective
	// algorithm (the JWK's own alg when declared, the header's alg
	// otherwise), refreshing the JWKS on a miss. Apart from Hydrate,
	// this is the only suspending operation on the cache.
	GetKey(ctx context.Context, jwksURI, kid, alg string) (crypto.PublicKey, jws.Algorithm, error)

	// GetCachedKey resolves kid against the resident JWKS only. It never
	// performs I/O and fails with KidNotFoundInJwks when the key set is
	// absent or lacks the kid.
	GetCachedKey(jwksURI, kid, alg string) (crypto.PublicKey, jws.Algorithm, error)

	// Hydrate fetches the JWKS ahead of time so GetCachedKey can succeed.
	Hydrate(ctx context.Context, jwksURI string) error
}

// JwksSetter is implemented by caches that accept a pre-parsed JWKS
// directly, bypassing the fetcher.
type JwksSetter interface {
	SetJwks(jwksURI string, set *jwk.Set)
}

// MemoryCache is the default in-process Cache implementation.
//
// A single mutex guards entry state transitions: the in-flight slot, JWKS
// replacement, the derived-key cache, and the penalty box. The mutex is
// never held across the network fetch.
type MemoryCache struct {
	fetcher         Fetcher
	penaltyCapacity int
	logger          Logger
	metrics         Metrics

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	set     *jwk.Set
	keys    map[string]crypto.PublicKey
	penalty *penaltyBox
	pending *fetchResult
}

// fetchResult is the completion all coalesced waiters observe.
type fetchResult struct {
	done chan struct{}
	err  error
}

// MemoryCacheOption configures a MemoryCache.
type MemoryCacheOption func(*MemoryCache) error

// WithFetcher sets the transport used to retrieve key sets.
func WithFetcher(f Fetcher) MemoryCacheOption {
	return func(c *MemoryCache) error {
		if f == nil {
			return errors.New("fetcher cannot be nil")
		}
		c.fetcher = f
		return nil
	}
}

// WithPenaltyBoxCapacity sets the per-issuer penalty box size. The
// default is 10.
func WithPenaltyBoxCapacity(n int) MemoryCacheOption {
	return func(c *MemoryCache) error {
		if n < 0 {
			return errors.New("penalty box capacity cannot be negative")
		}
		c.penaltyCapacity = n
		return nil
	}
}

// WithLogger sets an optional logger.
func WithLogger(l Logger) MemoryCacheOption {
	return func(c *MemoryCache) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = l
		return nil
	}
}

// WithMetrics sets an optional metrics sink.
func WithMetrics(m Metrics) MemoryCacheOption {
	return func(c *MemoryCache) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		c.metrics = m
		return nil
	}
}

// NewMemoryCache builds a MemoryCache. Without options it uses an
// HTTPFetcher with default timeouts and a penalty box of capacity 10.
func NewMemoryCache(opts ...MemoryCacheOption) (*MemoryCache, error) {
	c := &MemoryCache{
		penaltyCapacity: DefaultPenaltyBoxCapacity,
		entries:         make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	if c.fetcher == nil {
		f, err := NewHTTPFetcher()
		if err != nil {
			return nil, err
		}
		c.fetcher = f
	}
	return c, nil
}

// GetKey implements Cache.
func (c *MemoryCache) GetKey(ctx context.Context, jwksURI, kid, alg string) (crypto.PublicKey, jws.Algorithm, error) {
	c.mu.Lock()
	e := c.entryLocked(jwksURI)

	if e.set != nil {
		key, effAlg, err := e.lookupLocked(kid, alg)
		if err == nil {
			c.mu.Unlock()
			return key, effAlg, nil
		}
		if !jwterror.IsKind(err, jwterror.KindKidNotFound) {
			c.mu.Unlock()
			return nil, "", err
		}
	}

	if e.penalty.contains(kid) {
		c.mu.Unlock()
		c.count("jwks_penalty_box_hits", map[string]string{"jwks_uri": jwksURI})
		return nil, "", jwterror.Newf(jwterror.KindKidNotFound, "kid %q not found in JWKS (penalty box)", kid)
	}

	if err := c.refreshLocked(ctx, jwksURI, e); err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e.set == nil {
		return nil, "", jwterror.Newf(jwterror.KindKidNotFound, "kid %q not found: no JWKS available", kid)
	}
	key, effAlg, err := e.lookupLocked(kid, alg)
	if err == nil {
		return key, effAlg, nil
	}
	if jwterror.IsKind(err, jwterror.KindKidNotFound) {
		e.penalty.add(kid)
		c.debugf("kid %q absent after refresh of %s, penalty boxed", kid, jwksURI)
	}
	return nil, "", err
}

// GetCachedKey implements Cache.
func (c *MemoryCache) GetCachedKey(jwksURI, kid, alg string) (crypto.PublicKey, jws.Algorithm, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[jwksURI]
	if !ok || e.set == nil {
		return nil, "", jwterror.Newf(jwterror.KindKidNotFound, "no JWKS cached for %s", jwksURI)
	}
	return e.lookupLocked(kid, alg)
}

// Hydrate implements Cache. Concurrent hydrations coalesce like any other
// refresh.
func (c *MemoryCache) Hydrate(ctx context.Context, jwksURI string) error {
	c.mu.Lock()
	e := c.entryLocked(jwksURI)
	if e.set != nil {
		c.mu.Unlock()
		return nil
	}
	return c.refreshLocked(ctx, jwksURI, e)
}

// SetJwks loads a pre-parsed JWKS directly, replacing any resident set.
func (c *MemoryCache) SetJwks(jwksURI string, set *jwk.Set) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(jwksURI)
	e.storeLocked(set)
}

// entryLocked returns the entry for jwksURI, creating it lazily.
// Call with c.mu held.
func (c *MemoryCache) entryLocked(jwksURI string) *cacheEntry {
	e, ok := c.entries[jwksURI]
	if !ok {
		e = &cacheEntry{penalty: newPenaltyBox(c.penaltyCapacity)}
		c.entries[jwksURI] = e
	}
	return e
}

// refreshLocked refreshes the entry's JWKS, coalescing onto an in-flight
// fetch when one exists. It must be entered with c.mu held and returns
// with c.mu released. All callers awaiting the same fetch observe the
// same error outcome. A failed refresh leaves any previous good JWKS in
// place.
func (c *MemoryCache) refreshLocked(ctx context.Context, jwksURI string, e *cacheEntry) error {
	pending := e.pending
	starter := pending == nil
	if starter {
		pending = &fetchResult{done: make(chan struct{})}
		e.pending = pending
	}
	c.mu.Unlock()

	if !starter {
		select {
		case <-pending.done:
		case <-ctx.Done():
			return jwterror.Wrap(jwterror.KindFetchError, "interrupted while awaiting JWKS fetch", ctx.Err())
		}
		return pending.err
	}

	c.debugf("fetching JWKS from %s", jwksURI)
	set, err := c.fetchAndParse(ctx, jwksURI)

	c.mu.Lock()
	if err == nil {
		e.storeLocked(set)
	}
	if e.pending == pending {
		e.pending = nil
	}
	pending.err = err
	c.mu.Unlock()
	close(pending.done)

	if err != nil {
		c.warnf("JWKS fetch from %s failed: %v", jwksURI, err)
		c.count("jwks_fetches", map[string]string{"result": "error"})
	} else {
		c.count("jwks_fetches", map[string]string{"result": "ok"})
	}
	return err
}

func (c *MemoryCache) fetchAndParse(ctx context.Context, jwksURI string) (*jwk.Set, error) {
	body, err := c.fetcher.Fetch(ctx, jwksURI)
	if err != nil {
		return nil, err
	}
	return jwk.ParseSet(body)
}

// storeLocked replaces the entry's JWKS, drops every derived key, and
// releases penalty-boxed kids that the new set now contains.
// Call with c.mu held.
func (e *cacheEntry) storeLocked(set *jwk.Set) {
	e.set = set
	e.keys = make(map[string]crypto.PublicKey)
	for _, k := range set.Keys {
		e.penalty.remove(k.Kid)
	}
}

// lookupLocked selects the key matching kid, resolves the effective
// algorithm, and materializes the native key, caching it until the JWKS
// is replaced. With an empty kid the JWKS must contain exactly one key;
// several candidates are ambiguous and fail rather than guessing.
// Call with c.mu held.
func (e *cacheEntry) lookupLocked(kid, alg string) (crypto.PublicKey, jws.Algorithm, error) {
	var candidates []*jwk.Key
	if kid != "" {
		candidates = e.set.LookupKid(kid)
	} else if len(e.set.Keys) == 1 {
		candidates = e.set.Keys
	} else if len(e.set.Keys) > 1 {
		return nil, "", jwterror.New(jwterror.KindMultipleKeysFound, "token has no kid and the JWKS contains multiple keys")
	}

	if len(candidates) == 0 {
		return nil, "", jwterror.Newf(jwterror.KindKidNotFound, "kid %q not found in JWKS", kid)
	}
	if len(candidates) > 1 {
		return nil, "", jwterror.Newf(jwterror.KindMultipleKeysFound, "JWKS contains %d keys with kid %q", len(candidates), kid)
	}

	k := candidates[0]
	effAlg, err := k.EffectiveAlgorithm(alg)
	if err != nil {
		return nil, "", err
	}
	if pub, ok := e.keys[kid]; ok {
		return pub, effAlg, nil
	}
	pub, err := k.PublicKey()
	if err != nil {
		return nil, "", err
	}
	e.keys[kid] = pub
	return pub, effAlg, nil
}

func (c *MemoryCache) debugf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}

func (c *MemoryCache) warnf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warnf(format, args...)
	}
}

func (c *MemoryCache) count(name string, tags map[string]string) {
	if c.metrics != nil {
		c.metrics.IncCounter(name, tags)
	}
}
