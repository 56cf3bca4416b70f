package jwtverify

import (
	"context"
	"crypto"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/oidckit/go-jwt-verify/internal/compact"
	"github.com/oidckit/go-jwt-verify/internal/oidc"
	"github.com/oidckit/go-jwt-verify/jwk"
	"github.com/oidckit/go-jwt-verify/jwks"
	"github.com/oidckit/go-jwt-verify/jws"
	"github.com/oidckit/go-jwt-verify/jwterror"
	"github.com/oidckit/go-jwt-verify/validator"
)

// Verifier checks compact-serialized JWTs against one or more configured
// issuers: it parses the token, resolves the signing key through the
// shared JWKS cache, verifies the signature, and asserts the claim
// policy. On success it returns the decoded payload unchanged.
//
// A Verifier is safe for concurrent use. The JWKS cache is the only
// shared mutable state; the verifier holds a non-owning handle to it.
type Verifier struct {
	issuers map[string]*IssuerConfig
	order   []string

	cache           jwks.Cache
	httpClient      *http.Client
	responseTimeout time.Duration
	penaltyCapacity int

	logger        Logger
	metrics       Metrics
	tracer        Tracer
	includeRawJWT bool
	clock         func() time.Time
}

// IssuerConfig is the per-issuer verifier state: the JWKS endpoint and
// the default assertion policy.
type IssuerConfig struct {
	issuer   string
	jwksURI  string
	discover bool
	policy   validator.Policy

	mu       sync.Mutex
	resolved string
}

// New builds a Verifier. At least one WithIssuer binding is required.
//
// Example:
//
//	verifier, err := jwtverify.New(
//	    jwtverify.WithIssuer("https://issuer.example.com/",
//	        jwtverify.WithAudience("my-api"),
//	        jwtverify.WithGraceSeconds(30),
//	    ),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	payload, err := verifier.Verify(ctx, rawToken)
func New(opts ...Option) (*Verifier, error) {
	v := &Verifier{
		issuers:         make(map[string]*IssuerConfig),
		responseTimeout: jwks.DefaultResponseTimeout,
		penaltyCapacity: jwks.DefaultPenaltyBoxCapacity,
		clock:           time.Now,
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	if len(v.issuers) == 0 {
		return nil, ErrNoIssuer
	}

	if v.cache == nil {
		fetcherOpts := []jwks.HTTPFetcherOption{
			jwks.WithResponseTimeout(v.responseTimeout),
		}
		if v.httpClient != nil {
			fetcherOpts = append(fetcherOpts, jwks.WithHTTPClient(v.httpClient))
		}
		fetcher, err := jwks.NewHTTPFetcher(fetcherOpts...)
		if err != nil {
			return nil, err
		}
		cacheOpts := []jwks.MemoryCacheOption{
			jwks.WithFetcher(fetcher),
			jwks.WithPenaltyBoxCapacity(v.penaltyCapacity),
		}
		if v.logger != nil {
			cacheOpts = append(cacheOpts, jwks.WithLogger(v.logger))
		}
		if v.metrics != nil {
			cacheOpts = append(cacheOpts, jwks.WithMetrics(v.metrics))
		}
		cache, err := jwks.NewMemoryCache(cacheOpts...)
		if err != nil {
			return nil, err
		}
		v.cache = cache
	}

	for _, cfg := range v.issuers {
		cfg.policy.Now = v.clock
	}
	return v, nil
}

// Verify checks a token, fetching the issuer's JWKS when the signing key
// is not yet resident. Apart from Hydrate, which only prefetches key sets,
// it is the only operation on the verifier that can suspend. On success the decoded payload is returned as a map of claim
// name to JSON value.
func (v *Verifier) Verify(ctx context.Context, token string, opts ...VerifyOption) (map[string]any, error) {
	if v.tracer != nil {
		var span Span
		ctx, span = v.tracer.StartSpan(ctx, "jwtverify.Verify")
		defer span.Finish()
	}

	payload, err := v.verify(ctx, token, false, opts)
	v.observe(err)
	if err != nil {
		return nil, v.decorate(err, token)
	}
	return payload, nil
}

// VerifySync checks a token against the resident JWKS only. It never
// performs I/O: when the signing key is not already cached it fails with
// KidNotFoundInJwks. Populate the cache first with Hydrate or CacheJwks.
func (v *Verifier) VerifySync(token string, opts ...VerifyOption) (map[string]any, error) {
	payload, err := v.verify(context.Background(), token, true, opts)
	v.observe(err)
	if err != nil {
		return nil, v.decorate(err, token)
	}
	return payload, nil
}

// Hydrate prefetches the JWKS of every configured issuer so VerifySync
// can run without ever suspending.
func (v *Verifier) Hydrate(ctx context.Context) error {
	for _, issuer := range v.order {
		cfg := v.issuers[issuer]
		uri, err := v.jwksURIFor(ctx, cfg, false)
		if err != nil {
			return err
		}
		if err := v.cache.Hydrate(ctx, uri); err != nil {
			return err
		}
	}
	return nil
}

// CacheJwks loads a pre-parsed JWKS for the given issuer directly into
// the cache, bypassing the fetcher. The configured cache must support
// direct loading.
func (v *Verifier) CacheJwks(issuer string, set *jwk.Set) error {
	cfg, ok := v.issuers[issuer]
	if !ok {
		return jwterror.Newf(jwterror.KindJwtIssuerNotAllowed, "issuer %q is not configured", issuer)
	}
	setter, ok := v.cache.(jwks.JwksSetter)
	if !ok {
		return errors.New("the configured JWKS cache does not support direct loading")
	}
	uri, err := v.jwksURIFor(context.Background(), cfg, true)
	if err != nil {
		return err
	}
	setter.SetJwks(uri, set)
	return nil
}

func (v *Verifier) verify(ctx context.Context, token string, cachedOnly bool, opts []VerifyOption) (map[string]any, error) {
	d, err := decodeToken(token)
	if err != nil {
		return nil, err
	}

	cfg, err := v.configFor(d.claims.Issuer)
	if err != nil {
		return nil, err
	}

	uri, err := v.jwksURIFor(ctx, cfg, cachedOnly)
	if err != nil {
		return nil, err
	}

	var (
		key    crypto.PublicKey
		effAlg jws.Algorithm
	)
	if cachedOnly {
		key, effAlg, err = v.cache.GetCachedKey(uri, d.kid, d.alg)
	} else {
		key, effAlg, err = v.cache.GetKey(ctx, uri, d.kid, d.alg)
	}
	if err != nil {
		return nil, err
	}

	ok, err := jws.Verify(effAlg, key, d.tok.SigningInput, d.sig)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, jwterror.New(jwterror.KindInvalidSignature, "signature verification failed")
	}

	policy := cfg.policy
	for _, opt := range opts {
		opt(&policy)
	}
	if err := policy.Assert(ctx, d.claims); err != nil {
		return nil, err
	}
	return d.claims.Raw, nil
}

// decoded holds the parsed pieces of a compact JWT.
type decoded struct {
	tok    *compact.Token
	alg    string
	kid    string
	claims *validator.Claims
	sig    []byte
}

func decodeToken(token string) (*decoded, error) {
	tok, err := compact.Split(token)
	if err != nil {
		return nil, err
	}

	headerBytes, err := compact.DecodeSegment(tok.HeaderB64)
	if err != nil {
		return nil, err
	}
	header, err := compact.ParseJSONObject(headerBytes)
	if err != nil {
		return nil, err
	}
	alg, _ := header["alg"].(string)
	kid, _ := header["kid"].(string)
	if alg != "" && !jws.Algorithm(alg).Valid() {
		return nil, jwterror.Newf(jwterror.KindInvalidSignatureAlgorithm, "unsupported algorithm %q", alg)
	}

	payloadBytes, err := compact.DecodeSegment(tok.PayloadB64)
	if err != nil {
		return nil, err
	}
	payload, err := compact.ParseJSONObject(payloadBytes)
	if err != nil {
		return nil, err
	}
	claims, err := validator.ParseClaims(payload)
	if err != nil {
		return nil, err
	}

	sig, err := compact.DecodeSegment(tok.SignatureB64)
	if err != nil {
		return nil, err
	}

	return &decoded{tok: tok, alg: alg, kid: kid, claims: claims, sig: sig}, nil
}

// configFor selects the issuer binding for a token. With a single binding
// the token is checked against it by the issuer assertion later in the
// pipeline; with several bindings the iss claim routes to the right one.
func (v *Verifier) configFor(iss string) (*IssuerConfig, error) {
	if len(v.order) == 1 {
		return v.issuers[v.order[0]], nil
	}
	cfg, ok := v.issuers[iss]
	if !ok {
		return nil, jwterror.Newf(jwterror.KindJwtIssuerNotAllowed, "issuer %q is not allowed", iss)
	}
	return cfg, nil
}

// jwksURIFor resolves the JWKS endpoint for an issuer binding. Discovery
// is performed lazily and at most once; on the sync path an unresolved
// discovery fails instead of fetching.
func (v *Verifier) jwksURIFor(ctx context.Context, cfg *IssuerConfig, cachedOnly bool) (string, error) {
	if cfg.jwksURI != "" {
		return cfg.jwksURI, nil
	}
	if !cfg.discover {
		return defaultJwksURI(cfg.issuer), nil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	if cfg.resolved != "" {
		return cfg.resolved, nil
	}
	if cachedOnly {
		return "", jwterror.Newf(jwterror.KindKidNotFound, "JWKS URI for %q is not resolved yet", cfg.issuer)
	}

	client := v.httpClient
	if client == nil {
		client = &http.Client{Timeout: v.responseTimeout}
	}
	endpoints, err := oidc.GetWellKnownEndpoints(ctx, client, cfg.issuer)
	if err != nil {
		return "", err
	}
	cfg.resolved = endpoints.JWKSURI
	v.debugf("discovered JWKS URI %s for issuer %s", endpoints.JWKSURI, cfg.issuer)
	return cfg.resolved, nil
}

// decorate attaches the raw token to a tagged error when configured.
func (v *Verifier) decorate(err error, token string) error {
	if !v.includeRawJWT {
		return err
	}
	var te *jwterror.Error
	if errors.As(err, &te) {
		te.RawJWT = token
	}
	return err
}

func (v *Verifier) observe(err error) {
	if v.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(jwterror.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	v.metrics.IncCounter("jwt_verifications", map[string]string{"result": result})
}

func (v *Verifier) debugf(format string, args ...interface{}) {
	if v.logger != nil {
		v.logger.Debugf(format, args...)
	}
}
