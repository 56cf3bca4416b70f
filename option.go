package jwtverify

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/oidckit/go-jwt-verify/jwks"
	"github.com/oidckit/go-jwt-verify/validator"
)

// Option configures a Verifier.
type Option func(*Verifier) error

// IssuerOption configures a single issuer binding.
type IssuerOption func(*IssuerConfig) error

// Sentinel errors for configuration validation.
var (
	ErrNoIssuer        = errors.New("at least one issuer is required (use WithIssuer)")
	ErrIssuerEmpty     = errors.New("issuer cannot be empty")
	ErrDuplicateIssuer = errors.New("issuer configured twice")
	ErrCacheNil        = errors.New("cache cannot be nil")
	ErrLoggerNil       = errors.New("logger cannot be nil")
	ErrMetricsNil      = errors.New("metrics cannot be nil")
	ErrTracerNil       = errors.New("tracer cannot be nil")
	ErrHTTPClientNil   = errors.New("HTTP client cannot be nil")
	ErrClockNil        = errors.New("clock cannot be nil")
	ErrCustomCheckNil  = errors.New("custom check cannot be nil")
	ErrJwksURIEmpty    = errors.New("JWKS URI cannot be empty")
	ErrGraceNegative   = errors.New("grace seconds cannot be negative")
)

// WithIssuer binds the verifier to an issuer. It may be given more than
// once; with several issuers the token's iss claim selects the binding
// (and therefore the JWKS endpoint).
//
// Example:
//
//	verifier, err := jwtverify.New(
//	    jwtverify.WithIssuer("https://issuer.example.com/",
//	        jwtverify.WithAudience("my-api"),
//	    ),
//	)
func WithIssuer(issuer string, opts ...IssuerOption) Option {
	return func(v *Verifier) error {
		if issuer == "" {
			return ErrIssuerEmpty
		}
		if _, dup := v.issuers[issuer]; dup {
			return ErrDuplicateIssuer
		}
		cfg := &IssuerConfig{
			issuer: issuer,
			policy: validator.Policy{Issuers: []string{issuer}},
		}
		for _, opt := range opts {
			if err := opt(cfg); err != nil {
				return err
			}
		}
		v.issuers[issuer] = cfg
		v.order = append(v.order, issuer)
		return nil
	}
}

// WithAudience sets the expected audience(s). Without this option the
// audience check is disabled.
func WithAudience(audience ...string) IssuerOption {
	return func(c *IssuerConfig) error {
		c.policy.Audiences = append([]string(nil), audience...)
		return nil
	}
}

// WithScope requires at least one of the given scopes to appear in the
// token's space-delimited scope claim.
func WithScope(scopes ...string) IssuerOption {
	return func(c *IssuerConfig) error {
		c.policy.Scopes = append([]string(nil), scopes...)
		return nil
	}
}

// WithGraceSeconds sets the clock-skew tolerance applied to the exp and
// nbf checks. The default is 0.
func WithGraceSeconds(n int) IssuerOption {
	return func(c *IssuerConfig) error {
		if n < 0 {
			return ErrGraceNegative
		}
		c.policy.GraceSeconds = n
		return nil
	}
}

// WithJwksURI overrides the JWKS endpoint. The default is the issuer URL
// with /.well-known/jwks.json appended.
func WithJwksURI(uri string) IssuerOption {
	return func(c *IssuerConfig) error {
		if uri == "" {
			return ErrJwksURIEmpty
		}
		c.jwksURI = uri
		return nil
	}
}

// WithJwksDiscovery resolves the JWKS endpoint through the issuer's
// .well-known/openid-configuration document instead of the default URI.
// Resolution happens lazily on the first Verify or Hydrate call.
func WithJwksDiscovery() IssuerOption {
	return func(c *IssuerConfig) error {
		c.discover = true
		return nil
	}
}

// WithCustomCheck installs a user predicate evaluated after every
// built-in assertion. Its error is surfaced wrapped in
// JwtCustomCheckFailed.
func WithCustomCheck(fn validator.CustomCheckFunc) IssuerOption {
	return func(c *IssuerConfig) error {
		if fn == nil {
			return ErrCustomCheckNil
		}
		c.policy.CustomCheck = fn
		return nil
	}
}

// WithChecks appends issuer-specialization assertions, evaluated between
// the time-bound checks and the scope check.
func WithChecks(checks ...validator.Check) IssuerOption {
	return func(c *IssuerConfig) error {
		c.policy.Checks = append(c.policy.Checks, checks...)
		return nil
	}
}

// WithJwksCache injects an alternate cache implementation shared with
// other verifiers. The default is a per-verifier MemoryCache.
func WithJwksCache(cache jwks.Cache) Option {
	return func(v *Verifier) error {
		if cache == nil {
			return ErrCacheNil
		}
		v.cache = cache
		return nil
	}
}

// WithLogger sets an optional logger used across the verifier and the
// default cache.
func WithLogger(l Logger) Option {
	return func(v *Verifier) error {
		if l == nil {
			return ErrLoggerNil
		}
		v.logger = l
		return nil
	}
}

// WithMetrics sets an optional metrics sink.
func WithMetrics(m Metrics) Option {
	return func(v *Verifier) error {
		if m == nil {
			return ErrMetricsNil
		}
		v.metrics = m
		return nil
	}
}

// WithTracer sets an optional tracer.
func WithTracer(t Tracer) Option {
	return func(v *Verifier) error {
		if t == nil {
			return ErrTracerNil
		}
		v.tracer = t
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for JWKS fetches and
// discovery when the verifier builds its own transport.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) error {
		if c == nil {
			return ErrHTTPClientNil
		}
		v.httpClient = c
		return nil
	}
}

// WithResponseTimeout sets the JWKS fetch timeout used when the verifier
// builds its own transport. The default is 3000 ms.
func WithResponseTimeout(d time.Duration) Option {
	return func(v *Verifier) error {
		if d <= 0 {
			return errors.New("response timeout must be positive")
		}
		v.responseTimeout = d
		return nil
	}
}

// WithPenaltyBoxCapacity sets the penalty-box capacity used when the
// verifier builds its own cache. The default is 10.
func WithPenaltyBoxCapacity(n int) Option {
	return func(v *Verifier) error {
		if n < 0 {
			return errors.New("penalty box capacity cannot be negative")
		}
		v.penaltyCapacity = n
		return nil
	}
}

// WithRawJWTInErrors includes the offending token in returned errors for
// diagnostics. Off by default: raw tokens in logs are a credential leak.
func WithRawJWTInErrors(include bool) Option {
	return func(v *Verifier) error {
		v.includeRawJWT = include
		return nil
	}
}

// WithClock overrides the verifier's time source.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) error {
		if now == nil {
			return ErrClockNil
		}
		v.clock = now
		return nil
	}
}

// VerifyOption overrides parts of the issuer policy for a single call.
type VerifyOption func(*validator.Policy)

// OverrideAudience replaces the expected audience(s) for this call.
func OverrideAudience(audience ...string) VerifyOption {
	return func(p *validator.Policy) {
		p.Audiences = append([]string(nil), audience...)
	}
}

// OverrideScope replaces the required scope(s) for this call.
func OverrideScope(scopes ...string) VerifyOption {
	return func(p *validator.Policy) {
		p.Scopes = append([]string(nil), scopes...)
	}
}

// OverrideCustomCheck replaces the custom check for this call.
func OverrideCustomCheck(fn validator.CustomCheckFunc) VerifyOption {
	return func(p *validator.Policy) {
		p.CustomCheck = fn
	}
}

// defaultJwksURI derives the conventional JWKS endpoint from an issuer URL.
func defaultJwksURI(issuer string) string {
	return strings.TrimSuffix(issuer, "/") + "/.well-known/jwks.json"
}
