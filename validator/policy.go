package validator

import (
	"context"
	"time"

	"github.com/oidckit/go-jwt-verify/jwterror"
)

// CustomCheckFunc is an opaque caller-supplied predicate evaluated after
// every built-in assertion. A non-nil return fails the verification with
// JwtCustomCheckFailed wrapping the returned error.
type CustomCheckFunc func(ctx context.Context, payload map[string]any) error

// Check is an issuer-specialization assertion (e.g. token_use or group
// membership). Checks run after the time-bound assertions and before
// scope and custom checks.
type Check func(ctx context.Context, claims *Claims) error

// Policy enumerates the assertions applied to a decoded payload.
//
// Nil Issuers or Audiences disables the corresponding check. GraceSeconds
// widens both time bounds symmetrically.
type Policy struct {
	Issuers      []string
	Audiences    []string
	GraceSeconds int
	Scopes       []string
	Checks       []Check
	CustomCheck  CustomCheckFunc

	// Now overrides the time source. Defaults to time.Now.
	Now func() time.Time
}

// Assert evaluates every configured assertion in a fixed order: issuer,
// audience, expiration, not-before, specialization checks, scope, custom.
// The first failing assertion aborts evaluation and its error is returned
// unchanged.
func (p *Policy) Assert(ctx context.Context, claims *Claims) error {
	if err := p.assertIssuer(claims); err != nil {
		return err
	}
	if err := p.assertAudience(claims); err != nil {
		return err
	}

	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	grace := int64(p.GraceSeconds)

	if claims.Expiry != nil && now.Unix() > *claims.Expiry+grace {
		return jwterror.Newf(jwterror.KindJwtExpired, "token expired at %d", *claims.Expiry)
	}
	if claims.NotBefore != nil && now.Unix() < *claims.NotBefore-grace {
		return jwterror.Newf(jwterror.KindJwtNotBefore, "token not valid before %d", *claims.NotBefore)
	}

	for _, check := range p.Checks {
		if err := check(ctx, claims); err != nil {
			return err
		}
	}

	if err := p.assertScope(claims); err != nil {
		return err
	}

	if p.CustomCheck != nil {
		if err := p.CustomCheck(ctx, claims.Raw); err != nil {
			return jwterror.Wrap(jwterror.KindJwtCustomCheckFailed, "custom check rejected the token", err)
		}
	}
	return nil
}

func (p *Policy) assertIssuer(claims *Claims) error {
	if p.Issuers == nil {
		return nil
	}
	for _, iss := range p.Issuers {
		if claims.Issuer == iss {
			return nil
		}
	}
	return jwterror.Newf(jwterror.KindJwtIssuerNotAllowed, "issuer %q is not allowed", claims.Issuer)
}

func (p *Policy) assertAudience(claims *Claims) error {
	if p.Audiences == nil {
		return nil
	}
	for _, want := range p.Audiences {
		for _, got := range claims.Audience {
			if got == want {
				return nil
			}
		}
	}
	return jwterror.Newf(jwterror.KindJwtAudienceNotAllowed, "audience %v is not allowed", claims.Audience)
}

func (p *Policy) assertScope(claims *Claims) error {
	if len(p.Scopes) == 0 {
		return nil
	}
	have := claims.Scopes()
	for _, want := range p.Scopes {
		for _, got := range have {
			if got == want {
				return nil
			}
		}
	}
	return jwterror.Newf(jwterror.KindJwtScopeNotAllowed, "scope %q does not satisfy the policy", claims.Scope)
}
