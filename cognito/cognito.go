// Package cognito preconfigures the verifier for tokens issued by an
// Amazon Cognito user pool.
//
// The specialization fixes the issuer URL shape, requires the token_use
// claim to match the verifier kind, and checks the client id against the
// right claim for that kind: id tokens carry it in aud, access tokens in
// client_id. An optional group membership check runs alongside.
package cognito

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	jwtverify "github.com/oidckit/go-jwt-verify"
	"github.com/oidckit/go-jwt-verify/jwterror"
	"github.com/oidckit/go-jwt-verify/validator"
)

// TokenUse selects which kind of Cognito token a verifier accepts.
type TokenUse string

const (
	// TokenUseID accepts id tokens; the client id is checked against aud.
	TokenUseID = TokenUse("id")

	// TokenUseAccess accepts access tokens; the client id is checked
	// against the client_id claim and aud is ignored.
	TokenUseAccess = TokenUse("access")
)

// userPoolIDPattern matches ids like "eu-west-1_Ab129faBb".
var userPoolIDPattern = regexp.MustCompile(`^([a-z]{2}-[a-z]+-\d{1})_[0-9A-Za-z]+$`)

// Sentinel errors for configuration validation.
var (
	ErrInvalidUserPoolID = errors.New("user pool id must look like <region>_<id>")
	ErrInvalidTokenUse   = errors.New(`token use must be "id" or "access"`)
	ErrNoClientID        = errors.New("at least one client id is required")
)

// IssuerFor returns the issuer URL of a user pool.
func IssuerFor(userPoolID string) (string, error) {
	m := userPoolIDPattern.FindStringSubmatch(userPoolID)
	if m == nil {
		return "", ErrInvalidUserPoolID
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", m[1], userPoolID), nil
}

// Verifier verifies Cognito user pool tokens of a single token use.
type Verifier struct {
	*jwtverify.Verifier

	userPoolID string
	tokenUse   TokenUse
}

type config struct {
	groups       []string
	graceSeconds int
	scopes       []string
	customCheck  validator.CustomCheckFunc
	extra        []jwtverify.Option
}

// Option configures the Cognito verifier.
type Option func(*config) error

// WithGroups requires membership in at least one of the given
// cognito:groups values.
func WithGroups(groups ...string) Option {
	return func(c *config) error {
		if len(groups) == 0 {
			return errors.New("at least one group is required")
		}
		c.groups = append([]string(nil), groups...)
		return nil
	}
}

// WithGraceSeconds sets the clock-skew tolerance.
func WithGraceSeconds(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return errors.New("grace seconds cannot be negative")
		}
		c.graceSeconds = n
		return nil
	}
}

// WithScope requires one of the given scopes; meaningful for access
// tokens only.
func WithScope(scopes ...string) Option {
	return func(c *config) error {
		c.scopes = append([]string(nil), scopes...)
		return nil
	}
}

// WithCustomCheck installs a user predicate evaluated last.
func WithCustomCheck(fn validator.CustomCheckFunc) Option {
	return func(c *config) error {
		if fn == nil {
			return errors.New("custom check cannot be nil")
		}
		c.customCheck = fn
		return nil
	}
}

// WithVerifierOptions passes additional options through to the generic
// verifier (cache injection, logging, metrics, clock).
func WithVerifierOptions(opts ...jwtverify.Option) Option {
	return func(c *config) error {
		c.extra = append(c.extra, opts...)
		return nil
	}
}

// New builds a Verifier for one user pool, token use, and client id set.
//
// Example:
//
//	verifier, err := cognito.New("eu-west-1_Ab129faBb", cognito.TokenUseAccess,
//	    []string{"26h7pn3gn1kk3f4cmvenvpb8ba"},
//	    cognito.WithGroups("admins"),
//	)
func New(userPoolID string, tokenUse TokenUse, clientIDs []string, opts ...Option) (*Verifier, error) {
	issuer, err := IssuerFor(userPoolID)
	if err != nil {
		return nil, err
	}
	if tokenUse != TokenUseID && tokenUse != TokenUseAccess {
		return nil, ErrInvalidTokenUse
	}
	if len(clientIDs) == 0 {
		return nil, ErrNoClientID
	}

	cfg := &config{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	issuerOpts := []jwtverify.IssuerOption{
		jwtverify.WithGraceSeconds(cfg.graceSeconds),
		jwtverify.WithChecks(checkTokenUse(tokenUse)),
	}
	if tokenUse == TokenUseID {
		issuerOpts = append(issuerOpts, jwtverify.WithAudience(clientIDs...))
	} else {
		issuerOpts = append(issuerOpts, jwtverify.WithChecks(checkClientID(clientIDs)))
	}
	if len(cfg.groups) > 0 {
		issuerOpts = append(issuerOpts, jwtverify.WithChecks(checkGroups(cfg.groups)))
	}
	if len(cfg.scopes) > 0 {
		issuerOpts = append(issuerOpts, jwtverify.WithScope(cfg.scopes...))
	}
	if cfg.customCheck != nil {
		issuerOpts = append(issuerOpts, jwtverify.WithCustomCheck(cfg.customCheck))
	}

	verifierOpts := append([]jwtverify.Option{
		jwtverify.WithIssuer(issuer, issuerOpts...),
	}, cfg.extra...)

	inner, err := jwtverify.New(verifierOpts...)
	if err != nil {
		return nil, err
	}
	return &Verifier{Verifier: inner, userPoolID: userPoolID, tokenUse: tokenUse}, nil
}

// checkTokenUse requires the token_use claim to match the verifier kind.
func checkTokenUse(want TokenUse) validator.Check {
	return func(ctx context.Context, claims *validator.Claims) error {
		got, _ := claims.StringClaim("token_use")
		if got != string(want) {
			return jwterror.Newf(jwterror.KindJwtCustomCheckFailed, "token_use %q, expected %q", got, want)
		}
		return nil
	}
}

// checkClientID requires the client_id claim of an access token to match
// one of the configured client ids.
func checkClientID(clientIDs []string) validator.Check {
	return func(ctx context.Context, claims *validator.Claims) error {
		got, _ := claims.StringClaim("client_id")
		for _, id := range clientIDs {
			if got == id {
				return nil
			}
		}
		return jwterror.Newf(jwterror.KindJwtAudienceNotAllowed, "client_id %q is not allowed", got)
	}
}

// checkGroups requires membership in at least one configured group.
func checkGroups(groups []string) validator.Check {
	return func(ctx context.Context, claims *validator.Claims) error {
		have, _ := claims.StringsClaim("cognito:groups")
		for _, want := range groups {
			for _, got := range have {
				if got == want {
					return nil
				}
			}
		}
		return jwterror.Newf(jwterror.KindJwtCustomCheckFailed, "none of the required groups in %s", strings.Join(groups, ", "))
	}
}
