// Package validator evaluates claim-level assertions against a decoded JWT
// payload: issuer, audience, time bounds, scope, issuer-specific checks,
// and a caller-supplied custom check, in a fixed order.
package validator

import (
	"encoding/json"
	"strings"

	"github.com/oidckit/go-jwt-verify/jwterror"
)

// Claims is the recognized subset of a JWT payload, plus the raw payload
// map for everything else.
type Claims struct {
	Issuer    string
	Subject   string
	Audience  []string
	Expiry    *int64
	NotBefore *int64
	IssuedAt  *int64
	ID        string
	Scope     string

	// Raw is the full decoded payload, claim name to JSON value. It is
	// what a successful verification returns to the caller.
	Raw map[string]any
}

// ParseClaims extracts the recognized claims from a decoded payload map.
// Unknown claims stay available through Raw.
func ParseClaims(payload map[string]any) (*Claims, error) {
	c := &Claims{Raw: payload}

	var err error
	if c.Issuer, err = stringClaim(payload, "iss"); err != nil {
		return nil, err
	}
	if c.Subject, err = stringClaim(payload, "sub"); err != nil {
		return nil, err
	}
	if c.ID, err = stringClaim(payload, "jti"); err != nil {
		return nil, err
	}
	if c.Scope, err = stringClaim(payload, "scope"); err != nil {
		return nil, err
	}
	if c.Audience, err = audienceClaim(payload); err != nil {
		return nil, err
	}
	if c.Expiry, err = numericClaim(payload, "exp"); err != nil {
		return nil, err
	}
	if c.NotBefore, err = numericClaim(payload, "nbf"); err != nil {
		return nil, err
	}
	if c.IssuedAt, err = numericClaim(payload, "iat"); err != nil {
		return nil, err
	}
	return c, nil
}

// StringClaim returns the named claim from Raw when it is a string.
func (c *Claims) StringClaim(name string) (string, bool) {
	v, ok := c.Raw[name].(string)
	return v, ok
}

// StringsClaim returns the named claim as a string list: either a JSON
// string or an array of strings.
func (c *Claims) StringsClaim(name string) ([]string, bool) {
	switch v := c.Raw[name].(type) {
	case string:
		return []string{v}, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Scopes splits the space-delimited scope claim.
func (c *Claims) Scopes() []string {
	if c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

func stringClaim(payload map[string]any, name string) (string, error) {
	v, ok := payload[name]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", jwterror.Newf(jwterror.KindInvalidJwt, "claim %q is not a string", name)
	}
	return s, nil
}

// audienceClaim accepts a scalar string or an array of strings.
func audienceClaim(payload map[string]any) ([]string, error) {
	v, ok := payload["aud"]
	if !ok {
		return nil, nil
	}
	switch aud := v.(type) {
	case string:
		return []string{aud}, nil
	case []any:
		out := make([]string, 0, len(aud))
		for _, e := range aud {
			s, ok := e.(string)
			if !ok {
				return nil, jwterror.New(jwterror.KindInvalidJwt, `claim "aud" contains a non-string member`)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, jwterror.New(jwterror.KindInvalidJwt, `claim "aud" is neither a string nor an array`)
}

func numericClaim(payload map[string]any, name string) (*int64, error) {
	v, ok := payload[name]
	if !ok {
		return nil, nil
	}
	num, ok := v.(json.Number)
	if !ok {
		return nil, jwterror.Newf(jwterror.KindInvalidJwt, "claim %q is not a number", name)
	}
	n, err := num.Int64()
	if err != nil {
		f, ferr := num.Float64()
		if ferr != nil {
			return nil, jwterror.Newf(jwterror.KindInvalidJwt, "claim %q is not numeric", name)
		}
		n = int64(f)
	}
	return &n, nil
}
