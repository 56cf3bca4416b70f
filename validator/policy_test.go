package validator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oidckit/go-jwt-verify/jwterror"
)

func parsePayload(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	require.NoError(t, dec.Decode(&m))
	return m
}

func parseClaims(t *testing.T, raw string) *Claims {
	t.Helper()
	claims, err := ParseClaims(parsePayload(t, raw))
	require.NoError(t, err)
	return claims
}

func fixedNow(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func TestParseClaims(t *testing.T) {
	t.Run("recognized claims", func(t *testing.T) {
		c := parseClaims(t, `{"iss":"https://x/","sub":"alice","aud":"a","exp":100,"nbf":50,"iat":49,"jti":"id1","scope":"read write","custom":true}`)
		assert.Equal(t, "https://x/", c.Issuer)
		assert.Equal(t, "alice", c.Subject)
		assert.Equal(t, []string{"a"}, c.Audience)
		require.NotNil(t, c.Expiry)
		assert.Equal(t, int64(100), *c.Expiry)
		require.NotNil(t, c.NotBefore)
		assert.Equal(t, int64(50), *c.NotBefore)
		assert.Equal(t, "id1", c.ID)
		assert.Equal(t, []string{"read", "write"}, c.Scopes())
		assert.Equal(t, true, c.Raw["custom"])
	})

	t.Run("audience list", func(t *testing.T) {
		c := parseClaims(t, `{"aud":["a","b"]}`)
		assert.Equal(t, []string{"a", "b"}, c.Audience)
	})

	t.Run("bad audience type", func(t *testing.T) {
		_, err := ParseClaims(parsePayload(t, `{"aud":7}`))
		require.Error(t, err)
		assert.True(t, jwterror.IsKind(err, jwterror.KindInvalidJwt))
	})

	t.Run("bad exp type", func(t *testing.T) {
		_, err := ParseClaims(parsePayload(t, `{"exp":"soon"}`))
		require.Error(t, err)
		assert.True(t, jwterror.IsKind(err, jwterror.KindInvalidJwt))
	})
}

func TestAssertOrdering(t *testing.T) {
	// Every check fails at once; the error of the earliest check in the
	// fixed order must surface.
	claims := parseClaims(t, `{"iss":"evil","aud":"other","exp":10,"nbf":2000,"scope":"none"}`)

	policy := Policy{
		Issuers:   []string{"https://x/"},
		Audiences: []string{"a"},
		Scopes:    []string{"read"},
		CustomCheck: func(ctx context.Context, payload map[string]any) error {
			return errors.New("custom boom")
		},
		Now: fixedNow(1000),
	}

	err := policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtIssuerNotAllowed))

	policy.Issuers = []string{"evil"}
	err = policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtAudienceNotAllowed))

	policy.Audiences = []string{"other"}
	err = policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtExpired))

	claims = parseClaims(t, `{"iss":"evil","aud":"other","exp":5000,"nbf":2000,"scope":"none"}`)
	err = policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtNotBefore))

	claims = parseClaims(t, `{"iss":"evil","aud":"other","exp":5000,"nbf":500,"scope":"none"}`)
	err = policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtScopeNotAllowed))

	policy.Scopes = nil
	err = policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtCustomCheckFailed))

	policy.CustomCheck = nil
	require.NoError(t, policy.Assert(context.Background(), claims))
}

func TestAssertExpiryBoundary(t *testing.T) {
	policy := Policy{Now: fixedNow(1000)}

	// exp == now is still valid.
	claims := parseClaims(t, `{"exp":1000}`)
	require.NoError(t, policy.Assert(context.Background(), claims))

	// exp == now-1 is expired at grace 0.
	claims = parseClaims(t, `{"exp":999}`)
	err := policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtExpired))

	// Grace widens the bound.
	policy.GraceSeconds = 5
	require.NoError(t, policy.Assert(context.Background(), claims))

	claims = parseClaims(t, `{"exp":994}`)
	err = policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtExpired))
}

func TestAssertNotBefore(t *testing.T) {
	policy := Policy{Now: fixedNow(1000)}

	claims := parseClaims(t, `{"nbf":1000}`)
	require.NoError(t, policy.Assert(context.Background(), claims))

	claims = parseClaims(t, `{"nbf":1001}`)
	err := policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtNotBefore))

	policy.GraceSeconds = 1
	require.NoError(t, policy.Assert(context.Background(), claims))
}

func TestAssertDisabledChecks(t *testing.T) {
	// Nil issuer and audience lists disable those checks entirely.
	policy := Policy{Now: fixedNow(1000)}
	claims := parseClaims(t, `{"iss":"anyone","aud":"anywhere"}`)
	require.NoError(t, policy.Assert(context.Background(), claims))
}

func TestAssertAudienceShapes(t *testing.T) {
	policy := Policy{Audiences: []string{"b"}, Now: fixedNow(1000)}

	claims := parseClaims(t, `{"aud":["a","b"]}`)
	require.NoError(t, policy.Assert(context.Background(), claims))

	claims = parseClaims(t, `{"aud":"b"}`)
	require.NoError(t, policy.Assert(context.Background(), claims))

	claims = parseClaims(t, `{"aud":"a"}`)
	err := policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtAudienceNotAllowed))

	// Audience configured but claim missing.
	claims = parseClaims(t, `{}`)
	err = policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtAudienceNotAllowed))
}

func TestAssertScope(t *testing.T) {
	policy := Policy{Scopes: []string{"write", "admin"}, Now: fixedNow(1000)}

	claims := parseClaims(t, `{"scope":"read write"}`)
	require.NoError(t, policy.Assert(context.Background(), claims))

	claims = parseClaims(t, `{"scope":"read"}`)
	err := policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtScopeNotAllowed))

	claims = parseClaims(t, `{}`)
	err = policy.Assert(context.Background(), claims)
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtScopeNotAllowed))
}

func TestSpecializationChecksRunBeforeScope(t *testing.T) {
	var order []string
	policy := Policy{
		Scopes: []string{"nope"},
		Checks: []Check{
			func(ctx context.Context, claims *Claims) error {
				order = append(order, "check")
				return nil
			},
		},
		Now: fixedNow(1000),
	}

	err := policy.Assert(context.Background(), parseClaims(t, `{"scope":"read"}`))
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtScopeNotAllowed))
	assert.Equal(t, []string{"check"}, order)
}

func TestCustomCheckWrapsCause(t *testing.T) {
	cause := errors.New("not in tenant")
	policy := Policy{
		CustomCheck: func(ctx context.Context, payload map[string]any) error {
			return cause
		},
		Now: fixedNow(1000),
	}

	err := policy.Assert(context.Background(), parseClaims(t, `{}`))
	assert.True(t, jwterror.IsKind(err, jwterror.KindJwtCustomCheckFailed))
	assert.True(t, errors.Is(err, cause))
}
