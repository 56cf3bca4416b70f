package cognito

import (
	"context"
	"crypto"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtverify "github.com/oidckit/go-jwt-verify"
	"github.com/oidckit/go-jwt-verify/internal/jwtest"
	"github.com/oidckit/go-jwt-verify/jwks"
	"github.com/oidckit/go-jwt-verify/jws"
	"github.com/oidckit/go-jwt-verify/jwterror"
)

const (
	testUserPoolID = "eu-west-1_Ab129faBb"
	testClientID   = "26h7pn3gn1kk3f4cmvenvpb8ba"
)

func TestIssuerFor(t *testing.T) {
	issuer, err := IssuerFor(testUserPoolID)
	require.NoError(t, err)
	assert.Equal(t, "https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_Ab129faBb", issuer)

	for _, bad := range []string{"", "nounderscore", "x_y", "eu-west-1_"} {
		_, err := IssuerFor(bad)
		assert.ErrorIs(t, err, ErrInvalidUserPoolID, "input %q", bad)
	}
}

// poolFixture wires a verifier against a local JWKS endpoint standing in
// for the user pool.
type poolFixture struct {
	signer *jwtest.Signer
	issuer string
}

func newPoolFixture(t *testing.T, tokenUse TokenUse, opts ...Option) (*Verifier, *poolFixture) {
	t.Helper()
	signer, err := jwtest.NewSigner("RS256", "k1")
	require.NoError(t, err)

	key, err := signer.JWK()
	require.NoError(t, err)
	body := jwtest.JWKSJSON(key)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	issuer, err := IssuerFor(testUserPoolID)
	require.NoError(t, err)

	// Point the JWKS endpoint at the local stand-in; everything else is
	// real verifier configuration.
	inner, err := jwks.NewMemoryCache()
	require.NoError(t, err)
	cache := &rewriteCache{inner: inner, to: server.URL}
	opts = append(opts, WithVerifierOptions(jwtverify.WithJwksCache(cache)))

	v, err := New(testUserPoolID, tokenUse, []string{testClientID}, opts...)
	require.NoError(t, err)
	return v, &poolFixture{signer: signer, issuer: issuer}
}

// rewriteCache redirects every JWKS URI to the local test server.
type rewriteCache struct {
	inner jwks.Cache
	to    string
}

func (c *rewriteCache) GetKey(ctx context.Context, jwksURI, kid, alg string) (crypto.PublicKey, jws.Algorithm, error) {
	return c.inner.GetKey(ctx, c.to, kid, alg)
}

func (c *rewriteCache) GetCachedKey(jwksURI, kid, alg string) (crypto.PublicKey, jws.Algorithm, error) {
	return c.inner.GetCachedKey(c.to, kid, alg)
}

func (c *rewriteCache) Hydrate(ctx context.Context, jwksURI string) error {
	return c.inner.Hydrate(ctx, c.to)
}

func (f *poolFixture) sign(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload := map[string]any{
		"iss": f.issuer,
		"exp": time.Now().Unix() + 300,
	}
	for k, v := range claims {
		payload[k] = v
	}
	token, err := f.signer.Sign(payload, nil)
	require.NoError(t, err)
	return token
}

func TestIDTokenVerification(t *testing.T) {
	v, f := newPoolFixture(t, TokenUseID)

	t.Run("valid id token", func(t *testing.T) {
		token := f.sign(t, map[string]any{"token_use": "id", "aud": testClientID})
		payload, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "id", payload["token_use"])
	})

	t.Run("access token rejected", func(t *testing.T) {
		token := f.sign(t, map[string]any{"token_use": "access", "aud": testClientID})
		_, err := v.Verify(context.Background(), token)
		require.Error(t, err)
		assert.True(t, jwterror.IsKind(err, jwterror.KindJwtCustomCheckFailed))
	})

	t.Run("wrong audience rejected", func(t *testing.T) {
		token := f.sign(t, map[string]any{"token_use": "id", "aud": "someone-else"})
		_, err := v.Verify(context.Background(), token)
		require.Error(t, err)
		assert.True(t, jwterror.IsKind(err, jwterror.KindJwtAudienceNotAllowed))
	})

	t.Run("missing token_use rejected", func(t *testing.T) {
		token := f.sign(t, map[string]any{"aud": testClientID})
		_, err := v.Verify(context.Background(), token)
		require.Error(t, err)
		assert.True(t, jwterror.IsKind(err, jwterror.KindJwtCustomCheckFailed))
	})
}

func TestAccessTokenVerification(t *testing.T) {
	v, f := newPoolFixture(t, TokenUseAccess)

	t.Run("valid access token", func(t *testing.T) {
		// Access tokens carry the client id in client_id; aud is absent.
		token := f.sign(t, map[string]any{"token_use": "access", "client_id": testClientID})
		_, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
	})

	t.Run("wrong client_id rejected", func(t *testing.T) {
		token := f.sign(t, map[string]any{"token_use": "access", "client_id": "other"})
		_, err := v.Verify(context.Background(), token)
		require.Error(t, err)
		assert.True(t, jwterror.IsKind(err, jwterror.KindJwtAudienceNotAllowed))
	})

	t.Run("aud is ignored for access tokens", func(t *testing.T) {
		token := f.sign(t, map[string]any{"token_use": "access", "client_id": testClientID, "aud": "irrelevant"})
		_, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
	})
}

func TestGroupMembership(t *testing.T) {
	v, f := newPoolFixture(t, TokenUseAccess, WithGroups("admins", "ops"))

	t.Run("member passes", func(t *testing.T) {
		token := f.sign(t, map[string]any{
			"token_use":      "access",
			"client_id":      testClientID,
			"cognito:groups": []string{"users", "ops"},
		})
		_, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
	})

	t.Run("non-member rejected", func(t *testing.T) {
		token := f.sign(t, map[string]any{
			"token_use":      "access",
			"client_id":      testClientID,
			"cognito:groups": []string{"users"},
		})
		_, err := v.Verify(context.Background(), token)
		require.Error(t, err)
		assert.True(t, jwterror.IsKind(err, jwterror.KindJwtCustomCheckFailed))
	})

	t.Run("missing groups claim rejected", func(t *testing.T) {
		token := f.sign(t, map[string]any{"token_use": "access", "client_id": testClientID})
		_, err := v.Verify(context.Background(), token)
		require.Error(t, err)
	})
}

func TestNewValidation(t *testing.T) {
	t.Run("bad user pool id", func(t *testing.T) {
		_, err := New("garbage", TokenUseID, []string{testClientID})
		assert.ErrorIs(t, err, ErrInvalidUserPoolID)
	})

	t.Run("bad token use", func(t *testing.T) {
		_, err := New(testUserPoolID, TokenUse("refresh"), []string{testClientID})
		assert.ErrorIs(t, err, ErrInvalidTokenUse)
	})

	t.Run("no client ids", func(t *testing.T) {
		_, err := New(testUserPoolID, TokenUseID, nil)
		assert.ErrorIs(t, err, ErrNoClientID)
	})
}
