package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okVerify(payload map[string]any) VerifyFunc {
	return func(ctx context.Context, token string) (map[string]any, error) {
		return payload, nil
	}
}

func failVerify(err error) VerifyFunc {
	return func(ctx context.Context, token string) (map[string]any, error) {
		return nil, err
	}
}

func protectedHandler(t *testing.T, sawClaims *map[string]any) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := ClaimsFromContext(r.Context())
		if err == nil && sawClaims != nil {
			*sawClaims = claims
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestCheckJWT(t *testing.T) {
	t.Run("valid token reaches the handler with claims", func(t *testing.T) {
		var saw map[string]any
		m, err := New(WithVerifyFunc(okVerify(map[string]any{"sub": "alice"})))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer sometoken")
		rec := httptest.NewRecorder()

		m.CheckJWT(protectedHandler(t, &saw)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", saw["sub"])
	})

	t.Run("missing token yields 400", func(t *testing.T) {
		m, err := New(WithVerifyFunc(okVerify(nil)))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		m.CheckJWT(protectedHandler(t, nil)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid token yields 401", func(t *testing.T) {
		m, err := New(WithVerifyFunc(failVerify(errors.New("expired"))))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer sometoken")
		rec := httptest.NewRecorder()

		m.CheckJWT(protectedHandler(t, nil)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("credentials optional lets empty through without claims", func(t *testing.T) {
		var handlerRan bool
		m, err := New(
			WithVerifyFunc(okVerify(nil)),
			WithCredentialsOptional(true),
		)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		m.CheckJWT(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerRan = true
			_, err := ClaimsFromContext(r.Context())
			assert.ErrorIs(t, err, ErrClaimsNotFound)
		})).ServeHTTP(rec, req)

		assert.True(t, handlerRan)
	})

	t.Run("malformed Authorization header is an extraction error", func(t *testing.T) {
		m, err := New(WithVerifyFunc(okVerify(nil)))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()

		m.CheckJWT(protectedHandler(t, nil)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("custom error handler sees ErrJWTInvalid", func(t *testing.T) {
		var got error
		m, err := New(
			WithVerifyFunc(failVerify(errors.New("nope"))),
			WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
				got = err
				w.WriteHeader(http.StatusTeapot)
			}),
		)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer sometoken")
		rec := httptest.NewRecorder()

		m.CheckJWT(protectedHandler(t, nil)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.True(t, errors.Is(got, ErrJWTInvalid))
	})

	t.Run("verify func is required", func(t *testing.T) {
		_, err := New()
		assert.ErrorIs(t, err, ErrVerifyFuncNil)
	})
}

func TestExtractors(t *testing.T) {
	t.Run("auth header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		token, err := AuthHeaderTokenExtractor(req)
		require.NoError(t, err)
		assert.Equal(t, "abc", token)
	})

	t.Run("auth header case insensitive scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer abc")
		token, err := AuthHeaderTokenExtractor(req)
		require.NoError(t, err)
		assert.Equal(t, "abc", token)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: "abc"})
		token, err := CookieTokenExtractor("token")(req)
		require.NoError(t, err)
		assert.Equal(t, "abc", token)
	})

	t.Run("missing cookie is not an error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		token, err := CookieTokenExtractor("token")(req)
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?access_token=abc", nil)
		token, err := ParameterTokenExtractor("access_token")(req)
		require.NoError(t, err)
		assert.Equal(t, "abc", token)
	})

	t.Run("multi extractor takes first hit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?tok=fromquery", nil)
		ex := MultiTokenExtractor(
			AuthHeaderTokenExtractor,
			ParameterTokenExtractor("tok"),
		)
		token, err := ex(req)
		require.NoError(t, err)
		assert.Equal(t, "fromquery", token)
	})
}
