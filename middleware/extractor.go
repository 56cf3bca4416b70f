package middleware

import (
	"errors"
	"net/http"
	"strings"
)

// TokenExtractor pulls a raw token out of a request. An error means a
// token was present but malformed; a missing token is reported as an
// empty string with a nil error.
type TokenExtractor func(r *http.Request) (string, error)

// AuthHeaderTokenExtractor extracts the token from a Bearer
// Authorization header.
func AuthHeaderTokenExtractor(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", nil // No error, just no JWT.
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("Authorization header format must be Bearer {token}")
	}
	return parts[1], nil
}

// CookieTokenExtractor builds a TokenExtractor reading the named cookie.
func CookieTokenExtractor(cookieName string) TokenExtractor {
	return func(r *http.Request) (string, error) {
		cookie, err := r.Cookie(cookieName)
		if errors.Is(err, http.ErrNoCookie) {
			return "", nil // No cookie, then no JWT, so no error.
		}
		return cookie.Value, nil
	}
}

// ParameterTokenExtractor builds a TokenExtractor reading a query
// parameter.
func ParameterTokenExtractor(param string) TokenExtractor {
	return func(r *http.Request) (string, error) {
		return r.URL.Query().Get(param), nil
	}
}

// MultiTokenExtractor tries each extractor in order and returns the first
// non-empty token. An extractor error aborts the chain.
func MultiTokenExtractor(extractors ...TokenExtractor) TokenExtractor {
	return func(r *http.Request) (string, error) {
		for _, ex := range extractors {
			token, err := ex(r)
			if err != nil {
				return "", err
			}
			if token != "" {
				return token, nil
			}
		}
		return "", nil
	}
}
