// Package echomiddleware adapts the JWT middleware to echo.
package echomiddleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/oidckit/go-jwt-verify/middleware"
)

// DefaultClaimsKey is the echo context key claims are stored under.
const DefaultClaimsKey = "jwt"

// Config holds the echo-specific knobs.
type Config struct {
	errorHandler   func(echo.Context, error) error
	contextKey     string
	tokenExtractor middleware.TokenExtractor
}

// Option configures the echo middleware.
type Option func(*Config)

// WithErrorHandler replaces the default 401 JSON error handler.
func WithErrorHandler(h func(echo.Context, error) error) Option {
	return func(c *Config) { c.errorHandler = h }
}

// WithContextKey changes the echo context key claims are stored under.
func WithContextKey(key string) Option {
	return func(c *Config) { c.contextKey = key }
}

// WithTokenExtractor replaces the default Authorization-header extractor.
func WithTokenExtractor(e middleware.TokenExtractor) Option {
	return func(c *Config) { c.tokenExtractor = e }
}

// New builds an echo.MiddlewareFunc verifying the request token with
// verify.
func New(verify middleware.VerifyFunc, opts ...Option) echo.MiddlewareFunc {
	config := &Config{
		errorHandler: defaultErrorHandler,
		contextKey:   DefaultClaimsKey,
	}
	for _, opt := range opts {
		opt(config)
	}

	extractor := config.tokenExtractor
	if extractor == nil {
		extractor = middleware.AuthHeaderTokenExtractor
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := extractor(c.Request())
			if err != nil {
				return config.errorHandler(c, err)
			}
			if token == "" {
				return config.errorHandler(c, middleware.ErrJWTMissing)
			}

			payload, err := verify(c.Request().Context(), token)
			if err != nil {
				return config.errorHandler(c, err)
			}

			c.Set(config.contextKey, payload)
			c.SetRequest(c.Request().Clone(middleware.NewContextWithClaims(c.Request().Context(), payload)))
			return next(c)
		}
	}
}

func defaultErrorHandler(c echo.Context, err error) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error": err.Error(),
	})
}

// GetClaims retrieves the decoded payload from an echo context.
func GetClaims(c echo.Context, contextKey string) (map[string]any, error) {
	if contextKey == "" {
		contextKey = DefaultClaimsKey
	}
	payload, ok := c.Get(contextKey).(map[string]any)
	if !ok {
		return nil, middleware.ErrClaimsNotFound
	}
	return payload, nil
}
