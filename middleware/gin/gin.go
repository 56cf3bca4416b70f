// Package ginmiddleware adapts the JWT middleware to gin.
package ginmiddleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oidckit/go-jwt-verify/middleware"
)

// DefaultClaimsKey is the gin context key claims are stored under.
const DefaultClaimsKey = "jwt"

// Config holds the gin-specific knobs.
type Config struct {
	errorHandler   func(*gin.Context, error)
	contextKey     string
	tokenExtractor middleware.TokenExtractor
}

// Option configures the gin middleware.
type Option func(*Config)

// WithErrorHandler replaces the default 401 JSON error handler.
func WithErrorHandler(h func(*gin.Context, error)) Option {
	return func(c *Config) { c.errorHandler = h }
}

// WithContextKey changes the gin context key claims are stored under.
func WithContextKey(key string) Option {
	return func(c *Config) { c.contextKey = key }
}

// WithTokenExtractor replaces the default Authorization-header extractor.
func WithTokenExtractor(e middleware.TokenExtractor) Option {
	return func(c *Config) { c.tokenExtractor = e }
}

// New builds a gin.HandlerFunc verifying the request token with verify.
//
// Example:
//
//	router.Use(ginmiddleware.New(func(ctx context.Context, token string) (map[string]any, error) {
//	    return verifier.Verify(ctx, token)
//	}))
func New(verify middleware.VerifyFunc, opts ...Option) gin.HandlerFunc {
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

	return func(c *gin.Context) {
		token, err := extractor(c.Request)
		if err != nil {
			config.errorHandler(c, err)
			return
		}
		if token == "" {
			config.errorHandler(c, middleware.ErrJWTMissing)
			return
		}

		payload, err := verify(c.Request.Context(), token)
		if err != nil {
			config.errorHandler(c, err)
			return
		}

		c.Set(config.contextKey, payload)
		c.Request = c.Request.Clone(middleware.NewContextWithClaims(c.Request.Context(), payload))
		c.Next()
	}
}

func defaultErrorHandler(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": err.Error(),
	})
}

// GetClaims retrieves the decoded payload from a gin context.
func GetClaims(c *gin.Context, contextKey string) (map[string]any, error) {
	if contextKey == "" {
		contextKey = DefaultClaimsKey
	}
	claims, exists := c.Get(contextKey)
	if !exists {
		return nil, middleware.ErrClaimsNotFound
	}
	payload, ok := claims.(map[string]any)
	if !ok {
		return nil, middleware.ErrClaimsNotFound
	}
	return payload, nil
}
