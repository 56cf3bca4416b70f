// Package middleware guards net/http handlers with JWT verification.
// Framework adapters for gin, echo, and gRPC live in subpackages.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrJWTMissing is returned when no token is present on the request.
	ErrJWTMissing = errors.New("jwt missing")

	// ErrJWTInvalid is returned when the token fails verification.
	ErrJWTInvalid = errors.New("jwt invalid")

	// ErrClaimsNotFound is returned when no claims are stored in a context.
	ErrClaimsNotFound = errors.New("claims not found in context")
)

// contextKey is the private key type for claims stored in a request
// context.
type contextKey struct{}

// VerifyFunc verifies a raw token and returns the decoded payload.
type VerifyFunc func(ctx context.Context, token string) (map[string]any, error)

// Middleware wraps HTTP handlers with token extraction and verification.
type Middleware struct {
	verify              VerifyFunc
	errorHandler        ErrorHandler
	tokenExtractor      TokenExtractor
	credentialsOptional bool
}

// Option configures the Middleware.
type Option func(*Middleware) error

// Sentinel errors for configuration validation.
var (
	ErrVerifyFuncNil     = errors.New("verify function cannot be nil (use WithVerifyFunc)")
	ErrErrorHandlerNil   = errors.New("error handler cannot be nil")
	ErrTokenExtractorNil = errors.New("token extractor cannot be nil")
)

// WithVerifyFunc sets the verification function (required). Wrap the
// Verify method of a configured verifier:
//
//	m, err := middleware.New(middleware.WithVerifyFunc(
//	    func(ctx context.Context, token string) (map[string]any, error) {
//	        return verifier.Verify(ctx, token)
//	    },
//	))
func WithVerifyFunc(fn VerifyFunc) Option {
	return func(m *Middleware) error {
		if fn == nil {
			return ErrVerifyFuncNil
		}
		m.verify = fn
		return nil
	}
}

// WithErrorHandler replaces the default error handler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(m *Middleware) error {
		if h == nil {
			return ErrErrorHandlerNil
		}
		m.errorHandler = h
		return nil
	}
}

// WithTokenExtractor replaces the default Authorization-header extractor.
func WithTokenExtractor(e TokenExtractor) Option {
	return func(m *Middleware) error {
		if e == nil {
			return ErrTokenExtractorNil
		}
		m.tokenExtractor = e
		return nil
	}
}

// WithCredentialsOptional lets requests without a token through,
// with no claims set on the context.
func WithCredentialsOptional(optional bool) Option {
	return func(m *Middleware) error {
		m.credentialsOptional = optional
		return nil
	}
}

// New builds a Middleware.
func New(opts ...Option) (*Middleware, error) {
	m := &Middleware{
		errorHandler:   DefaultErrorHandler,
		tokenExtractor: AuthHeaderTokenExtractor,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	if m.verify == nil {
		return nil, ErrVerifyFuncNil
	}
	return m, nil
}

// CheckJWT wraps next, rejecting requests whose token is missing or fails
// verification. On success the decoded payload is stored in the request
// context; retrieve it with ClaimsFromContext.
func (m *Middleware) CheckJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := m.tokenExtractor(r)
		if err != nil {
			m.errorHandler(w, r, fmt.Errorf("error extracting token: %w", err))
			return
		}

		if token == "" {
			if m.credentialsOptional {
				next.ServeHTTP(w, r)
				return
			}
			m.errorHandler(w, r, ErrJWTMissing)
			return
		}

		payload, err := m.verify(r.Context(), token)
		if err != nil {
			m.errorHandler(w, r, &invalidError{details: err})
			return
		}

		r = r.Clone(NewContextWithClaims(r.Context(), payload))
		next.ServeHTTP(w, r)
	})
}

// NewContextWithClaims stores a decoded payload in a context.
func NewContextWithClaims(ctx context.Context, payload map[string]any) context.Context {
	return context.WithValue(ctx, contextKey{}, payload)
}

// ClaimsFromContext retrieves the decoded payload stored by CheckJWT.
func ClaimsFromContext(ctx context.Context) (map[string]any, error) {
	payload, ok := ctx.Value(contextKey{}).(map[string]any)
	if !ok {
		return nil, ErrClaimsNotFound
	}
	return payload, nil
}

// invalidError wraps a verification failure so callers can match
// ErrJWTInvalid with errors.Is while still unwrapping the cause.
type invalidError struct {
	details error
}

func (e *invalidError) Is(target error) bool {
	return target == ErrJWTInvalid
}

func (e *invalidError) Error() string {
	return fmt.Sprintf("%s: %s", ErrJWTInvalid, e.details)
}

func (e *invalidError) Unwrap() error {
	return e.details
}
