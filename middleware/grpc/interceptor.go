// Package grpcmiddleware provides gRPC server interceptors that verify a
// bearer token carried in request metadata.
package grpcmiddleware

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oidckit/go-jwt-verify/middleware"
)

// TokenExtractor pulls a raw token out of an incoming gRPC context. A
// missing token is reported as an empty string with a nil error.
type TokenExtractor func(ctx context.Context) (string, error)

// MetadataTokenExtractor reads a Bearer token from the authorization
// metadata key.
func MetadataTokenExtractor(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", nil
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", nil
	}
	parts := strings.Fields(values[0])
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", status.Error(codes.Unauthenticated, "authorization metadata format must be Bearer {token}")
	}
	return parts[1], nil
}

// Interceptor verifies tokens on unary and stream calls.
type Interceptor struct {
	verify              middleware.VerifyFunc
	tokenExtractor      TokenExtractor
	credentialsOptional bool
	exclusions          map[string]struct{}
}

// Option configures the Interceptor.
type Option func(*Interceptor)

// WithTokenExtractor replaces the default metadata extractor.
func WithTokenExtractor(e TokenExtractor) Option {
	return func(i *Interceptor) { i.tokenExtractor = e }
}

// WithCredentialsOptional lets calls without a token through, with no
// claims set on the context.
func WithCredentialsOptional(optional bool) Option {
	return func(i *Interceptor) { i.credentialsOptional = optional }
}

// WithExcludedMethods skips verification for the given full method names
// (e.g. "/health.v1.Health/Check").
func WithExcludedMethods(methods ...string) Option {
	return func(i *Interceptor) {
		for _, m := range methods {
			i.exclusions[m] = struct{}{}
		}
	}
}

// New builds an Interceptor around a verification function.
func New(verify middleware.VerifyFunc, opts ...Option) *Interceptor {
	i := &Interceptor{
		verify:         verify,
		tokenExtractor: MetadataTokenExtractor,
		exclusions:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// authenticate extracts and verifies the call's token, returning a
// context carrying the decoded claims.
func (i *Interceptor) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	if _, excluded := i.exclusions[fullMethod]; excluded {
		return ctx, nil
	}

	token, err := i.tokenExtractor(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		if i.credentialsOptional {
			return ctx, nil
		}
		return nil, status.Error(codes.Unauthenticated, "JWT token is missing")
	}

	payload, err := i.verify(ctx, token)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "invalid JWT token: %v", err)
	}
	return middleware.NewContextWithClaims(ctx, payload), nil
}

// UnaryServerInterceptor returns a unary interceptor enforcing token
// verification.
func (i *Interceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		newCtx, err := i.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

// StreamServerInterceptor returns a stream interceptor enforcing token
// verification.
func (i *Interceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		newCtx, err := i.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: newCtx})
	}
}

// wrappedStream overrides the stream context with the authenticated one.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
