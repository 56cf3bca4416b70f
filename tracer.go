package jwtverify

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer is the tracing surface for the verifier. Verify opens one span
// per call; VerifySync and JWKS fetches are not traced.
type Tracer interface {
	StartSpan(ctx context.Context, operationName string) (context.Context, Span)
}

// Span is a single traced operation.
type Span interface {
	Finish()
	SetTag(key string, value interface{})
}

// NoopTracer produces spans that do nothing.
type NoopTracer struct{}

func (t *NoopTracer) StartSpan(ctx context.Context, operationName string) (context.Context, Span) {
	return ctx, &NoopSpan{}
}

// NoopSpan is the span produced by NoopTracer.
type NoopSpan struct{}

func (s *NoopSpan) Finish()                              {}
func (s *NoopSpan) SetTag(key string, value interface{}) {}

// OpenTelemetryTracer adapts an OpenTelemetry tracer to the Tracer surface.
type OpenTelemetryTracer struct {
	tracer oteltrace.Tracer
}

// NewOpenTelemetryTracer wraps an OpenTelemetry tracer.
func NewOpenTelemetryTracer(tracer oteltrace.Tracer) Tracer {
	return &OpenTelemetryTracer{tracer: tracer}
}

func (t *OpenTelemetryTracer) StartSpan(ctx context.Context, operationName string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, operationName)
	return ctx, &openTelemetrySpan{span: span}
}

type openTelemetrySpan struct {
	span oteltrace.Span
}

func (s *openTelemetrySpan) Finish() {
	s.span.End()
}

func (s *openTelemetrySpan) SetTag(key string, value interface{}) {
	s.span.SetAttributes(attribute.String(key, fmt.Sprint(value)))
}
