// Package tracer provides a lightweight tracing abstraction for the session guard.
//
// It defines an internal tracer interface that doesn't depend directly on
// OpenTelemetry APIs, allowing session components to emit distributed traces
// while remaining decoupled from specific tracing implementations.
//
// Implementations:
//   - NoopTracer: For tests (zero overhead)
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording any error that occurred.
	// If err is non-nil, the span is marked as failed.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans for distributed tracing.
// Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span with the given name and attributes.
	// The returned context contains the new span and should be passed to child
	// operations. The span must be ended by calling Span.End().
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used by the session guard.
const (
	SpanBootstrap   = "session.bootstrap"
	SpanLogin       = "session.login"
	SpanSignup      = "session.signup"
	SpanRevalidate  = "session.revalidate"
	SpanBackendCall = "backend.call"
)

// Attribute keys used by the session guard.
const (
	AttrUserID    = "user_id"
	AttrTrigger   = "trigger"
	AttrEndpoint  = "endpoint"
	AttrHTTPCode  = "http.status_code"
	AttrTokenLeft = "token.remaining_ms"
)

// Event names used by the session guard.
const (
	EventInvalidated = "session.invalidated"
)
