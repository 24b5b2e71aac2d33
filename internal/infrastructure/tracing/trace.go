package tracing

import (
	"context"

	"github.com/GriffinCanCode/MixOS/backend/internal/shared/id"
)

// HeaderRequestID carries the request identifier in both directions.
const HeaderRequestID = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID returns a context carrying the request identifier.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID extracts the request identifier, or "" when absent.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// EnsureRequestID returns ctx unchanged when it already carries an
// identifier, otherwise attaches a fresh one.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if rid := RequestID(ctx); rid != "" {
		return ctx, rid
	}
	rid := id.NewRequestID().String()
	return WithRequestID(ctx, rid), rid
}
