package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyLoadID    contextKey = "load_id"
)

// WithRequestID adds the inbound request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts the request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithLoadID adds the artifact load operation ID to context.
func WithLoadID(ctx context.Context, loadID string) context.Context {
	return context.WithValue(ctx, keyLoadID, loadID)
}

// LoadID extracts the load operation ID from context.
func LoadID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyLoadID).(string)
	return v, ok && v != ""
}
