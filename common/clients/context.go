package clients

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// BearerTokenKey is the context key for the Authorization bearer token
	BearerTokenKey contextKey = "bearer-token"

	// RequestIDKey is the context key for the X-Request-ID header
	RequestIDKey contextKey = "request-id"
)

// WithBearerToken adds a bearer token to the context
// This will be automatically added as Authorization header in HTTP requests
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, BearerTokenKey, token)
}

// GetBearerToken retrieves the bearer token from context
func GetBearerToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(BearerTokenKey).(string)
	return token, ok && token != ""
}

// WithRequestID adds a request id to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request id from context
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RequestIDKey).(string)
	return id, ok && id != ""
}
