// Package requestid carries a per-request correlation id through contexts so
// handlers, services and the audit log can tag their output with it.
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// Generate returns a fresh request id.
func Generate() string {
	return uuid.New().String()
}

// ToContext stores the request id on the context.
func ToContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// FromContext returns the request id carried by ctx, or "" when none was set.
func FromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// FromContextPtr is the pointer form used by API error payloads, where an
// absent id must serialize as null rather than an empty string.
func FromContextPtr(ctx context.Context) *string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return &requestID
	}
	return nil
}

// FromRequest reads the request id off the HTTP request's context.
func FromRequest(r *http.Request) string {
	return FromContext(r.Context())
}
