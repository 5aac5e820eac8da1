// Package requestctx provides request-scoped values (trace id, API client)
// set by middleware.
package requestctx

import "context"

// contextKey carries a name so each key is a distinct non-zero-size value;
// pointers to zero-size structs may compare equal in Go.
type contextKey struct{ name string }

var (
	traceIDKey  = &contextKey{"traceID"}
	clientIDKey = &contextKey{"clientID"}
)

// SetTraceID stores the trace id in the context.
func SetTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the trace id from context, or "" if not set.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// SetClientID stores the authenticated API client name in the context.
func SetClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// ClientID returns the API client name from context, or "" if not set.
func ClientID(ctx context.Context) string {
	v, _ := ctx.Value(clientIDKey).(string)
	return v
}
