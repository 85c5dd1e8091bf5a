package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	policyIDKey  contextKey = "policy_id"
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithPolicyID adds a policy id to the context.
func WithPolicyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, policyIDKey, id)
}

// WithActor adds the acting user (or "scheduler") to the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// WithRequestID adds a request id to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// FromContext returns base (or slog.Default) with the context identifiers
// attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if fields := contextFields(ctx); len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}

func contextFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	var fields []any
	for _, key := range []contextKey{requestIDKey, policyIDKey, actorKey} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}
	return fields
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
