// Package corrid propagates a correlation id through context.Context from
// the stream-consumer boundary down through every REST, LLM, and tool
// call, so every log line for a given message can be joined together.
package corrid

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

var key = contextKey{}

// New generates a fresh correlation id.
func New() string {
	return uuid.NewString()
}

// WithCorrelationID returns a context carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, key, id)
}

// FromContext returns the correlation id carried by ctx, or "" if none was
// set.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(key).(string)
	return id
}

// EnsureContext returns ctx unchanged if it already carries a correlation
// id, or a derived context carrying a freshly generated one otherwise —
// used at boundaries where an inbound header might already supply one.
func EnsureContext(ctx context.Context) context.Context {
	if FromContext(ctx) != "" {
		return ctx
	}
	return WithCorrelationID(ctx, New())
}
