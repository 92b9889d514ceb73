package obslog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/assistant-core/internal/corrid"
)

// Logger wraps a *slog.Logger and attaches a monotonic sequence number
// plus the ambient correlation id to every emitted event.
type Logger struct {
	slog     *slog.Logger
	sequence atomic.Uint64
	service  string
}

// New returns a Logger that writes structured events tagged with service
// (e.g. "orchestrator", "scheduler", "memoryextractor") through base.
func New(base *slog.Logger, service string) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{slog: base, service: service}
}

// Event logs a single structured observability event. attrs are additional
// slog key-value pairs appended after the fixed envelope fields.
func (l *Logger) Event(ctx context.Context, evt EventType, msg string, attrs ...any) {
	seq := l.sequence.Add(1)
	base := []any{
		"event_type", string(evt),
		"service", l.service,
		"seq", seq,
		"time", time.Now().UTC(),
	}
	if id := corrid.FromContext(ctx); id != "" {
		base = append(base, "correlation_id", id)
	}
	l.slog.Info(msg, append(base, attrs...)...)
}

// Error logs an error-kind event at slog's Error level.
func (l *Logger) Error(ctx context.Context, evt EventType, msg string, err error, attrs ...any) {
	seq := l.sequence.Add(1)
	base := []any{
		"event_type", string(evt),
		"service", l.service,
		"seq", seq,
		"time", time.Now().UTC(),
		"error", err,
	}
	if id := corrid.FromContext(ctx); id != "" {
		base = append(base, "correlation_id", id)
	}
	l.slog.Error(msg, append(base, attrs...)...)
}

// With returns a Logger that appends fixed attrs to every subsequent event,
// e.g. per-consumer-loop fields like consumer_id.
func (l *Logger) With(attrs ...any) *Logger {
	return &Logger{slog: l.slog.With(attrs...), service: l.service}
}
