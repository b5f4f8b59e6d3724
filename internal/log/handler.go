package log

import (
	"context"
	"log/slog"

	"github.com/ErlanBelekov/otp-auth/internal/bus"
	"github.com/ErlanBelekov/otp-auth/internal/requestid"
)

// ContextHandler wraps an slog.Handler and copies correlation ids from the
// context of each log record: request_id for HTTP requests, event_id for bus
// deliveries.
type ContextHandler struct {
	inner slog.Handler
}

func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := requestid.FromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	if id := bus.EventIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("event_id", id))
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
