package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header carries the request id on inbound and outbound HTTP requests.
const Header = "X-Request-ID"

type ctxKey struct{}

func New() string {
	return uuid.NewString()
}

// FromHeader returns the caller-supplied id, or a new one when absent or too long.
func FromHeader(value string) string {
	if value == "" || len(value) > 128 {
		return New()
	}
	return value
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
