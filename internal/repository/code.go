package repository

import (
	"context"
	"time"
)

// CodeStore holds at most one live code per key. All operations are atomic
// per key only.
type CodeStore interface {
	// Set creates or replaces the code for key. Last write wins.
	Set(ctx context.Context, key, code string, ttl time.Duration) error
	// Get returns domain.ErrCodeNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// Delete removes key only while it still holds code, and returns
	// domain.ErrCodeNotFound otherwise.
	Delete(ctx context.Context, key, code string) error
}
