package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
)

type IdentityRepository interface {
	FindByIdentifier(ctx context.Context, id domain.Identifier) (*domain.Identity, error)
	FindByID(ctx context.Context, id int64) (*domain.Identity, error)
	// Create inserts the identity and its identity.created outbox event in a
	// single transaction. Returns domain.ErrConflict when the identifier is taken.
	Create(ctx context.Context, id domain.Identifier) (*domain.Identity, error)
}

type OutboxRepository interface {
	// Claim leases up to limit due pending events for the given duration.
	Claim(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error
	MarkDead(ctx context.Context, id, errMsg string) error
	PurgePublished(ctx context.Context, before time.Time) (int64, error)
}
