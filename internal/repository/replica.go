package repository

import (
	"context"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
)

type ReplicaRepository interface {
	// InsertIfAbsent reports whether a new row was written.
	InsertIfAbsent(ctx context.Context, u *domain.ReplicaUser) (bool, error)
	FindByID(ctx context.Context, id int64) (*domain.ReplicaUser, error)
}
