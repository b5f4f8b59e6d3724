// Package replicator applies identity.created events to the local replica.
package replicator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/bus"
	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/ErlanBelekov/otp-auth/internal/repository"
)

type Replicator struct {
	repo   repository.ReplicaRepository
	logger *slog.Logger
	now    func() time.Time
}

func New(repo repository.ReplicaRepository, logger *slog.Logger) *Replicator {
	return &Replicator{
		repo:   repo,
		logger: logger.With("component", "replicator"),
		now:    time.Now,
	}
}

// Handle is idempotent: a redelivered event finds the row present and is
// acknowledged without changes.
func (r *Replicator) Handle(ctx context.Context, env bus.Envelope) error {
	var ev domain.IdentityCreated
	if err := env.Decode(&ev); err != nil {
		metrics.ReplicaWritesTotal.WithLabelValues("malformed").Inc()
		return err
	}
	if ev.ID <= 0 {
		metrics.ReplicaWritesTotal.WithLabelValues("malformed").Inc()
		return bus.Permanent(errors.New("identity.created without id"))
	}

	inserted, err := r.repo.InsertIfAbsent(ctx, &domain.ReplicaUser{
		ID:           ev.ID,
		Email:        ev.Email,
		PhoneNumber:  ev.PhoneNumber,
		CreatedAt:    ev.CreatedAt,
		ReplicatedAt: r.now(),
	})
	if err != nil {
		metrics.ReplicaWritesTotal.WithLabelValues("error").Inc()
		return err
	}

	if !inserted {
		metrics.ReplicaWritesTotal.WithLabelValues("duplicate").Inc()
		r.logger.DebugContext(ctx, "identity already replicated", "user_id", ev.ID)
		return nil
	}
	metrics.ReplicaWritesTotal.WithLabelValues("inserted").Inc()
	r.logger.InfoContext(ctx, "identity replicated", "user_id", ev.ID)
	return nil
}
