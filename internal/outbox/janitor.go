package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/ErlanBelekov/otp-auth/internal/repository"
	"github.com/robfig/cron/v3"
)

// Janitor deletes published outbox rows older than the retention window on a
// cron schedule. Pending and dead rows are never touched.
type Janitor struct {
	repo      repository.OutboxRepository
	schedule  cron.Schedule
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewJanitor(repo repository.OutboxRepository, spec string, retention time.Duration, logger *slog.Logger) (*Janitor, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse purge schedule %q: %w", spec, err)
	}
	return &Janitor{
		repo:      repo,
		schedule:  sched,
		retention: retention,
		logger:    logger.With("component", "outbox_janitor"),
		now:       time.Now,
	}, nil
}

func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("outbox janitor started", "retention", j.retention)

	for {
		next := j.schedule.Next(j.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("outbox janitor shut down")
			return
		case <-timer.C:
			j.purge(ctx)
		}
	}
}

func (j *Janitor) purge(ctx context.Context) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.repo.PurgePublished(ctx, cutoff)
	if err != nil {
		j.logger.Error("purge published outbox events", "error", err)
		return
	}
	metrics.OutboxPurgedTotal.Add(float64(n))
	if n > 0 {
		j.logger.Info("purged published outbox events", "count", n, "cutoff", cutoff)
	}
}
