// Package outbox moves committed outbox rows onto the bus and cleans up
// after them.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/bus"
	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/ErlanBelekov/otp-auth/internal/repository"
)

const (
	defaultLease   = 30 * time.Second
	publishTimeout = 10 * time.Second
)

type Relay struct {
	id           string
	repo         repository.OutboxRepository
	publisher    bus.Publisher
	logger       *slog.Logger
	pollInterval time.Duration
	maxAttempts  int
	lease        time.Duration
	sem          chan struct{}
	wg           sync.WaitGroup
	now          func() time.Time
}

func NewRelay(
	repo repository.OutboxRepository,
	publisher bus.Publisher,
	logger *slog.Logger,
	pollInterval time.Duration,
	concurrency int,
	maxAttempts int,
) *Relay {
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	return &Relay{
		id:           id,
		repo:         repo,
		publisher:    publisher,
		logger:       logger.With("component", "outbox_relay", "relay_id", id),
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		lease:        defaultLease,
		sem:          make(chan struct{}, max(concurrency, 1)),
		now:          time.Now,
	}
}

// Start blocks until ctx is cancelled, then waits for in-flight publishes.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "interval", r.pollInterval, "concurrency", cap(r.sem))

	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			r.logger.Info("outbox relay shut down")
			return
		case <-ticker.C:
			r.relayBatch(ctx)
		}
	}
}

func (r *Relay) relayBatch(ctx context.Context) {
	available := cap(r.sem) - len(r.sem)
	if available == 0 {
		return
	}

	events, err := r.repo.Claim(ctx, available, r.lease)
	if err != nil {
		r.logger.Error("claim outbox events", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	r.logger.Debug("claimed outbox events", "count", len(events))

	for _, ev := range events {
		r.sem <- struct{}{}
		r.wg.Add(1)
		go func(e *domain.OutboxEvent) {
			defer r.wg.Done()
			defer func() { <-r.sem }()
			r.relay(ctx, e)
		}(ev)
	}
}

// relay publishes one claimed event. The envelope id is the outbox row id, so
// a crash between publish and MarkPublished redelivers the same id.
func (r *Relay) relay(ctx context.Context, ev *domain.OutboxEvent) {
	env := bus.Envelope{
		ID:        ev.ID,
		Type:      ev.EventType,
		EmittedAt: ev.CreatedAt.UTC(),
		Payload:   ev.Payload,
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	err := r.publisher.Publish(pubCtx, env)
	cancel()

	// Bookkeeping must land even if shutdown started mid-publish.
	markCtx := context.WithoutCancel(ctx)

	if err == nil {
		if err := r.repo.MarkPublished(markCtx, ev.ID); err != nil {
			r.logger.Error("mark outbox event published", "event_id", ev.ID, "error", err)
			return
		}
		metrics.OutboxEventsTotal.WithLabelValues("published").Inc()
		metrics.OutboxPublishLatency.Observe(r.now().Sub(ev.CreatedAt).Seconds())
		r.logger.Info("outbox event published", "event_id", ev.ID, "event_type", ev.EventType)
		return
	}

	errMsg := err.Error()
	if ev.Attempts >= r.maxAttempts {
		if err := r.repo.MarkDead(markCtx, ev.ID, errMsg); err != nil {
			r.logger.Error("mark outbox event dead", "event_id", ev.ID, "error", err)
		}
		metrics.OutboxEventsTotal.WithLabelValues("dead").Inc()
		r.logger.Error("outbox event exhausted retries", "event_id", ev.ID, "event_type", ev.EventType, "attempts", ev.Attempts, "error", errMsg)
		return
	}

	retryAt := r.now().Add(retryDelay(ev.Attempts))
	if err := r.repo.MarkRetry(markCtx, ev.ID, errMsg, retryAt); err != nil {
		r.logger.Error("reschedule outbox event", "event_id", ev.ID, "error", err)
	}
	metrics.OutboxEventsTotal.WithLabelValues("retry").Inc()
	r.logger.Warn("outbox publish failed, will retry",
		"event_id", ev.ID,
		"error", errMsg,
		"attempt", ev.Attempts,
		"max_attempts", r.maxAttempts,
		"retry_at", retryAt,
	)
}

// retryDelay is exponential from 5s, capped at 10m, with ±25% jitter.
func retryDelay(attempts int) time.Duration {
	base := 5 * time.Second
	delay := time.Duration(float64(base) * math.Pow(2, float64(max(attempts-1, 0))))
	delay = min(delay, 10*time.Minute)
	jitter := time.Duration(rand.Int63n(int64(delay/2))) - delay/4
	return delay + jitter
}
