package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxColumns = `id, event_type, payload, status, attempts, next_attempt_at,
	locked_until, last_error, published_at, created_at`

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Claim leases due events. A relay that dies mid-publish leaves locked_until
// in the past once the lease runs out, and the row becomes claimable again.
func (r *OutboxRepository) Claim(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET    locked_until = NOW() + make_interval(secs => $2),
		       attempts     = attempts + 1
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE  status          = 'pending'
			  AND  next_attempt_at <= NOW()
			  AND  (locked_until IS NULL OR locked_until < NOW())
			ORDER BY next_attempt_at ASC, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	rows, err := r.pool.Query(ctx, query, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_events
		SET    status = 'published', published_at = NOW(), locked_until = NULL, last_error = NULL
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkRetry(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_events
		SET    last_error = $2, next_attempt_at = $3, locked_until = NULL
		WHERE id = $1 AND status = 'pending'`, id, errMsg, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("reschedule outbox event: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkDead(ctx context.Context, id, errMsg string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_events
		SET    status = 'dead', last_error = $2, locked_until = NULL
		WHERE id = $1`, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark outbox event dead: %w", err)
	}
	return nil
}

func (r *OutboxRepository) PurgePublished(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM outbox_events WHERE status = 'published' AND published_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge outbox events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOutboxEvent(row pgx.Row) (*domain.OutboxEvent, error) {
	var e domain.OutboxEvent
	err := row.Scan(
		&e.ID, &e.EventType, &e.Payload, &e.Status, &e.Attempts, &e.NextAttemptAt,
		&e.LockedUntil, &e.LastError, &e.PublishedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan outbox event: %w", err)
	}
	return &e, nil
}
