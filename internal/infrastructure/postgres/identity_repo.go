package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const identityColumns = `id, email, phone_number, created_at`

type IdentityRepository struct {
	pool *pgxpool.Pool
}

func NewIdentityRepository(pool *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func (r *IdentityRepository) FindByIdentifier(ctx context.Context, id domain.Identifier) (*domain.Identity, error) {
	var row pgx.Row
	if id.IsEmail() {
		row = r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, id.Email)
	} else {
		row = r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE phone_number = $1`, id.PhoneNumber)
	}
	return scanIdentity(row)
}

func (r *IdentityRepository) FindByID(ctx context.Context, id int64) (*domain.Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentity(row)
}

// Create inserts the identity and its identity.created outbox row in one
// transaction. The UNIQUE constraints on email and phone_number decide
// concurrent creators; losers get domain.ErrConflict and nothing is written.
func (r *IdentityRepository) Create(ctx context.Context, id domain.Identifier) (created *domain.Identity, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %w", domain.ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx,
		`INSERT INTO identities (email, phone_number) VALUES ($1, $2)
		RETURNING `+identityColumns,
		nullIfEmpty(id.Email), nullIfEmpty(id.PhoneNumber),
	)
	created, err = scanIdentity(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrConflict
		}
		return nil, err
	}

	payload, err := json.Marshal(domain.NewIdentityCreated(created))
	if err != nil {
		return nil, fmt.Errorf("marshal identity event: %w", err)
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO outbox_events (id, event_type, payload) VALUES ($1, $2, $3)`,
		uuid.NewString(), string(domain.EventIdentityCreated), payload,
	); err != nil {
		return nil, fmt.Errorf("%w: insert outbox event: %w", domain.ErrUnavailable, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit tx: %w", domain.ErrUnavailable, err)
	}
	return created, nil
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var i domain.Identity
	err := row.Scan(&i.ID, &i.Email, &i.PhoneNumber, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIdentityNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan identity: %w", domain.ErrUnavailable, err)
	}
	return &i, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
