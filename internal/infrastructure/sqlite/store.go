// Package sqlite is the user service's local replica of canonical identities.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

type ReplicaStore struct {
	db  *sql.DB
	now func() time.Time
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens (creating if needed) the replica database at path and applies
// the schema.
func Open(ctx context.Context, path string) (*ReplicaStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("replica db path is required")
	}
	clean := filepath.Clean(path)
	if dir := filepath.Dir(clean); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create replica dir: %w", err)
		}
	}

	dsn := clean + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer avoids SQLITE_BUSY between concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply replica schema: %w", err)
	}

	return &ReplicaStore{db: db, now: time.Now}, nil
}

func (s *ReplicaStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *ReplicaStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertIfAbsent writes u unless a row with the same canonical id exists.
// Applying the same identity any number of times leaves exactly one row.
func (s *ReplicaStore) InsertIfAbsent(ctx context.Context, u *domain.ReplicaUser) (bool, error) {
	replicatedAt := u.ReplicatedAt
	if replicatedAt.IsZero() {
		replicatedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, phone_number, created_at, replicated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		u.ID, nullString(u.Email), nullString(u.PhoneNumber), toMillis(u.CreatedAt), toMillis(replicatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("%w: insert replica user: %w", domain.ErrUnavailable, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *ReplicaStore) FindByID(ctx context.Context, id int64) (*domain.ReplicaUser, error) {
	var (
		u                   domain.ReplicaUser
		email, phone        sql.NullString
		created, replicated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, phone_number, created_at, replicated_at
		FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &email, &phone, &created, &replicated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find replica user: %w", domain.ErrUnavailable, err)
	}

	if email.Valid {
		u.Email = &email.String
	}
	if phone.Valid {
		u.PhoneNumber = &phone.String
	}
	u.CreatedAt = fromMillis(created)
	u.ReplicatedAt = fromMillis(replicated)
	return &u, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
