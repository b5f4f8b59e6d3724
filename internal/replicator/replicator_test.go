package replicator_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/bus"
	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/otp-auth/internal/replicator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func identityEnvelope(t *testing.T, ev domain.IdentityCreated) bus.Envelope {
	t.Helper()
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	return bus.Envelope{ID: "evt-1", Type: domain.EventIdentityCreated, EmittedAt: time.Now().UTC(), Payload: raw}
}

func TestHandle_DuplicateDeliveryYieldsOneRow(t *testing.T) {
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	r := replicator.New(store, discardLogger())
	email := "a@x.com"
	env := identityEnvelope(t, domain.IdentityCreated{ID: 11, Email: &email, CreatedAt: time.Now().UTC()})

	for range 3 {
		require.NoError(t, r.Handle(context.Background(), env))
	}

	got, err := store.FindByID(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.ID)
	assert.Equal(t, "a@x.com", *got.Email)
}

func TestHandle_MalformedIsPermanent(t *testing.T) {
	r := replicator.New(&stubRepo{}, discardLogger())

	err := r.Handle(context.Background(), bus.Envelope{Type: domain.EventIdentityCreated, Payload: json.RawMessage(`[1,2]`)})
	assert.True(t, bus.IsPermanent(err))

	err = r.Handle(context.Background(), identityEnvelope(t, domain.IdentityCreated{}))
	assert.True(t, bus.IsPermanent(err))
}

func TestHandle_StoreErrorIsRetryable(t *testing.T) {
	r := replicator.New(&stubRepo{err: errors.New("disk full")}, discardLogger())

	err := r.Handle(context.Background(), identityEnvelope(t, domain.IdentityCreated{ID: 1}))
	require.Error(t, err)
	assert.False(t, bus.IsPermanent(err))
}

type stubRepo struct {
	err error
}

func (s *stubRepo) InsertIfAbsent(context.Context, *domain.ReplicaUser) (bool, error) {
	return false, s.err
}

func (s *stubRepo) FindByID(context.Context, int64) (*domain.ReplicaUser, error) {
	return nil, domain.ErrIdentityNotFound
}
