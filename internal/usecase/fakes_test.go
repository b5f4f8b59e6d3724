package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/bus"
	"github.com/ErlanBelekov/otp-auth/internal/domain"
)

// ---- code store ----

type memEntry struct {
	code      string
	expiresAt time.Time
}

// memCodeStore mirrors the DynamoDB store: per-key atomic, expiry checked on
// read, conditional delete.
type memCodeStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time

	// weakDelete makes Delete unconditional, as on a store without
	// compare-and-delete.
	weakDelete bool
	setErr     error
}

func newMemCodeStore() *memCodeStore {
	return &memCodeStore{entries: make(map[string]memEntry), now: time.Now}
}

func (s *memCodeStore) Set(_ context.Context, key, code string, ttl time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{code: code, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *memCodeStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		return "", domain.ErrCodeNotFound
	}
	return e.code, nil
}

func (s *memCodeStore) Delete(_ context.Context, key, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.weakDelete {
		delete(s.entries, key)
		return nil
	}
	e, ok := s.entries[key]
	if !ok || e.code != code || !s.now().Before(e.expiresAt) {
		return domain.ErrCodeNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *memCodeStore) live(key string) (string, bool) {
	code, err := s.Get(context.Background(), key)
	return code, err == nil
}

// ---- identity store ----

// memIdentityRepo enforces uniqueness on email and records one outbox event
// per successful create, like the Postgres repository.
type memIdentityRepo struct {
	mu      sync.Mutex
	byEmail map[string]*domain.Identity
	nextID  int64
	events  []domain.IdentityCreated

	// createDelay widens the window between lookup and insert.
	createDelay time.Duration
	findErr     error
}

func newMemIdentityRepo() *memIdentityRepo {
	return &memIdentityRepo{byEmail: make(map[string]*domain.Identity)}
}

func (r *memIdentityRepo) FindByIdentifier(_ context.Context, id domain.Identifier) (*domain.Identity, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.byEmail[id.Email]; ok {
		return i, nil
	}
	return nil, domain.ErrIdentityNotFound
}

func (r *memIdentityRepo) FindByID(_ context.Context, id int64) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.byEmail {
		if i.ID == id {
			return i, nil
		}
	}
	return nil, domain.ErrIdentityNotFound
}

func (r *memIdentityRepo) Create(_ context.Context, id domain.Identifier) (*domain.Identity, error) {
	if r.createDelay > 0 {
		time.Sleep(r.createDelay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[id.Email]; ok {
		return nil, domain.ErrConflict
	}
	r.nextID++
	email := id.Email
	i := &domain.Identity{ID: r.nextID, Email: &email, CreatedAt: time.Now()}
	r.byEmail[email] = i
	r.events = append(r.events, domain.NewIdentityCreated(i))
	return i, nil
}

func (r *memIdentityRepo) counts() (identities, events int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byEmail), len(r.events)
}

// ---- bus ----

type fakePublisher struct {
	mu        sync.Mutex
	published []bus.Envelope
	publish   func(ctx context.Context, env bus.Envelope) error
}

func (p *fakePublisher) Publish(ctx context.Context, env bus.Envelope) error {
	if p.publish != nil {
		if err := p.publish(ctx, env); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, env)
	return nil
}

func (p *fakePublisher) envelopes() []bus.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bus.Envelope(nil), p.published...)
}
