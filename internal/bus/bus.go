// Package bus defines the at-least-once event bus contract shared by the
// publishing and consuming services.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/google/uuid"
)

// Envelope is the wire format of every bus message.
type Envelope struct {
	ID        string           `json:"id"`
	Type      domain.EventType `json:"type"`
	EmittedAt time.Time        `json:"emitted_at"`
	Payload   json.RawMessage  `json:"payload"`
}

func NewEnvelope(eventType domain.EventType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		EmittedAt: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Decode unmarshals the payload into v. Failures are permanent: redelivering
// the same bytes will not help.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", e.Type, err))
	}
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Handler processes one delivery. Handlers must be idempotent; a non-nil,
// non-permanent error leaves the message on the bus for redelivery.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

type HandlerFunc func(ctx context.Context, env Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Mux routes envelopes to handlers by event type.
type Mux struct {
	handlers map[domain.EventType]Handler
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[domain.EventType]Handler)}
}

func (m *Mux) Register(eventType domain.EventType, h Handler) {
	m.handlers[eventType] = h
}

func (m *Mux) Handle(ctx context.Context, env Envelope) error {
	h, ok := m.handlers[env.Type]
	if !ok {
		return Permanent(fmt.Errorf("no handler for event type %q", env.Type))
	}
	return h.Handle(ctx, env)
}

type ctxKey struct{}

func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// EventIDFromContext returns "" if absent.
func EventIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
