package domain

import (
	"time"
)

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxPublished OutboxStatus = "published"
	OutboxDead      OutboxStatus = "dead"
)

// OutboxEvent is an event committed alongside the state change that produced
// it and relayed to the bus afterwards.
type OutboxEvent struct {
	ID        string
	EventType EventType
	Payload   []byte

	Status        OutboxStatus
	Attempts      int
	NextAttemptAt time.Time
	LockedUntil   *time.Time
	LastError     *string
	PublishedAt   *time.Time

	CreatedAt time.Time
}
