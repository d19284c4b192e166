package events

import "time"

// DomainEvent is the contract every outbox payload satisfies.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}
