package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"campusmarket/internal/domain/shared/events"
)

// EventRecord is one pending fan-out delivery.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

// Outbox accepts records for asynchronous delivery. Implementations persist
// them in the same transaction as the write that produced them.
type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
}

// Encode turns a domain event into a deliverable record.
func Encode(ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{
		ID:         uuid.NewString(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt(),
		Aggregate:  ev.AggregateID(),
		Headers:    map[string]string{},
	}, nil
}
