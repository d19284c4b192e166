package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "campusmarket/internal/app/outbox"
	infraoutbox "campusmarket/internal/infra/outbox"
)

// Outbox keeps fan-out records in memory and serves the delivery worker's
// claim/ack surface.
type Outbox struct {
	mu      sync.Mutex
	records []*infraoutbox.EventDocument
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, &infraoutbox.EventDocument{
		ID:          record.ID,
		Name:        record.Name,
		Payload:     record.Payload,
		OccurredAt:  record.OccurredAt,
		Aggregate:   record.Aggregate,
		Headers:     record.Headers,
		State:       "NEW",
		NextAttempt: time.Now().UTC(),
	})
	return nil
}

func (o *Outbox) Claim(ctx context.Context, workerID string) (*infraoutbox.EventDocument, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now().UTC()
	for _, doc := range o.records {
		if (doc.State == "NEW" || doc.State == "FAILED") && !doc.NextAttempt.After(now) {
			doc.State = "CLAIMED"
			doc.ClaimedBy = workerID
			doc.ClaimedAt = now
			dup := *doc
			return &dup, nil
		}
	}
	return nil, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, doc := range o.records {
		if doc.ID == id {
			doc.State = "SENT"
			doc.SentAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, doc := range o.records {
		if doc.ID == id {
			doc.State = "FAILED"
			doc.NextAttempt = next
			doc.LastError = errMsg
			doc.Attempts++
			return nil
		}
	}
	return nil
}

// Pending returns the records not yet marked sent, for tests and diagnostics.
func (o *Outbox) Pending() []infraoutbox.EventDocument {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]infraoutbox.EventDocument, 0, len(o.records))
	for _, doc := range o.records {
		if doc.State != "SENT" {
			out = append(out, *doc)
		}
	}
	return out
}

// All returns every record regardless of state.
func (o *Outbox) All() []infraoutbox.EventDocument {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]infraoutbox.EventDocument, 0, len(o.records))
	for _, doc := range o.records {
		out = append(out, *doc)
	}
	return out
}

var (
	_ appoutbox.Outbox  = (*Outbox)(nil)
	_ infraoutbox.Queue = (*Outbox)(nil)
)
