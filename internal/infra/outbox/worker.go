package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainchat "campusmarket/internal/domain/chat"
	"campusmarket/internal/infra/notify"
)

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")

// Worker drains the fan-out queue and delivers message notifications to the
// email endpoint and the push dispatcher. Delivery is best-effort and fully
// decoupled from the message write: failures here are logged, retried with
// backoff and never surfaced to the sender.
type Worker struct {
	Queue    Queue
	Email    notify.EmailSender
	Push     notify.PushDispatcher
	Logger   *slog.Logger
	Interval time.Duration
	Backoff  []time.Duration
	BaseURL  string
	ID       string
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Queue == nil {
		return ErrWorkerNotConfigured
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// ProcessOnce claims at most one record and delivers it. Only queue errors
// propagate; delivery errors are folded into the record's state.
func (w *Worker) ProcessOnce(ctx context.Context) error {
	doc, err := w.Queue.Claim(ctx, w.workerID())
	if err != nil || doc == nil {
		return err
	}
	if doc.Name != domainchat.MessageSentEventName {
		w.warn("skipping unknown outbox record", nil, "record_id", doc.ID, "name", doc.Name)
		return w.Queue.MarkSent(ctx, doc.ID)
	}
	var event domainchat.MessageSentEvent
	if err := json.Unmarshal(doc.Payload, &event); err != nil {
		w.warn("undecodable outbox record", err, "record_id", doc.ID)
		return w.Queue.MarkFailed(ctx, doc.ID, w.nextRetry(doc.Attempts), err.Error())
	}

	attempted, failed := w.deliver(ctx, event)
	if attempted > 0 && failed == attempted {
		return w.Queue.MarkFailed(ctx, doc.ID, w.nextRetry(doc.Attempts), "all deliveries failed")
	}
	if failed > 0 {
		w.warn("partial notification delivery", nil, "record_id", doc.ID, "failed", failed, "attempted", attempted)
	}
	return w.Queue.MarkSent(ctx, doc.ID)
}

func (w *Worker) deliver(ctx context.Context, event domainchat.MessageSentEvent) (attempted, failed int) {
	for _, recipient := range event.Recipients {
		if w.Email != nil && notify.ValidEmail(recipient.Email) {
			attempted++
			err := w.Email.Send(ctx, notify.EmailRequest{
				RecipientEmail:    recipient.Email,
				RecipientName:     recipient.Name,
				SenderName:        event.SenderName,
				SenderAffiliation: event.SenderAffiliation,
				ListingTitle:      event.ListingTitle,
				MessagePreview:    event.Preview,
				ConversationURL:   w.conversationURL(event.ConversationID),
			})
			if err != nil {
				failed++
				w.warn("email notification failed", err, "recipient_id", recipient.ID, "conversation_id", event.ConversationID)
			}
		}
		if w.Push != nil {
			attempted++
			err := w.Push.Dispatch(ctx, notify.PushNotification{
				RecipientID:    recipient.ID,
				SenderName:     event.SenderName,
				ListingTitle:   event.ListingTitle,
				ConversationID: event.ConversationID,
			})
			if err != nil {
				failed++
				w.warn("push notification failed", err, "recipient_id", recipient.ID, "conversation_id", event.ConversationID)
			}
		}
	}
	return attempted, failed
}

func (w *Worker) conversationURL(conversationID string) string {
	base := strings.TrimRight(w.BaseURL, "/")
	if base == "" {
		base = "http://localhost:3000"
	}
	return base + "/chat/" + conversationID
}

// workerID mints the claim identity once so claimed_by stays stable across
// claims and is traceable in the queue.
func (w *Worker) workerID() string {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return w.ID
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) nextRetry(attempts int) time.Time {
	if attempts < len(w.Backoff) {
		return time.Now().Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return time.Now().Add(w.Backoff[len(w.Backoff)-1])
	}
	return time.Now().Add(5 * time.Second)
}

func (w *Worker) warn(msg string, err error, attrs ...any) {
	if w.Logger == nil {
		return
	}
	if err != nil {
		attrs = append([]any{"error", err}, attrs...)
	}
	w.Logger.Warn(msg, attrs...)
}
