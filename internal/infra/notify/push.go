package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// PushNotification is the per-recipient payload the push dispatch service
// consumes.
type PushNotification struct {
	RecipientID    string `json:"recipient_id"`
	SenderName     string `json:"sender_name"`
	ListingTitle   string `json:"listing_title"`
	ConversationID string `json:"conversation_id"`
}

// PushDispatcher hands a notification to the push service. Best-effort.
type PushDispatcher interface {
	Dispatch(ctx context.Context, notification PushNotification) error
}

// Producer is the broker publish surface the Kafka dispatcher rides on.
type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// KafkaPush publishes push notifications to the dispatch topic, keyed by
// recipient so one user's notifications stay ordered.
type KafkaPush struct {
	Producer Producer
	Topic    string
}

func (p *KafkaPush) Dispatch(ctx context.Context, notification PushNotification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("notify: encode push notification: %w", err)
	}
	topic := p.Topic
	if topic == "" {
		topic = "chat.push.v1"
	}
	return p.Producer.Publish(ctx, topic, notification.RecipientID, payload, map[string]string{
		"content-type": "application/json",
	})
}

var _ PushDispatcher = (*KafkaPush)(nil)
