package chat

import "time"

// MessageSentEventName is the outbox record name for message fan-out.
const MessageSentEventName = "chat.message_sent"

// Recipient identifies a fan-out target and the snapshot data the side
// channels need.
type Recipient struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// MessageSentEvent is the payload recorded alongside a message write and
// delivered asynchronously to the email and push channels. It carries
// everything the channels need so delivery never reads the store.
type MessageSentEvent struct {
	ConversationID    string      `json:"conversation_id"`
	MessageID         string      `json:"message_id"`
	SenderID          string      `json:"sender_id"`
	SenderName        string      `json:"sender_name"`
	SenderAffiliation string      `json:"sender_affiliation,omitempty"`
	ListingTitle      string      `json:"listing_title"`
	Preview           string      `json:"preview"`
	Recipients        []Recipient `json:"recipients"`
	SentAt            time.Time   `json:"sent_at"`
}

// EventName implements the outbox domain-event contract.
func (e MessageSentEvent) EventName() string { return MessageSentEventName }

// AggregateID implements the outbox domain-event contract.
func (e MessageSentEvent) AggregateID() string { return e.ConversationID }

// OccurredAt implements the outbox domain-event contract.
func (e MessageSentEvent) OccurredAt() time.Time { return e.SentAt }

// NewMessageSentEvent derives the fan-out payload for msg within conv.
func NewMessageSentEvent(conv *Conversation, msg *Message) MessageSentEvent {
	ev := MessageSentEvent{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		ListingTitle:   conv.Listing.Title,
		Preview:        previewOf(msg),
		SentAt:         msg.SentAt,
	}
	if sender, ok := conv.Profiles[msg.SenderID]; ok {
		ev.SenderAffiliation = sender.Affiliation
	}
	for _, id := range conv.Participants {
		if id == msg.SenderID {
			continue
		}
		recipient := Recipient{ID: id}
		if profile, ok := conv.Profiles[id]; ok {
			recipient.Name = profile.Name
			recipient.Email = profile.Email
		}
		ev.Recipients = append(ev.Recipients, recipient)
	}
	return ev
}

const previewLimit = 120

func previewOf(msg *Message) string {
	if msg.Type == MessageImage {
		return "sent a photo"
	}
	runes := []rune(msg.Body)
	if len(runes) <= previewLimit {
		return msg.Body
	}
	return string(runes[:previewLimit])
}
