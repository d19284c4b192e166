package chat

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// MessageType classifies a message body for rendering.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageSystem MessageType = "system"
)

// Message is immutable once stored except for the Seen flag, which flips from
// false to true exactly once when the recipient opens the conversation.
// Ordering is by server-assigned SentAt ascending.
type Message struct {
	ID             string      `bson:"_id" json:"id"`
	ConversationID string      `bson:"conversation_id" json:"conversation_id"`
	SenderID       string      `bson:"sender_id" json:"sender_id"`
	SenderName     string      `bson:"sender_name" json:"sender_name"`
	SenderAvatar   string      `bson:"sender_avatar,omitempty" json:"sender_avatar,omitempty"`
	Body           string      `bson:"body" json:"body"`
	Type           MessageType `bson:"type" json:"type"`
	Seen           bool        `bson:"seen" json:"seen"`
	SentAt         time.Time   `bson:"sent_at" json:"sent_at"`
}

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
}

// DetectType classifies body as an image when it is a URL with a known image
// suffix or a URL hosted on the object-storage domain, and as text otherwise.
func DetectType(body, storageHost string) MessageType {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return MessageText
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return MessageText
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := imageExtensions[ext]; ok {
		return MessageImage
	}
	if host := storageHostname(storageHost); host != "" && strings.Contains(strings.ToLower(u.Host), host) {
		return MessageImage
	}
	return MessageText
}

// storageHostname reduces the configured endpoint to its bare host so both
// "files.campus.edu" and "https://files.campus.edu" match uploaded URLs.
func storageHostname(endpoint string) string {
	endpoint = strings.ToLower(strings.TrimSpace(endpoint))
	if strings.Contains(endpoint, "://") {
		if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return endpoint
}
