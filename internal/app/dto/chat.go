package dto

import (
	"time"

	"campusmarket/internal/domain/chat"
)

// Profile is the per-participant snapshot stamped onto a conversation.
type Profile struct {
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Affiliation string `json:"affiliation,omitempty"`
	Verified    bool   `json:"verified"`
}

// Listing is the denormalized listing header shown on a conversation card.
type Listing struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ImageURL   string `json:"image_url,omitempty"`
	PriceCents int64  `json:"price_cents"`
}

// LastMessage summarizes the most recent message of a conversation.
type LastMessage struct {
	Text     string    `json:"text"`
	SenderID string    `json:"sender_id"`
	SentAt   time.Time `json:"sent_at"`
}

// Conversation describes chat metadata as seen by one participant.
type Conversation struct {
	ID           string             `json:"id"`
	Participants []string           `json:"participants"`
	Listing      Listing            `json:"listing"`
	Profiles     map[string]Profile `json:"profiles"`
	LastMessage  *LastMessage       `json:"last_message,omitempty"`
	Unread       int                `json:"unread"`
	Blocked      bool               `json:"blocked"`
	Status       string             `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ConversationList is a windowed collection, most recently active first.
type ConversationList struct {
	Items []Conversation `json:"items"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	SenderAvatar   string    `json:"sender_avatar,omitempty"`
	Text           string    `json:"text"`
	Type           string    `json:"type"`
	Seen           bool      `json:"seen"`
	SentAt         time.Time `json:"sent_at"`
}

// ChatMessageList is a windowed message list, oldest first.
type ChatMessageList struct {
	Items []ChatMessage `json:"items"`
}

// Report is a moderation record.
type Report struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ReporterID     string    `json:"reporter_id"`
	ReportedID     string    `json:"reported_id"`
	Reason         string    `json:"reason"`
	Description    string    `json:"description,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// UnreadTotal carries the badge count for the viewer.
type UnreadTotal struct {
	Total int `json:"total"`
}

// Upload is the result of an attachment upload.
type Upload struct {
	URL string `json:"url"`
}

// MapConversation projects a conversation for the given viewer. Unread and
// blocked are viewer-relative.
func MapConversation(conv *chat.Conversation, viewerID string) Conversation {
	profiles := make(map[string]Profile, len(conv.Profiles))
	for id, snap := range conv.Profiles {
		profiles[id] = Profile{
			Name:        snap.Name,
			AvatarURL:   snap.AvatarURL,
			Affiliation: snap.Affiliation,
			Verified:    snap.Verified,
		}
	}
	out := Conversation{
		ID:           conv.ID,
		Participants: conv.Participants,
		Listing: Listing{
			ID:         conv.Listing.ID,
			Title:      conv.Listing.Title,
			ImageURL:   conv.Listing.ImageURL,
			PriceCents: conv.Listing.PriceCents,
		},
		Profiles:  profiles,
		Unread:    conv.Unread[viewerID],
		Blocked:   conv.Status == chat.StatusBlocked,
		Status:    string(conv.Status),
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
	if conv.LastMessage != nil {
		out.LastMessage = &LastMessage{
			Text:     conv.LastMessage.Text,
			SenderID: conv.LastMessage.SenderID,
			SentAt:   conv.LastMessage.SentAt,
		}
	}
	return out
}

func MapConversations(convs []chat.Conversation, viewerID string) ConversationList {
	items := make([]Conversation, 0, len(convs))
	for i := range convs {
		items = append(items, MapConversation(&convs[i], viewerID))
	}
	return ConversationList{Items: items}
}

func MapMessage(msg *chat.Message) ChatMessage {
	return ChatMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		SenderAvatar:   msg.SenderAvatar,
		Text:           msg.Body,
		Type:           string(msg.Type),
		Seen:           msg.Seen,
		SentAt:         msg.SentAt,
	}
}

func MapMessages(msgs []chat.Message) ChatMessageList {
	items := make([]ChatMessage, 0, len(msgs))
	for i := range msgs {
		items = append(items, MapMessage(&msgs[i]))
	}
	return ChatMessageList{Items: items}
}

func MapReport(report *chat.Report) Report {
	return Report{
		ID:             report.ID,
		ConversationID: report.ConversationID,
		ReporterID:     report.ReporterID,
		ReportedID:     report.ReportedID,
		Reason:         report.Reason,
		Description:    report.Description,
		Status:         string(report.Status),
		CreatedAt:      report.CreatedAt,
	}
}

func MapReports(reports []chat.Report) []Report {
	items := make([]Report, 0, len(reports))
	for i := range reports {
		items = append(items, MapReport(&reports[i]))
	}
	return items
}
