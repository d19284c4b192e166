package chat

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("chat: conversation not found")
	ErrBlocked           = errors.New("chat: sender is blocked in this conversation")
	ErrNotParticipant    = errors.New("chat: user is not a conversation participant")
	ErrSelfConversation  = errors.New("chat: cannot open a conversation with yourself")
	ErrEmptyMessage      = errors.New("chat: message text is required")
	ErrParticipantsCount = errors.New("chat: conversation requires exactly two distinct participants")
)

// ThreadIDSeparator joins the sorted participant ids and the listing id.
const ThreadIDSeparator = "_"

// ThreadID derives the conversation identifier for a (buyer, seller, listing)
// triple. The two participant ids are sorted lexicographically before joining,
// so the result is independent of argument order and there is at most one
// conversation per triple without a lookup round-trip.
func ThreadID(userA, userB, listingID string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return pair[0] + ThreadIDSeparator + pair[1] + ThreadIDSeparator + listingID
}

// Status is the conversation lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusBlocked  Status = "blocked"
)

// ProfileSnapshot is the denormalized copy of a participant's profile stored
// inside the conversation for rendering without a join.
type ProfileSnapshot struct {
	Name        string `bson:"name" json:"name"`
	AvatarURL   string `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Affiliation string `bson:"affiliation,omitempty" json:"affiliation,omitempty"`
	Verified    bool   `bson:"verified" json:"verified"`
	Email       string `bson:"email,omitempty" json:"-"`
}

// ListingSnapshot is the listing metadata captured at conversation creation.
type ListingSnapshot struct {
	ID         string `bson:"id" json:"id"`
	Title      string `bson:"title" json:"title"`
	ImageURL   string `bson:"image_url,omitempty" json:"image_url,omitempty"`
	PriceCents int64  `bson:"price_cents" json:"price_cents"`
}

// MessageSummary mirrors the latest message for conversation list rendering.
type MessageSummary struct {
	Text     string    `bson:"text" json:"text"`
	SenderID string    `bson:"sender_id" json:"sender_id"`
	SentAt   time.Time `bson:"sent_at" json:"sent_at"`
}

// Conversation is a two-party, listing-scoped message thread. Both
// participants hold equal rights over it; the backing store is the sole
// source of truth.
type Conversation struct {
	ID           string                     `bson:"_id" json:"id"`
	Participants []string                   `bson:"participants" json:"participants"`
	Listing      ListingSnapshot            `bson:"listing" json:"listing"`
	Profiles     map[string]ProfileSnapshot `bson:"profiles" json:"profiles"`
	LastMessage  *MessageSummary            `bson:"last_message,omitempty" json:"last_message,omitempty"`
	Unread       map[string]int             `bson:"unread" json:"unread"`
	BlockedBy    []string                   `bson:"blocked_by,omitempty" json:"blocked_by,omitempty"`
	DeletedFor   []string                   `bson:"deleted_for,omitempty" json:"-"`
	Status       Status                     `bson:"status" json:"status"`
	CreatedAt    time.Time                  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time                  `bson:"updated_at" json:"updated_at"`
}

// CreateConversationParams carries everything needed to seed a new thread.
type CreateConversationParams struct {
	BuyerID       string
	SellerID      string
	Listing       ListingSnapshot
	BuyerProfile  ProfileSnapshot
	SellerProfile ProfileSnapshot
	Now           time.Time
}

// NewConversation builds an active conversation with both participant
// snapshots and zeroed unread counters. The initial message is appended
// separately through the regular append path.
func NewConversation(params CreateConversationParams) (*Conversation, error) {
	buyer := strings.TrimSpace(params.BuyerID)
	seller := strings.TrimSpace(params.SellerID)
	if buyer == "" || seller == "" {
		return nil, ErrParticipantsCount
	}
	if buyer == seller {
		return nil, ErrSelfConversation
	}
	if strings.TrimSpace(params.Listing.ID) == "" {
		return nil, errors.New("chat: listing id is required")
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Conversation{
		ID:           ThreadID(buyer, seller, params.Listing.ID),
		Participants: []string{buyer, seller},
		Listing:      params.Listing,
		Profiles: map[string]ProfileSnapshot{
			buyer:  params.BuyerProfile,
			seller: params.SellerProfile,
		},
		Unread:    map[string]int{buyer: 0, seller: 0},
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasParticipant reports whether id is one of the two participants.
func (c *Conversation) HasParticipant(id string) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// OtherParticipant returns the counterparty of id.
func (c *Conversation) OtherParticipant(id string) (string, bool) {
	if !c.HasParticipant(id) {
		return "", false
	}
	for _, p := range c.Participants {
		if p != id {
			return p, true
		}
	}
	return "", false
}

// BlockedFor reports whether sends from userID must be rejected.
func (c *Conversation) BlockedFor(userID string) bool {
	for _, b := range c.BlockedBy {
		if b == userID {
			return true
		}
	}
	return false
}

// DeletedBy reports whether userID has deleted this conversation.
func (c *Conversation) DeletedBy(userID string) bool {
	for _, d := range c.DeletedFor {
		if d == userID {
			return true
		}
	}
	return false
}

// VisibleTo reports whether the thread shows up in userID's feed.
func (c *Conversation) VisibleTo(userID string) bool {
	return c.HasParticipant(userID) && !c.DeletedBy(userID) && !c.BlockedFor(userID)
}
