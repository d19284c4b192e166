package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainchat "campusmarket/internal/domain/chat"
	domainidentity "campusmarket/internal/domain/identity"
	domainlistings "campusmarket/internal/domain/listings"
)

var ErrListingNotFound = errors.New("chat: listing not found")

// Service is the conversation & messaging coordinator. It derives thread
// identities, appends messages through the store's transactional contract and
// owns read-state and moderation. All authoritative state lives in the store.
type Service struct {
	Store       domainchat.Store
	Reports     domainchat.ReportStore
	Listings    domainlistings.Repository
	Directory   domainidentity.Directory
	StorageHost string
	Logger      *slog.Logger
}

// OpenParams starts (or reopens) a listing conversation with an initial
// message from the buyer.
type OpenParams struct {
	ListingID string
	BuyerID   string
	Buyer     domainidentity.Profile
	Text      string
}

// SendParams appends one message to an existing conversation.
type SendParams struct {
	ConversationID string
	SenderID       string
	SenderName     string
	SenderAvatar   string
	Text           string
}

// ReportParams files a moderation report scoped to a conversation.
type ReportParams struct {
	ConversationID string
	ReporterID     string
	ReportedID     string
	Reason         string
	Description    string
}

// OpenListingConversation computes the deterministic thread id for
// (buyer, seller, listing) and creates the conversation if it does not exist
// yet. An existing thread is reused as-is; its participant snapshots are never
// re-seeded. The initial message goes through the regular append contract
// either way, so the seller's unread counter ends at one more than before.
func (s *Service) OpenListingConversation(ctx context.Context, params OpenParams) (*domainchat.Conversation, *domainchat.Message, error) {
	text := strings.TrimSpace(params.Text)
	if text == "" {
		return nil, nil, domainchat.ErrEmptyMessage
	}
	listing, err := s.Listings.ByID(ctx, domainlistings.ListingID(params.ListingID))
	if err != nil {
		if errors.Is(err, domainlistings.ErrNotFound) {
			return nil, nil, ErrListingNotFound
		}
		return nil, nil, err
	}
	sellerID := string(listing.Seller)
	if sellerID == params.BuyerID {
		return nil, nil, domainchat.ErrSelfConversation
	}
	seller, err := s.Directory.Lookup(ctx, sellerID)
	if err != nil {
		return nil, nil, err
	}

	conv, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		BuyerID:  params.BuyerID,
		SellerID: sellerID,
		Listing: domainchat.ListingSnapshot{
			ID:         string(listing.ID),
			Title:      listing.Title,
			ImageURL:   listing.ImageURL,
			PriceCents: listing.PriceCents,
		},
		BuyerProfile:  snapshotOf(params.Buyer),
		SellerProfile: snapshotOf(*seller),
	})
	if err != nil {
		return nil, nil, err
	}
	created, err := s.Store.CreateConversation(ctx, conv)
	if err != nil {
		return nil, nil, err
	}
	if created && s.Logger != nil {
		s.Logger.Info("conversation created", "conversation_id", conv.ID, "listing_id", listing.ID, "buyer_id", params.BuyerID, "seller_id", sellerID)
	}

	msg, updated, err := s.SendMessage(ctx, SendParams{
		ConversationID: conv.ID,
		SenderID:       params.BuyerID,
		SenderName:     params.Buyer.Name,
		SenderAvatar:   params.Buyer.AvatarURL,
		Text:           text,
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, msg, nil
}

// SendMessage classifies the body, appends it with a server-assigned
// timestamp and bumps the counterparty's unread counter in the same store
// transaction. Fan-out to the side channels is recorded there too and
// delivered asynchronously; its failures never reach the sender.
func (s *Service) SendMessage(ctx context.Context, params SendParams) (*domainchat.Message, *domainchat.Conversation, error) {
	text := strings.TrimSpace(params.Text)
	if text == "" {
		return nil, nil, domainchat.ErrEmptyMessage
	}
	msg := &domainchat.Message{
		ID:             uuid.NewString(),
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		SenderName:     params.SenderName,
		SenderAvatar:   params.SenderAvatar,
		Body:           text,
		Type:           domainchat.DetectType(text, s.StorageHost),
	}
	conv, err := s.Store.AppendMessage(ctx, msg)
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

// MarkSeen resets the caller's unread counter and flips the counterparty's
// messages to seen. Safe to retry; applying it twice equals applying it once.
func (s *Service) MarkSeen(ctx context.Context, conversationID, userID string) error {
	return s.Store.MarkSeen(ctx, conversationID, userID)
}

// Block is a one-way moderation action: there is no unblock transition.
func (s *Service) Block(ctx context.Context, conversationID, userID string) error {
	if err := s.Store.Block(ctx, conversationID, userID); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Info("conversation blocked", "conversation_id", conversationID, "user_id", userID)
	}
	return nil
}

// Report files an immutable moderation record. Self-reports and reports
// against non-participants are rejected before any write.
func (s *Service) Report(ctx context.Context, params ReportParams) (*domainchat.Report, error) {
	if !domainchat.ValidReason(params.Reason) {
		return nil, domainchat.ErrInvalidReason
	}
	if params.ReporterID == params.ReportedID {
		return nil, domainchat.ErrSelfReport
	}
	conv, err := s.Store.GetConversation(ctx, params.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(params.ReporterID) || !conv.HasParticipant(params.ReportedID) {
		return nil, domainchat.ErrNotParticipant
	}
	report := &domainchat.Report{
		ID:             uuid.NewString(),
		ReporterID:     params.ReporterID,
		ReportedID:     params.ReportedID,
		ConversationID: params.ConversationID,
		Reason:         strings.ToLower(strings.TrimSpace(params.Reason)),
		Description:    strings.TrimSpace(params.Description),
		Status:         domainchat.ReportPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Reports.Insert(ctx, report); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("user reported", "conversation_id", params.ConversationID, "reporter_id", params.ReporterID, "reported_id", params.ReportedID, "reason", report.Reason)
	}
	return report, nil
}

// Delete tombstones the thread for userID; once both participants have
// deleted it the document and its messages are gone for good. One-way.
func (s *Service) Delete(ctx context.Context, conversationID, userID string) (bool, error) {
	removed, err := s.Store.Delete(ctx, conversationID, userID)
	if err != nil {
		return false, err
	}
	if removed && s.Logger != nil {
		s.Logger.Info("conversation removed after mutual deletion", "conversation_id", conversationID)
	}
	return removed, nil
}

// Conversations returns the caller's bounded feed snapshot.
func (s *Service) Conversations(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	return s.Store.ListConversations(ctx, userID, domainchat.ConversationWindow)
}

// Messages returns the newest window of a thread in send order. Only
// participants may read it.
func (s *Service) Messages(ctx context.Context, conversationID, callerID string) ([]domainchat.Message, error) {
	conv, err := s.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(callerID) {
		return nil, domainchat.ErrNotParticipant
	}
	return s.Store.ListMessages(ctx, conversationID, domainchat.MessageWindow)
}

// UnreadTotal sums the caller's unread counters across visible threads.
func (s *Service) UnreadTotal(ctx context.Context, userID string) (int, error) {
	return s.Store.UnreadTotal(ctx, userID)
}

// ModerationReports lists filed reports, newest first.
func (s *Service) ModerationReports(ctx context.Context, limit int) ([]domainchat.Report, error) {
	return s.Reports.List(ctx, limit)
}

func snapshotOf(profile domainidentity.Profile) domainchat.ProfileSnapshot {
	return domainchat.ProfileSnapshot{
		Name:        profile.Name,
		AvatarURL:   profile.AvatarURL,
		Affiliation: profile.Affiliation,
		Verified:    profile.Verified,
		Email:       profile.Email,
	}
}
