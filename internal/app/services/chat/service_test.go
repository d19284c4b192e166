package chat

import (
	"context"
	"errors"
	"testing"

	domainchat "campusmarket/internal/domain/chat"
	domainidentity "campusmarket/internal/domain/identity"
	domainlistings "campusmarket/internal/domain/listings"
	"campusmarket/internal/infra/storage/memory"
)

var (
	buyerProfile = domainidentity.Profile{
		ID: "u-buyer", Name: "Ana", Affiliation: "Econ '26", Verified: true, Email: "ana@example.edu",
	}
	sellerProfile = domainidentity.Profile{
		ID: "u-seller", Name: "Bo", Affiliation: "CS '25", Verified: true, Email: "bo@example.edu",
	}
)

func newTestService(t *testing.T) (*Service, *memory.Outbox) {
	t.Helper()
	ctx := context.Background()
	box := memory.NewOutbox()
	listings := memory.NewListingRepository()
	directory := memory.NewProfileDirectory()
	svc := &Service{
		Store:       memory.NewChatStore(box),
		Reports:     memory.NewReportStore(),
		Listings:    listings,
		Directory:   directory,
		StorageHost: "minio.campus.edu",
	}
	for _, listing := range []*domainlistings.Listing{
		{ID: "lst-1", Seller: "u-seller", Title: "Commuter bike", PriceCents: 9500},
		{ID: "lst-2", Seller: "u-seller", Title: "TI-84 calculator", PriceCents: 4000},
	} {
		if err := listings.Save(ctx, listing); err != nil {
			t.Fatalf("seed listing: %v", err)
		}
	}
	for _, profile := range []domainidentity.Profile{buyerProfile, sellerProfile} {
		p := profile
		if err := directory.Save(ctx, &p); err != nil {
			t.Fatalf("seed profile: %v", err)
		}
	}
	return svc, box
}

func openConversation(t *testing.T, svc *Service, listingID, text string) *domainchat.Conversation {
	t.Helper()
	conv, _, err := svc.OpenListingConversation(context.Background(), OpenParams{
		ListingID: listingID,
		BuyerID:   buyerProfile.ID,
		Buyer:     buyerProfile,
		Text:      text,
	})
	if err != nil {
		t.Fatalf("OpenListingConversation: %v", err)
	}
	return conv
}

func TestOpenListingConversation(t *testing.T) {
	svc, box := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "is the bike still available?")

	wantID := domainchat.ThreadID("u-buyer", "u-seller", "lst-1")
	if conv.ID != wantID {
		t.Fatalf("conversation id = %q, want %q", conv.ID, wantID)
	}
	if conv.Unread["u-buyer"] != 0 || conv.Unread["u-seller"] != 1 {
		t.Fatalf("unread = %v, want buyer 0 seller 1", conv.Unread)
	}
	if conv.Profiles["u-seller"].Name != "Bo" {
		t.Fatalf("seller snapshot = %+v", conv.Profiles["u-seller"])
	}
	if conv.LastMessage == nil || conv.LastMessage.SenderID != "u-buyer" {
		t.Fatalf("last message = %+v", conv.LastMessage)
	}
	if records := box.All(); len(records) != 1 {
		t.Fatalf("outbox records = %d, want 1", len(records))
	}
}

func TestOpenListingConversationIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	first := openConversation(t, svc, "lst-1", "hello")

	// The buyer's profile changed since the first contact; the stored
	// snapshot must not be re-seeded.
	renamed := buyerProfile
	renamed.Name = "Ana R."
	second, _, err := svc.OpenListingConversation(context.Background(), OpenParams{
		ListingID: "lst-1",
		BuyerID:   renamed.ID,
		Buyer:     renamed,
		Text:      "following up",
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("reopen created a new thread: %q vs %q", second.ID, first.ID)
	}
	if second.Profiles["u-buyer"].Name != "Ana" {
		t.Fatalf("buyer snapshot re-seeded: %+v", second.Profiles["u-buyer"])
	}
	if second.Unread["u-seller"] != 2 {
		t.Fatalf("seller unread = %d, want 2", second.Unread["u-seller"])
	}
	msgs, err := svc.Messages(context.Background(), second.ID, "u-buyer")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
}

func TestOpenUnknownListing(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.OpenListingConversation(context.Background(), OpenParams{
		ListingID: "lst-missing", BuyerID: buyerProfile.ID, Buyer: buyerProfile, Text: "hi",
	})
	if !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("err = %v, want ErrListingNotFound", err)
	}
}

func TestOpenOwnListing(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.OpenListingConversation(context.Background(), OpenParams{
		ListingID: "lst-1", BuyerID: sellerProfile.ID, Buyer: sellerProfile, Text: "hi me",
	})
	if !errors.Is(err, domainchat.ErrSelfConversation) {
		t.Fatalf("err = %v, want ErrSelfConversation", err)
	}
}

func TestSendRejectsEmptyText(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "hello")
	for _, text := range []string{"", "   ", "\n\t"} {
		_, _, err := svc.SendMessage(context.Background(), SendParams{
			ConversationID: conv.ID, SenderID: "u-seller", Text: text,
		})
		if !errors.Is(err, domainchat.ErrEmptyMessage) {
			t.Fatalf("text %q: err = %v, want ErrEmptyMessage", text, err)
		}
	}
}

func TestMessageOrdering(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "first")
	ctx := context.Background()
	for i, params := range []SendParams{
		{ConversationID: conv.ID, SenderID: "u-seller", Text: "second"},
		{ConversationID: conv.ID, SenderID: "u-buyer", Text: "third"},
		{ConversationID: conv.ID, SenderID: "u-seller", Text: "fourth"},
	} {
		if _, _, err := svc.SendMessage(ctx, params); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	msgs, err := svc.Messages(ctx, conv.ID, "u-buyer")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	bodies := []string{"first", "second", "third", "fourth"}
	if len(msgs) != len(bodies) {
		t.Fatalf("messages = %d, want %d", len(msgs), len(bodies))
	}
	for i, want := range bodies {
		if msgs[i].Body != want {
			t.Fatalf("message %d = %q, want %q", i, msgs[i].Body, want)
		}
		if i > 0 && !msgs[i].SentAt.After(msgs[i-1].SentAt) {
			t.Fatalf("timestamps not strictly increasing at %d", i)
		}
	}
}

func TestMarkSeenIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "ping")
	ctx := context.Background()
	if _, _, err := svc.SendMessage(ctx, SendParams{ConversationID: conv.ID, SenderID: "u-buyer", Text: "ping again"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.MarkSeen(ctx, conv.ID, "u-seller"); err != nil {
			t.Fatalf("MarkSeen pass %d: %v", i, err)
		}
	}
	total, err := svc.UnreadTotal(ctx, "u-seller")
	if err != nil {
		t.Fatalf("UnreadTotal: %v", err)
	}
	if total != 0 {
		t.Fatalf("seller unread total = %d, want 0", total)
	}
	msgs, err := svc.Messages(ctx, conv.ID, "u-seller")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	for _, msg := range msgs {
		if msg.SenderID != "u-seller" && !msg.Seen {
			t.Fatalf("message %q still unseen", msg.Body)
		}
	}
}

func TestBlockStopsBlockerSends(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "spam?")
	ctx := context.Background()

	if err := svc.Block(ctx, conv.ID, "u-seller"); err != nil {
		t.Fatalf("Block: %v", err)
	}
	_, _, err := svc.SendMessage(ctx, SendParams{ConversationID: conv.ID, SenderID: "u-seller", Text: "no"})
	if !errors.Is(err, domainchat.ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
	msgs, err := svc.Messages(ctx, conv.ID, "u-buyer")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("rejected send mutated the thread: %d messages", len(msgs))
	}

	// The blocker no longer sees the thread in their feed.
	feed, err := svc.Conversations(ctx, "u-seller")
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(feed) != 0 {
		t.Fatalf("blocker feed = %d threads, want 0", len(feed))
	}
}

func TestDeleteTombstonesThenRemoves(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "selling?")
	ctx := context.Background()

	removed, err := svc.Delete(ctx, conv.ID, "u-buyer")
	if err != nil || removed {
		t.Fatalf("first delete: removed=%v err=%v", removed, err)
	}
	buyerFeed, _ := svc.Conversations(ctx, "u-buyer")
	if len(buyerFeed) != 0 {
		t.Fatalf("deleter still sees the thread")
	}
	sellerFeed, _ := svc.Conversations(ctx, "u-seller")
	if len(sellerFeed) != 1 {
		t.Fatalf("counterparty lost the thread: %d", len(sellerFeed))
	}

	removed, err = svc.Delete(ctx, conv.ID, "u-seller")
	if err != nil || !removed {
		t.Fatalf("second delete: removed=%v err=%v", removed, err)
	}
	if _, err := svc.Messages(ctx, conv.ID, "u-seller"); !errors.Is(err, domainchat.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after mutual deletion", err)
	}
}

func TestReport(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "deal?")
	ctx := context.Background()

	report, err := svc.Report(ctx, ReportParams{
		ConversationID: conv.ID,
		ReporterID:     "u-buyer",
		ReportedID:     "u-seller",
		Reason:         "Spam",
		Description:    "keeps sending links",
	})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Status != domainchat.ReportPending {
		t.Fatalf("status = %q, want pending", report.Status)
	}
	if report.Reason != "spam" {
		t.Fatalf("reason = %q, want normalized spam", report.Reason)
	}

	if _, err := svc.Report(ctx, ReportParams{ConversationID: conv.ID, ReporterID: "u-buyer", ReportedID: "u-buyer", Reason: "spam"}); !errors.Is(err, domainchat.ErrSelfReport) {
		t.Fatalf("self report err = %v", err)
	}
	if _, err := svc.Report(ctx, ReportParams{ConversationID: conv.ID, ReporterID: "u-buyer", ReportedID: "u-seller", Reason: "angry"}); !errors.Is(err, domainchat.ErrInvalidReason) {
		t.Fatalf("invalid reason err = %v", err)
	}
	if _, err := svc.Report(ctx, ReportParams{ConversationID: conv.ID, ReporterID: "u-stranger", ReportedID: "u-seller", Reason: "spam"}); !errors.Is(err, domainchat.ErrNotParticipant) {
		t.Fatalf("outsider err = %v", err)
	}

	reports, err := svc.ModerationReports(ctx, 10)
	if err != nil {
		t.Fatalf("ModerationReports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}

	// Reporting never mutates the conversation.
	msgs, err := svc.Messages(ctx, conv.ID, "u-buyer")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("thread changed after report: %d messages, err=%v", len(msgs), err)
	}
}

func TestUnreadTotalAcrossThreads(t *testing.T) {
	svc, _ := newTestService(t)
	openConversation(t, svc, "lst-1", "bike?")
	openConversation(t, svc, "lst-2", "calculator?")
	ctx := context.Background()

	total, err := svc.UnreadTotal(ctx, "u-seller")
	if err != nil {
		t.Fatalf("UnreadTotal: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}

	// Threads the viewer blocked drop out of the aggregate.
	if err := svc.Block(ctx, domainchat.ThreadID("u-buyer", "u-seller", "lst-1"), "u-seller"); err != nil {
		t.Fatalf("Block: %v", err)
	}
	total, err = svc.UnreadTotal(ctx, "u-seller")
	if err != nil {
		t.Fatalf("UnreadTotal: %v", err)
	}
	if total != 1 {
		t.Fatalf("total after block = %d, want 1", total)
	}
}

func TestMessagesRequireParticipant(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "hi")
	if _, err := svc.Messages(context.Background(), conv.ID, "u-stranger"); !errors.Is(err, domainchat.ErrNotParticipant) {
		t.Fatalf("err = %v, want ErrNotParticipant", err)
	}
}

func TestImageBodiesClassified(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "photos incoming")
	msg, _, err := svc.SendMessage(context.Background(), SendParams{
		ConversationID: conv.ID,
		SenderID:       "u-buyer",
		Text:           "https://minio.campus.edu/campusmarket-chat/chat/u-buyer/abc",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Type != domainchat.MessageImage {
		t.Fatalf("type = %q, want image", msg.Type)
	}
}
