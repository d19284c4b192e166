package chat

import (
	"errors"
	"testing"
	"time"
)

func TestThreadIDOrderIndependent(t *testing.T) {
	a := ThreadID("u-bo", "u-ana", "lst-1")
	b := ThreadID("u-ana", "u-bo", "lst-1")
	if a != b {
		t.Fatalf("thread id depends on argument order: %q vs %q", a, b)
	}
	if a != "u-ana_u-bo_lst-1" {
		t.Fatalf("unexpected thread id %q", a)
	}
}

func TestThreadIDScopedToListing(t *testing.T) {
	if ThreadID("u-ana", "u-bo", "lst-1") == ThreadID("u-ana", "u-bo", "lst-2") {
		t.Fatal("different listings must produce different threads")
	}
}

func TestNewConversationSeedsZeroUnread(t *testing.T) {
	conv, err := NewConversation(CreateConversationParams{
		BuyerID:  "u-buyer",
		SellerID: "u-seller",
		Listing:  ListingSnapshot{ID: "lst-1", Title: "Bike"},
		Now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if conv.ID != ThreadID("u-buyer", "u-seller", "lst-1") {
		t.Fatalf("unexpected id %q", conv.ID)
	}
	if got := conv.Unread["u-buyer"]; got != 0 {
		t.Fatalf("buyer unread = %d, want 0", got)
	}
	if got := conv.Unread["u-seller"]; got != 0 {
		t.Fatalf("seller unread = %d, want 0", got)
	}
	if conv.Status != StatusActive {
		t.Fatalf("status = %q, want active", conv.Status)
	}
	if len(conv.Participants) != 2 {
		t.Fatalf("participants = %v", conv.Participants)
	}
}

func TestNewConversationRejectsSelf(t *testing.T) {
	_, err := NewConversation(CreateConversationParams{
		BuyerID:  "u-same",
		SellerID: "u-same",
		Listing:  ListingSnapshot{ID: "lst-1"},
	})
	if !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("err = %v, want ErrSelfConversation", err)
	}
}

func TestNewConversationRequiresBothParticipants(t *testing.T) {
	_, err := NewConversation(CreateConversationParams{
		BuyerID:  "",
		SellerID: "u-seller",
		Listing:  ListingSnapshot{ID: "lst-1"},
	})
	if !errors.Is(err, ErrParticipantsCount) {
		t.Fatalf("err = %v, want ErrParticipantsCount", err)
	}
}

func TestVisibleTo(t *testing.T) {
	conv := &Conversation{
		Participants: []string{"u-a", "u-b"},
		BlockedBy:    []string{"u-a"},
		DeletedFor:   []string{"u-b"},
	}
	if conv.VisibleTo("u-a") {
		t.Fatal("blocker should not see the thread in their feed")
	}
	if conv.VisibleTo("u-b") {
		t.Fatal("deleter should not see the thread")
	}
	if conv.VisibleTo("u-c") {
		t.Fatal("outsider should not see the thread")
	}
	conv.BlockedBy = nil
	conv.DeletedFor = nil
	if !conv.VisibleTo("u-a") || !conv.VisibleTo("u-b") {
		t.Fatal("participants should see an untouched thread")
	}
}

func TestOtherParticipant(t *testing.T) {
	conv := &Conversation{Participants: []string{"u-a", "u-b"}}
	other, ok := conv.OtherParticipant("u-a")
	if !ok || other != "u-b" {
		t.Fatalf("OtherParticipant = %q, %v", other, ok)
	}
	if _, ok := conv.OtherParticipant("u-c"); ok {
		t.Fatal("outsider has no counterparty")
	}
}
