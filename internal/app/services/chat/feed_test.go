package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainchat "campusmarket/internal/domain/chat"
)

// subscribeRaceStore commits a write while the subscribe-time snapshot is
// being read, returning the pre-write list.
type subscribeRaceStore struct {
	domainchat.Store
	once   sync.Once
	mutate func()
}

func (s *subscribeRaceStore) ListConversations(ctx context.Context, userID string, limit int) ([]domainchat.Conversation, error) {
	out, err := s.Store.ListConversations(ctx, userID, limit)
	s.once.Do(s.mutate)
	return out, err
}

func waitConversations(t *testing.T, handle *ConversationFeed) []domainchat.Conversation {
	t.Helper()
	select {
	case snapshot, ok := <-handle.C:
		if !ok {
			t.Fatal("feed closed unexpectedly")
		}
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for conversation snapshot")
		return nil
	}
}

func waitMessages(t *testing.T, handle *MessageFeed) []domainchat.Message {
	t.Helper()
	select {
	case snapshot, ok := <-handle.C:
		if !ok {
			t.Fatal("feed closed unexpectedly")
		}
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message snapshot")
		return nil
	}
}

func TestWatchConversationsInitialSnapshot(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "hello")

	feed := NewFeed(svc.Store, nil)
	handle, err := feed.WatchConversations(context.Background(), "u-seller")
	if err != nil {
		t.Fatalf("WatchConversations: %v", err)
	}
	defer handle.Cancel()

	snapshot := waitConversations(t, handle)
	if len(snapshot) != 1 || snapshot[0].ID != conv.ID {
		t.Fatalf("snapshot = %+v", snapshot)
	}
}

func TestFeedReEmitsOnChange(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "hello")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := NewFeed(svc.Store, nil)
	go func() { _ = feed.Run(ctx) }()
	// Give Run a moment to register its change watcher.
	time.Sleep(50 * time.Millisecond)

	convHandle, err := feed.WatchConversations(ctx, "u-seller")
	if err != nil {
		t.Fatalf("WatchConversations: %v", err)
	}
	defer convHandle.Cancel()
	msgHandle, err := feed.WatchMessages(ctx, "u-seller", conv.ID)
	if err != nil {
		t.Fatalf("WatchMessages: %v", err)
	}
	defer msgHandle.Cancel()
	waitConversations(t, convHandle)
	waitMessages(t, msgHandle)

	if _, _, err := svc.SendMessage(ctx, SendParams{ConversationID: conv.ID, SenderID: "u-buyer", Text: "update"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		var snapshot []domainchat.Conversation
		select {
		case snapshot = <-convHandle.C:
		case <-deadline:
			t.Fatal("conversation feed never reflected the new message")
		}
		if len(snapshot) == 1 && snapshot[0].LastMessage != nil && snapshot[0].LastMessage.Text == "update" {
			break
		}
	}

	deadline = time.After(2 * time.Second)
	for {
		var snapshot []domainchat.Message
		select {
		case snapshot = <-msgHandle.C:
		case <-deadline:
			t.Fatal("message feed never reflected the new message")
		}
		if len(snapshot) == 2 && snapshot[1].Body == "update" {
			break
		}
	}
}

func TestWatchConversationsSeesWriteDuringSubscribe(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "hello")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &subscribeRaceStore{Store: svc.Store}
	store.mutate = func() {
		if _, _, err := svc.SendMessage(ctx, SendParams{ConversationID: conv.ID, SenderID: "u-buyer", Text: "mid-subscribe"}); err != nil {
			t.Errorf("send: %v", err)
		}
	}
	feed := NewFeed(store, nil)
	go func() { _ = feed.Run(ctx) }()
	// Give Run a moment to register its change watcher.
	time.Sleep(50 * time.Millisecond)

	handle, err := feed.WatchConversations(ctx, "u-seller")
	if err != nil {
		t.Fatalf("WatchConversations: %v", err)
	}
	defer handle.Cancel()

	deadline := time.After(2 * time.Second)
	for {
		var snapshot []domainchat.Conversation
		select {
		case snapshot = <-handle.C:
		case <-deadline:
			t.Fatal("feed never reflected the write committed during subscribe")
		}
		if len(snapshot) == 1 && snapshot[0].LastMessage != nil && snapshot[0].LastMessage.Text == "mid-subscribe" {
			break
		}
	}
}

func TestMutualDeletionClosesMessageWatchers(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "hello")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := NewFeed(svc.Store, nil)
	go func() { _ = feed.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	handle, err := feed.WatchMessages(ctx, "u-seller", conv.ID)
	if err != nil {
		t.Fatalf("WatchMessages: %v", err)
	}
	waitMessages(t, handle)

	if _, err := svc.Delete(ctx, conv.ID, "u-buyer"); err != nil {
		t.Fatalf("buyer delete: %v", err)
	}
	if _, err := svc.Delete(ctx, conv.ID, "u-seller"); err != nil {
		t.Fatalf("seller delete: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-handle.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("message watch not closed after physical removal")
		}
	}
}

func TestRewatchReplacesPriorHandle(t *testing.T) {
	svc, _ := newTestService(t)
	openConversation(t, svc, "lst-1", "hello")

	feed := NewFeed(svc.Store, nil)
	ctx := context.Background()
	first, err := feed.WatchConversations(ctx, "u-seller")
	if err != nil {
		t.Fatalf("first watch: %v", err)
	}
	waitConversations(t, first)

	second, err := feed.WatchConversations(ctx, "u-seller")
	if err != nil {
		t.Fatalf("second watch: %v", err)
	}
	defer second.Cancel()

	select {
	case _, ok := <-first.C:
		if ok {
			// drain the buffered snapshot, the close must follow
			if _, ok := <-first.C; ok {
				t.Fatal("replaced handle still open")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("replaced handle was not closed")
	}
}

func TestWatchMessagesRequiresParticipant(t *testing.T) {
	svc, _ := newTestService(t)
	conv := openConversation(t, svc, "lst-1", "hello")

	feed := NewFeed(svc.Store, nil)
	if _, err := feed.WatchMessages(context.Background(), "u-stranger", conv.ID); !errors.Is(err, domainchat.ErrNotParticipant) {
		t.Fatalf("err = %v, want ErrNotParticipant", err)
	}
}

func TestCancelClosesHandle(t *testing.T) {
	svc, _ := newTestService(t)
	openConversation(t, svc, "lst-1", "hello")

	feed := NewFeed(svc.Store, nil)
	handle, err := feed.WatchConversations(context.Background(), "u-buyer")
	if err != nil {
		t.Fatalf("WatchConversations: %v", err)
	}
	waitConversations(t, handle)
	handle.Cancel()
	if _, ok := <-handle.C; ok {
		t.Fatal("cancelled handle still delivering")
	}
}
