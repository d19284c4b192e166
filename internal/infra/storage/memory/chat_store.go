package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	appoutbox "campusmarket/internal/app/outbox"
	domainchat "campusmarket/internal/domain/chat"
)

// ChatStore is an in-memory implementation of the chat store used for demo
// mode and tests. Writes take the store mutex, so every multi-field update is
// observed atomically, matching the document-store contract.
type ChatStore struct {
	// Clock assigns server timestamps; tests may replace it.
	Clock func() time.Time

	mu            sync.RWMutex
	conversations map[string]*domainchat.Conversation
	messages      map[string][]*domainchat.Message
	lastStamp     time.Time
	box           appoutbox.Outbox

	watchMu  sync.Mutex
	watchers map[int]chan domainchat.Change
	nextID   int
}

// NewChatStore builds an empty store. Fan-out records go to box; a nil box
// disables fan-out.
func NewChatStore(box appoutbox.Outbox) *ChatStore {
	return &ChatStore{
		Clock:         time.Now,
		conversations: make(map[string]*domainchat.Conversation),
		messages:      make(map[string][]*domainchat.Message),
		box:           box,
		watchers:      make(map[int]chan domainchat.Change),
	}
}

func (s *ChatStore) CreateConversation(ctx context.Context, conv *domainchat.Conversation) (bool, error) {
	s.mu.Lock()
	if _, exists := s.conversations[conv.ID]; exists {
		s.mu.Unlock()
		return false, nil
	}
	s.conversations[conv.ID] = copyConversation(conv)
	s.mu.Unlock()

	s.notify(domainchat.Change{ConversationID: conv.ID, Participants: append([]string(nil), conv.Participants...)})
	return true, nil
}

func (s *ChatStore) GetConversation(ctx context.Context, id string) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, domainchat.ErrNotFound
	}
	return copyConversation(conv), nil
}

func (s *ChatStore) AppendMessage(ctx context.Context, msg *domainchat.Message) (*domainchat.Conversation, error) {
	s.mu.Lock()
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		s.mu.Unlock()
		return nil, domainchat.ErrNotFound
	}
	if !conv.HasParticipant(msg.SenderID) {
		s.mu.Unlock()
		return nil, domainchat.ErrNotParticipant
	}
	if conv.BlockedFor(msg.SenderID) {
		s.mu.Unlock()
		return nil, domainchat.ErrBlocked
	}

	msg.SentAt = s.stamp()
	msg.Seen = false
	s.messages[conv.ID] = append(s.messages[conv.ID], copyMessage(msg))

	conv.LastMessage = &domainchat.MessageSummary{
		Text:     msg.Body,
		SenderID: msg.SenderID,
		SentAt:   msg.SentAt,
	}
	conv.UpdatedAt = msg.SentAt
	if conv.Unread == nil {
		conv.Unread = make(map[string]int)
	}
	for _, participant := range conv.Participants {
		if participant != msg.SenderID {
			conv.Unread[participant]++
		}
	}

	if s.box != nil {
		record, err := appoutbox.Encode(domainchat.NewMessageSentEvent(conv, msg))
		if err == nil {
			err = s.box.Add(ctx, record)
		}
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}

	updated := copyConversation(conv)
	s.mu.Unlock()

	s.notify(domainchat.Change{ConversationID: conv.ID, Participants: updated.Participants})
	return updated, nil
}

func (s *ChatStore) MarkSeen(ctx context.Context, conversationID, userID string) error {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return domainchat.ErrNotFound
	}
	if !conv.HasParticipant(userID) {
		s.mu.Unlock()
		return domainchat.ErrNotParticipant
	}
	if conv.Unread == nil {
		conv.Unread = make(map[string]int)
	}
	conv.Unread[userID] = 0
	for _, msg := range s.messages[conversationID] {
		if msg.SenderID != userID && !msg.Seen {
			msg.Seen = true
		}
	}
	participants := append([]string(nil), conv.Participants...)
	s.mu.Unlock()

	s.notify(domainchat.Change{ConversationID: conversationID, Participants: participants})
	return nil
}

func (s *ChatStore) Block(ctx context.Context, conversationID, userID string) error {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return domainchat.ErrNotFound
	}
	if !conv.HasParticipant(userID) {
		s.mu.Unlock()
		return domainchat.ErrNotParticipant
	}
	if !conv.BlockedFor(userID) {
		conv.BlockedBy = append(conv.BlockedBy, userID)
	}
	conv.Status = domainchat.StatusBlocked
	participants := append([]string(nil), conv.Participants...)
	s.mu.Unlock()

	s.notify(domainchat.Change{ConversationID: conversationID, Participants: participants})
	return nil
}

func (s *ChatStore) Delete(ctx context.Context, conversationID, userID string) (bool, error) {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return false, domainchat.ErrNotFound
	}
	if !conv.HasParticipant(userID) {
		s.mu.Unlock()
		return false, domainchat.ErrNotParticipant
	}
	if !conv.DeletedBy(userID) {
		conv.DeletedFor = append(conv.DeletedFor, userID)
	}
	removed := len(conv.DeletedFor) == len(conv.Participants)
	if removed {
		delete(s.conversations, conversationID)
		delete(s.messages, conversationID)
	}
	participants := append([]string(nil), conv.Participants...)
	s.mu.Unlock()

	s.notify(domainchat.Change{ConversationID: conversationID, Participants: participants})
	return removed, nil
}

func (s *ChatStore) ListConversations(ctx context.Context, userID string, limit int) ([]domainchat.Conversation, error) {
	s.mu.RLock()
	visible := make([]domainchat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.VisibleTo(userID) {
			visible = append(visible, *copyConversation(conv))
		}
	}
	s.mu.RUnlock()

	sort.Slice(visible, func(i, j int) bool {
		return visible[i].UpdatedAt.After(visible[j].UpdatedAt)
	})
	if limit > 0 && len(visible) > limit {
		visible = visible[:limit]
	}
	return visible, nil
}

func (s *ChatStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]domainchat.Message, error) {
	s.mu.RLock()
	if _, ok := s.conversations[conversationID]; !ok {
		s.mu.RUnlock()
		return nil, domainchat.ErrNotFound
	}
	all := make([]domainchat.Message, 0, len(s.messages[conversationID]))
	for _, msg := range s.messages[conversationID] {
		all = append(all, *copyMessage(msg))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].SentAt.Before(all[j].SentAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *ChatStore) UnreadTotal(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, conv := range s.conversations {
		if conv.VisibleTo(userID) {
			total += conv.Unread[userID]
		}
	}
	return total, nil
}

func (s *ChatStore) WatchChanges(ctx context.Context) (<-chan domainchat.Change, error) {
	ch := make(chan domainchat.Change, 64)
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// stamp assigns a strictly increasing server timestamp so redelivered reads
// never reorder messages sent within the same clock tick.
func (s *ChatStore) stamp() time.Time {
	now := s.Clock().UTC()
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = now
	return now
}

func (s *ChatStore) notify(change domainchat.Change) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- change:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- change:
			default:
			}
		}
	}
}

func copyConversation(conv *domainchat.Conversation) *domainchat.Conversation {
	dup := *conv
	dup.Participants = append([]string(nil), conv.Participants...)
	dup.BlockedBy = append([]string(nil), conv.BlockedBy...)
	dup.DeletedFor = append([]string(nil), conv.DeletedFor...)
	dup.Profiles = make(map[string]domainchat.ProfileSnapshot, len(conv.Profiles))
	for id, profile := range conv.Profiles {
		dup.Profiles[id] = profile
	}
	dup.Unread = make(map[string]int, len(conv.Unread))
	for id, count := range conv.Unread {
		dup.Unread[id] = count
	}
	if conv.LastMessage != nil {
		summary := *conv.LastMessage
		dup.LastMessage = &summary
	}
	return &dup
}

func copyMessage(msg *domainchat.Message) *domainchat.Message {
	dup := *msg
	return &dup
}

var _ domainchat.Store = (*ChatStore)(nil)
