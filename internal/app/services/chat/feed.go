package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	domainchat "campusmarket/internal/domain/chat"
)

// Feed maintains live, ordered views over the store: one per watching user
// for their conversation list, one per (caller, conversation) for messages.
// Each watch returns a caller-owned handle; re-watching the same target by
// the same caller replaces and cancels the prior handle so a caller never
// receives duplicate deliveries.
type Feed struct {
	Store  domainchat.Store
	Logger *slog.Logger

	mu       sync.Mutex
	convSubs map[string]*ConversationFeed
	msgSubs  map[msgKey]*MessageFeed
}

type msgKey struct {
	caller       string
	conversation string
}

func NewFeed(store domainchat.Store, logger *slog.Logger) *Feed {
	return &Feed{
		Store:    store,
		Logger:   logger,
		convSubs: make(map[string]*ConversationFeed),
		msgSubs:  make(map[msgKey]*MessageFeed),
	}
}

// ConversationFeed delivers the full filtered, ordered conversation list
// after every committed change. Only the latest snapshot is retained when the
// consumer lags.
type ConversationFeed struct {
	C <-chan []domainchat.Conversation

	ch     chan []domainchat.Conversation
	cancel func()

	mu        sync.Mutex
	closed    bool
	delivered bool
}

// Cancel tears the subscription down. Leaked handles mean duplicate and late
// deliveries, so callers cancel when navigating away or logging out.
func (h *ConversationFeed) Cancel() { h.cancel() }

func (h *ConversationFeed) push(items []domainchat.Conversation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliver(items)
}

// pushInitial delivers the subscribe-time snapshot unless the change feed
// already pushed a fresher one while that snapshot was being read.
func (h *ConversationFeed) pushInitial(items []domainchat.Conversation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.delivered {
		return
	}
	h.deliver(items)
}

func (h *ConversationFeed) deliver(items []domainchat.Conversation) {
	if h.closed {
		return
	}
	h.delivered = true
	select {
	case h.ch <- items:
	default:
		select {
		case <-h.ch:
		default:
		}
		h.ch <- items
	}
}

func (h *ConversationFeed) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.ch)
}

// MessageFeed is the per-conversation analogue of ConversationFeed.
type MessageFeed struct {
	C <-chan []domainchat.Message

	ch     chan []domainchat.Message
	cancel func()

	mu        sync.Mutex
	closed    bool
	delivered bool
}

func (h *MessageFeed) Cancel() { h.cancel() }

func (h *MessageFeed) push(items []domainchat.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliver(items)
}

func (h *MessageFeed) pushInitial(items []domainchat.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.delivered {
		return
	}
	h.deliver(items)
}

func (h *MessageFeed) deliver(items []domainchat.Message) {
	if h.closed {
		return
	}
	h.delivered = true
	select {
	case h.ch <- items:
	default:
		select {
		case <-h.ch:
		default:
		}
		h.ch <- items
	}
}

func (h *MessageFeed) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.ch)
}

// WatchConversations subscribes userID to their conversation list and emits
// the current snapshot immediately.
func (f *Feed) WatchConversations(ctx context.Context, userID string) (*ConversationFeed, error) {
	handle := &ConversationFeed{ch: make(chan []domainchat.Conversation, 1)}
	handle.C = handle.ch
	handle.cancel = func() {
		f.mu.Lock()
		if f.convSubs[userID] == handle {
			delete(f.convSubs, userID)
		}
		f.mu.Unlock()
		handle.close()
	}

	// Register before reading the snapshot so a write committing in between
	// still reaches this handle through the change feed.
	f.mu.Lock()
	prior := f.convSubs[userID]
	f.convSubs[userID] = handle
	f.mu.Unlock()
	if prior != nil {
		prior.close()
	}

	snapshot, err := f.Store.ListConversations(ctx, userID, domainchat.ConversationWindow)
	if err != nil {
		handle.cancel()
		return nil, err
	}
	handle.pushInitial(snapshot)
	return handle, nil
}

// WatchMessages subscribes the caller to one conversation's message window.
// Only participants may watch.
func (f *Feed) WatchMessages(ctx context.Context, callerID, conversationID string) (*MessageFeed, error) {
	conv, err := f.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(callerID) {
		return nil, domainchat.ErrNotParticipant
	}
	key := msgKey{caller: callerID, conversation: conversationID}
	handle := &MessageFeed{ch: make(chan []domainchat.Message, 1)}
	handle.C = handle.ch
	handle.cancel = func() {
		f.mu.Lock()
		if f.msgSubs[key] == handle {
			delete(f.msgSubs, key)
		}
		f.mu.Unlock()
		handle.close()
	}

	// Register before reading the snapshot so a write committing in between
	// still reaches this handle through the change feed.
	f.mu.Lock()
	prior := f.msgSubs[key]
	f.msgSubs[key] = handle
	f.mu.Unlock()
	if prior != nil {
		prior.close()
	}

	snapshot, err := f.Store.ListMessages(ctx, conversationID, domainchat.MessageWindow)
	if err != nil {
		handle.cancel()
		return nil, err
	}
	handle.pushInitial(snapshot)
	return handle, nil
}

// Run consumes the store's change feed and re-delivers snapshots to affected
// subscribers until ctx is done. Consumers that lag only see the latest
// state, never a stale intermediate.
func (f *Feed) Run(ctx context.Context) error {
	changes, err := f.Store.WatchChanges(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			f.closeAll()
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				f.closeAll()
				return nil
			}
			f.dispatch(ctx, change)
		}
	}
}

func (f *Feed) dispatch(ctx context.Context, change domainchat.Change) {
	type convTarget struct {
		userID string
		handle *ConversationFeed
	}
	var convTargets []convTarget
	var msgTargets []*MessageFeed

	// Message-level changes only carry the conversation id; resolve the
	// participants so list subscribers get refreshed too.
	if len(change.Participants) == 0 {
		if conv, err := f.Store.GetConversation(ctx, change.ConversationID); err == nil {
			change.Participants = conv.Participants
		}
	}

	f.mu.Lock()
	for _, userID := range change.Participants {
		if handle, ok := f.convSubs[userID]; ok {
			convTargets = append(convTargets, convTarget{userID: userID, handle: handle})
		}
	}
	for key, handle := range f.msgSubs {
		if key.conversation == change.ConversationID {
			msgTargets = append(msgTargets, handle)
		}
	}
	f.mu.Unlock()

	for _, target := range convTargets {
		snapshot, err := f.Store.ListConversations(ctx, target.userID, domainchat.ConversationWindow)
		if err != nil {
			f.warn("conversation feed refresh failed", err, "user_id", target.userID)
			continue
		}
		target.handle.push(snapshot)
	}
	for _, handle := range msgTargets {
		snapshot, err := f.Store.ListMessages(ctx, change.ConversationID, domainchat.MessageWindow)
		if err != nil {
			// The conversation was physically removed; the watch is over.
			if errors.Is(err, domainchat.ErrNotFound) {
				handle.cancel()
				continue
			}
			f.warn("message feed refresh failed", err, "conversation_id", change.ConversationID)
			continue
		}
		handle.push(snapshot)
	}
}

func (f *Feed) closeAll() {
	f.mu.Lock()
	convs := make([]*ConversationFeed, 0, len(f.convSubs))
	for _, handle := range f.convSubs {
		convs = append(convs, handle)
	}
	msgs := make([]*MessageFeed, 0, len(f.msgSubs))
	for _, handle := range f.msgSubs {
		msgs = append(msgs, handle)
	}
	f.convSubs = make(map[string]*ConversationFeed)
	f.msgSubs = make(map[msgKey]*MessageFeed)
	f.mu.Unlock()

	for _, handle := range convs {
		handle.close()
	}
	for _, handle := range msgs {
		handle.close()
	}
}

func (f *Feed) warn(msg string, err error, attrs ...any) {
	if f.Logger != nil {
		f.Logger.Warn(msg, append([]any{"error", err}, attrs...)...)
	}
}
