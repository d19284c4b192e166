package chat

import "context"

// Feed window bounds. The live feeds and list queries never return more than
// this many documents.
const (
	ConversationWindow = 50
	MessageWindow      = 100
)

// Change notifies feed subscribers that a conversation (or its messages)
// changed. Participants lets the dispatcher route without a read-back.
type Change struct {
	ConversationID string
	Participants   []string
}

// Store is the document-store contract of the messaging coordinator. Every
// multi-field write is atomic against the backing store: a reader never
// observes a message without its summary bump.
type Store interface {
	// CreateConversation inserts conv keyed by its deterministic id.
	// When a document already exists at that id it reports created=false
	// and leaves the existing document untouched.
	CreateConversation(ctx context.Context, conv *Conversation) (created bool, err error)

	// GetConversation returns ErrNotFound for unknown ids.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// AppendMessage atomically inserts msg, refreshes the parent summary,
	// increments every non-sender unread counter by one and records the
	// fan-out event. It assigns the server timestamp. Fails with
	// ErrNotFound, ErrNotParticipant or ErrBlocked without any write.
	AppendMessage(ctx context.Context, msg *Message) (*Conversation, error)

	// MarkSeen resets userID's unread counter and flips seen on every
	// message from the counterparty, all or nothing. Idempotent.
	MarkSeen(ctx context.Context, conversationID, userID string) error

	// Block adds userID to the blocked-by set (no-op when present) and
	// sets the status to blocked. One-way.
	Block(ctx context.Context, conversationID, userID string) error

	// Delete tombstones the thread for userID. Once every participant has
	// deleted it, the conversation and its messages are removed for good;
	// removed reports whether that happened.
	Delete(ctx context.Context, conversationID, userID string) (removed bool, err error)

	// ListConversations returns userID's visible threads, most recently
	// updated first, bounded by limit.
	ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error)

	// ListMessages returns up to limit of the newest messages in send
	// order (ascending).
	ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)

	// UnreadTotal sums userID's unread counters across visible threads.
	UnreadTotal(ctx context.Context, userID string) (int, error)

	// WatchChanges emits a Change after every committed mutation until ctx
	// is done. The channel is closed on teardown.
	WatchChanges(ctx context.Context) (<-chan Change, error)
}

// ReportStore persists moderation records.
type ReportStore interface {
	Insert(ctx context.Context, report *Report) error
	List(ctx context.Context, limit int) ([]Report, error)
}
