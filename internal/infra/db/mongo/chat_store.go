package mongo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appoutbox "campusmarket/internal/app/outbox"
	domainchat "campusmarket/internal/domain/chat"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "conversation_messages"
)

// ChatStore implements the chat document-store contract on MongoDB. The
// append and mark-seen paths run inside a session transaction so the message
// write, the parent summary bump and the fan-out record commit together.
type ChatStore struct {
	db            *mongo.Database
	conversations *mongo.Collection
	messages      *mongo.Collection
	box           appoutbox.Outbox
	logger        *slog.Logger
}

// NewChatStore wires the collections and their indexes. box receives fan-out
// records inside the append transaction; it must honor session contexts.
func NewChatStore(db *mongo.Database, box appoutbox.Outbox, logger *slog.Logger) *ChatStore {
	store := &ChatStore{
		db:            db,
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
		box:           box,
		logger:        logger,
	}
	_, _ = store.conversations.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
	})
	_, _ = store.messages.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "sent_at", Value: 1}},
	})
	return store
}

func (s *ChatStore) CreateConversation(ctx context.Context, conv *domainchat.Conversation) (bool, error) {
	_, err := s.conversations.InsertOne(ctx, conv)
	if err != nil {
		// The deterministic _id makes get-or-create a conditional insert:
		// a duplicate key means the thread already exists and must not be
		// re-seeded.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *ChatStore) GetConversation(ctx context.Context, id string) (*domainchat.Conversation, error) {
	var conv domainchat.Conversation
	err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (s *ChatStore) AppendMessage(ctx context.Context, msg *domainchat.Message) (*domainchat.Conversation, error) {
	var updated *domainchat.Conversation
	err := s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		conv, err := s.GetConversation(sc, msg.ConversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(msg.SenderID) {
			return domainchat.ErrNotParticipant
		}
		if conv.BlockedFor(msg.SenderID) {
			return domainchat.ErrBlocked
		}

		msg.SentAt = time.Now().UTC()
		msg.Seen = false
		if _, err := s.messages.InsertOne(sc, msg); err != nil {
			return err
		}

		summary := &domainchat.MessageSummary{
			Text:     msg.Body,
			SenderID: msg.SenderID,
			SentAt:   msg.SentAt,
		}
		increments := bson.M{}
		for _, participant := range conv.Participants {
			if participant != msg.SenderID {
				increments["unread."+participant] = 1
				conv.Unread[participant]++
			}
		}
		update := bson.M{
			"$set": bson.M{"last_message": summary, "updated_at": msg.SentAt},
			"$inc": increments,
		}
		if _, err := s.conversations.UpdateByID(sc, conv.ID, update); err != nil {
			return err
		}
		conv.LastMessage = summary
		conv.UpdatedAt = msg.SentAt

		if s.box != nil {
			record, err := appoutbox.Encode(domainchat.NewMessageSentEvent(conv, msg))
			if err != nil {
				return err
			}
			if err := s.box.Add(sc, record); err != nil {
				return err
			}
		}
		updated = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *ChatStore) MarkSeen(ctx context.Context, conversationID, userID string) error {
	return s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		conv, err := s.GetConversation(sc, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(userID) {
			return domainchat.ErrNotParticipant
		}
		if _, err := s.conversations.UpdateByID(sc, conversationID, bson.M{
			"$set": bson.M{"unread." + userID: 0},
		}); err != nil {
			return err
		}
		_, err = s.messages.UpdateMany(sc, bson.M{
			"conversation_id": conversationID,
			"sender_id":       bson.M{"$ne": userID},
			"seen":            false,
		}, bson.M{"$set": bson.M{"seen": true}})
		return err
	})
}

func (s *ChatStore) Block(ctx context.Context, conversationID, userID string) error {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return domainchat.ErrNotParticipant
	}
	_, err = s.conversations.UpdateByID(ctx, conversationID, bson.M{
		"$addToSet": bson.M{"blocked_by": userID},
		"$set":      bson.M{"status": domainchat.StatusBlocked},
	})
	return err
}

func (s *ChatStore) Delete(ctx context.Context, conversationID, userID string) (bool, error) {
	removed := false
	err := s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		conv, err := s.GetConversation(sc, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(userID) {
			return domainchat.ErrNotParticipant
		}
		deleted := append([]string(nil), conv.DeletedFor...)
		if !conv.DeletedBy(userID) {
			deleted = append(deleted, userID)
		}
		if len(deleted) == len(conv.Participants) {
			if _, err := s.conversations.DeleteOne(sc, bson.M{"_id": conversationID}); err != nil {
				return err
			}
			if _, err := s.messages.DeleteMany(sc, bson.M{"conversation_id": conversationID}); err != nil {
				return err
			}
			removed = true
			return nil
		}
		_, err = s.conversations.UpdateByID(sc, conversationID, bson.M{
			"$addToSet": bson.M{"deleted_for": userID},
		})
		return err
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func visibleFilter(userID string) bson.M {
	return bson.M{
		"participants": userID,
		"deleted_for":  bson.M{"$ne": userID},
		"blocked_by":   bson.M{"$ne": userID},
	}
}

func (s *ChatStore) ListConversations(ctx context.Context, userID string, limit int) ([]domainchat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := s.conversations.Find(ctx, visibleFilter(userID), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	out := make([]domainchat.Conversation, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ChatStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]domainchat.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	newestFirst := make([]domainchat.Message, 0)
	if err := cursor.All(ctx, &newestFirst); err != nil {
		return nil, err
	}
	// Queried newest-first to bound the window; callers consume ascending.
	for i, j := 0, len(newestFirst)-1; i < j; i, j = i+1, j-1 {
		newestFirst[i], newestFirst[j] = newestFirst[j], newestFirst[i]
	}
	return newestFirst, nil
}

func (s *ChatStore) UnreadTotal(ctx context.Context, userID string) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: visibleFilter(userID)}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": bson.M{"$ifNull": bson.A{"$unread." + userID, 0}}},
		}}},
	}
	cursor, err := s.conversations.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)
	var rows []struct {
		Total int `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// WatchChanges tails the database change stream and reduces raw events to
// coarse conversation-level change notifications for the feed.
func (s *ChatStore) WatchChanges(ctx context.Context) (<-chan domainchat.Change, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"ns.coll": bson.M{"$in": bson.A{conversationsCollection, messagesCollection}},
		}}},
	}
	stream, err := s.db.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, err
	}

	out := make(chan domainchat.Change, 64)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())
		reducer := newChangeReducer()
		for stream.Next(ctx) {
			var event struct {
				OperationType string `bson:"operationType"`
				NS            struct {
					Coll string `bson:"coll"`
				} `bson:"ns"`
				DocumentKey struct {
					ID interface{} `bson:"_id"`
				} `bson:"documentKey"`
				FullDocument bson.M `bson:"fullDocument"`
			}
			if err := stream.Decode(&event); err != nil {
				if s.logger != nil {
					s.logger.Warn("change stream decode failed", "error", err)
				}
				continue
			}
			change, ok := reducer.reduce(event.OperationType, event.NS.Coll, event.DocumentKey.ID, event.FullDocument)
			if !ok {
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) && s.logger != nil {
			s.logger.Error("change stream terminated", "error", err)
		}
	}()
	return out, nil
}

// changeReducer folds raw stream events into conversation-level changes. It
// remembers each conversation's participants because delete events carry no
// fullDocument, and the document is already gone when they arrive.
type changeReducer struct {
	participants map[string][]string
}

func newChangeReducer() *changeReducer {
	return &changeReducer{participants: make(map[string][]string)}
}

func (r *changeReducer) reduce(op, coll string, documentKey interface{}, fullDocument bson.M) (domainchat.Change, bool) {
	switch coll {
	case conversationsCollection:
		id, _ := documentKey.(string)
		if id == "" {
			return domainchat.Change{}, false
		}
		change := domainchat.Change{ConversationID: id}
		if op == "delete" {
			change.Participants = r.participants[id]
			delete(r.participants, id)
			return change, true
		}
		if raw, ok := fullDocument["participants"].(bson.A); ok {
			for _, entry := range raw {
				if participant, ok := entry.(string); ok {
					change.Participants = append(change.Participants, participant)
				}
			}
		}
		if len(change.Participants) > 0 {
			r.participants[id] = change.Participants
		}
		return change, true
	case messagesCollection:
		// Bulk message removal rides the conversation delete event.
		if op == "delete" || fullDocument == nil {
			return domainchat.Change{}, false
		}
		id, _ := fullDocument["conversation_id"].(string)
		if id == "" {
			return domainchat.Change{}, false
		}
		return domainchat.Change{ConversationID: id, Participants: r.participants[id]}, true
	}
	return domainchat.Change{}, false
}

func (s *ChatStore) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

var _ domainchat.Store = (*ChatStore)(nil)
