package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "campusmarket/internal/domain/chat"
)

// ReportStore persists immutable moderation records.
type ReportStore struct {
	col *mongo.Collection
}

func NewReportStore(db *mongo.Database) *ReportStore {
	col := db.Collection("reports")
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	return &ReportStore{col: col}
}

func (s *ReportStore) Insert(ctx context.Context, report *domainchat.Report) error {
	_, err := s.col.InsertOne(ctx, report)
	return err
}

func (s *ReportStore) List(ctx context.Context, limit int) ([]domainchat.Report, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	out := make([]domainchat.Report, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ domainchat.ReportStore = (*ReportStore)(nil)
