package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Client owns the driver handle for the chat database.
type Client struct {
	DB *mongo.Database
}

// New dials the cluster. Retryable writes plus majority read/write concerns
// keep the transactional append path consistent across primary failovers.
func New(uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.Client().
		ApplyURI(uri).
		SetRetryWrites(true).
		SetWriteConcern(writeconcern.Majority()).
		SetReadConcern(readconcern.Majority())
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}
