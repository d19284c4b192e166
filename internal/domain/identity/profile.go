package identity

import (
	"context"
	"errors"
)

var ErrProfileNotFound = errors.New("identity: profile not found")

// Profile is the display profile the hosted identity provider maintains for a
// user. The coordinator treats it as read-only input.
type Profile struct {
	ID          string `bson:"_id" json:"id"`
	Name        string `bson:"name" json:"name"`
	AvatarURL   string `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Affiliation string `bson:"affiliation,omitempty" json:"affiliation,omitempty"`
	Verified    bool   `bson:"verified" json:"verified"`
	Email       string `bson:"email,omitempty" json:"email,omitempty"`
}

// Directory resolves profiles for users other than the caller, typically the
// counterparty when seeding a conversation snapshot.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*Profile, error)
}
