package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainidentity "campusmarket/internal/domain/identity"
	domainlistings "campusmarket/internal/domain/listings"
)

// ProfileDirectory reads the profile mirror the identity platform maintains.
type ProfileDirectory struct {
	col *mongo.Collection
}

func NewProfileDirectory(db *mongo.Database) *ProfileDirectory {
	return &ProfileDirectory{col: db.Collection("profiles")}
}

func (d *ProfileDirectory) Lookup(ctx context.Context, userID string) (*domainidentity.Profile, error) {
	var profile domainidentity.Profile
	err := d.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainidentity.ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// Save upserts a profile snapshot; used when seeding fixtures.
func (d *ProfileDirectory) Save(ctx context.Context, profile *domainidentity.Profile) error {
	opts := options.Replace().SetUpsert(true)
	_, err := d.col.ReplaceOne(ctx, bson.M{"_id": profile.ID}, profile, opts)
	return err
}

type listingDoc struct {
	ID          string    `bson:"_id"`
	Seller      string    `bson:"seller_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description,omitempty"`
	Category    string    `bson:"category,omitempty"`
	PriceCents  int64     `bson:"price_cents"`
	ImageURL    string    `bson:"image_url,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

// ListingRepository reads the listings collection the storefront writes.
type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection("listings")}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var doc listingDoc
	err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlistings.ErrNotFound
		}
		return nil, err
	}
	return &domainlistings.Listing{
		ID:          domainlistings.ListingID(doc.ID),
		Seller:      domainlistings.SellerID(doc.Seller),
		Title:       doc.Title,
		Description: doc.Description,
		Category:    doc.Category,
		PriceCents:  doc.PriceCents,
		ImageURL:    doc.ImageURL,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	doc := listingDoc{
		ID:          string(listing.ID),
		Seller:      string(listing.Seller),
		Title:       listing.Title,
		Description: listing.Description,
		Category:    listing.Category,
		PriceCents:  listing.PriceCents,
		ImageURL:    listing.ImageURL,
		CreatedAt:   listing.CreatedAt,
	}
	opts := options.Replace().SetUpsert(true)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts)
	return err
}

var (
	_ domainidentity.Directory  = (*ProfileDirectory)(nil)
	_ domainlistings.Repository = (*ListingRepository)(nil)
)
