package listings

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired     = errors.New("listings: id is required")
	ErrSellerRequired = errors.New("listings: seller is required")
	ErrTitleRequired  = errors.New("listings: title is required")
	ErrNotFound       = errors.New("listings: not found")
)

type ListingID string

type SellerID string

// Listing is the marketplace item a conversation is scoped to. The chat
// coordinator only reads it; listing CRUD lives on the hosted platform.
type Listing struct {
	ID          ListingID
	Seller      SellerID
	Title       string
	Description string
	Category    string
	PriceCents  int64
	ImageURL    string
	CreatedAt   time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	Save(ctx context.Context, listing *Listing) error
}

type CreateParams struct {
	ID          ListingID
	Seller      SellerID
	Title       string
	Description string
	Category    string
	PriceCents  int64
	ImageURL    string
	CreatedAt   time.Time
}

func NewListing(params CreateParams) (*Listing, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	seller := strings.TrimSpace(string(params.Seller))
	if seller == "" {
		return nil, ErrSellerRequired
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Listing{
		ID:          ListingID(id),
		Seller:      SellerID(seller),
		Title:       title,
		Description: strings.TrimSpace(params.Description),
		Category:    strings.TrimSpace(params.Category),
		PriceCents:  params.PriceCents,
		ImageURL:    strings.TrimSpace(params.ImageURL),
		CreatedAt:   createdAt,
	}, nil
}
