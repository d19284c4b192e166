package memory

import (
	"context"
	"sort"
	"sync"

	domainchat "campusmarket/internal/domain/chat"
	domainidentity "campusmarket/internal/domain/identity"
	domainlistings "campusmarket/internal/domain/listings"
)

// ListingRepository is an in-memory listing mirror for demo mode and tests.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]*domainlistings.Listing
}

// NewListingRepository builds an empty repository.
func NewListingRepository() *ListingRepository {
	return &ListingRepository{
		items: make(map[domainlistings.ListingID]*domainlistings.Listing),
	}
}

// ByID returns a listing or listings.ErrNotFound.
func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok {
		return nil, domainlistings.ErrNotFound
	}
	return listing, nil
}

// Save stores/updates a listing entry.
func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[listing.ID] = listing
	return nil
}

// ProfileDirectory keeps identity-provider profile snapshots in memory.
type ProfileDirectory struct {
	mu    sync.RWMutex
	items map[string]*domainidentity.Profile
}

// NewProfileDirectory builds an empty directory.
func NewProfileDirectory() *ProfileDirectory {
	return &ProfileDirectory{items: make(map[string]*domainidentity.Profile)}
}

// Lookup resolves a profile or identity.ErrProfileNotFound.
func (r *ProfileDirectory) Lookup(ctx context.Context, userID string) (*domainidentity.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.items[userID]
	if !ok {
		return nil, domainidentity.ErrProfileNotFound
	}
	dup := *profile
	return &dup, nil
}

// Save stores a profile snapshot.
func (r *ProfileDirectory) Save(ctx context.Context, profile *domainidentity.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dup := *profile
	r.items[profile.ID] = &dup
	return nil
}

// ReportStore keeps moderation records in memory.
type ReportStore struct {
	mu    sync.RWMutex
	items []*domainchat.Report
}

// NewReportStore builds an empty store.
func NewReportStore() *ReportStore {
	return &ReportStore{}
}

// Insert appends an immutable report record.
func (r *ReportStore) Insert(ctx context.Context, report *domainchat.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dup := *report
	r.items = append(r.items, &dup)
	return nil
}

// List returns reports, newest first.
func (r *ReportStore) List(ctx context.Context, limit int) ([]domainchat.Report, error) {
	r.mu.RLock()
	out := make([]domainchat.Report, 0, len(r.items))
	for _, report := range r.items {
		out = append(out, *report)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ domainlistings.Repository = (*ListingRepository)(nil)
	_ domainidentity.Directory  = (*ProfileDirectory)(nil)
	_ domainchat.ReportStore    = (*ReportStore)(nil)
)
