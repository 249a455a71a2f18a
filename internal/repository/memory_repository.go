package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/iliyamo/apartment-board/internal/model"
)

// MemoryListingRepo keeps listings in process memory. It backs
// STORE_DRIVER=memory for local runs and serves as the store in tests.
// Listings are copied on the way in and out so callers never share
// pointers with the map.
type MemoryListingRepo struct {
	mu     sync.RWMutex
	nextID uint64
	rows   map[uint64]model.Listing
}

// NewMemoryListingRepo returns an empty store whose first id is 1.
func NewMemoryListingRepo() *MemoryListingRepo {
	return &MemoryListingRepo{rows: make(map[uint64]model.Listing)}
}

func (r *MemoryListingRepo) Insert(_ context.Context, l *model.Listing) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	l.ID = r.nextID
	r.rows[l.ID] = copyListing(*l)
	return l.ID, nil
}

func (r *MemoryListingRepo) FindByID(_ context.Context, id uint64) (*model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	out := copyListing(row)
	return &out, nil
}

// Update mirrors ListingRepo.Update: the stored token and posted_at are kept.
func (r *MemoryListingRepo) Update(_ context.Context, l *model.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[l.ID]
	if !ok {
		return ErrListingNotFound
	}
	next := copyListing(*l)
	next.SecurityToken = row.SecurityToken
	next.PostedAt = row.PostedAt
	r.rows[l.ID] = next
	return nil
}

func (r *MemoryListingRepo) Remove(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return ErrListingNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *MemoryListingRepo) ListActive(_ context.Context, limit, offset int) ([]model.Listing, error) {
	if limit > 0 && offset < 0 {
		return nil, ErrNegativeOffset
	}
	r.mu.RLock()
	active := make([]model.Listing, 0, len(r.rows))
	for _, row := range r.rows {
		if row.Status {
			active = append(active, copyListing(row))
		}
	}
	r.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		if !active[i].PostedAt.Equal(active[j].PostedAt) {
			return active[i].PostedAt.After(active[j].PostedAt)
		}
		return active[i].ID > active[j].ID
	})
	if limit <= 0 {
		return active, nil
	}
	if offset >= len(active) {
		return []model.Listing{}, nil
	}
	end := offset + limit
	if end > len(active) {
		end = len(active)
	}
	return active[offset:end], nil
}

func (r *MemoryListingRepo) CountActive(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, row := range r.rows {
		if row.Status {
			n++
		}
	}
	return n, nil
}

func copyListing(l model.Listing) model.Listing {
	if l.EditedAt != nil {
		t := *l.EditedAt
		l.EditedAt = &t
	}
	return l
}
