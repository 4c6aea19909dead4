package history

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository, used in
// tests and when no database is configured.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Item
}

// NewInMemoryRepository creates a new in-memory history repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		items: make(map[string]*Item),
	}
}

// Create stores a new item.
func (r *InMemoryRepository) Create(_ context.Context, item *Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *item
	r.items[item.ID] = &cpy
	return nil
}

// ListByOwner returns at most limit items, newest first.
func (r *InMemoryRepository) ListByOwner(_ context.Context, owner string, limit int) ([]*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := r.ownedLocked(owner)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Delete removes an item owned by owner.
func (r *InMemoryRepository) Delete(_ context.Context, owner, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.Owner != owner {
		return ErrItemNotFound
	}
	delete(r.items, id)
	return nil
}

// Trim keeps the newest keep items of owner.
func (r *InMemoryRepository) Trim(_ context.Context, owner string, keep int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.ownedLocked(owner)
	if len(items) <= keep {
		return 0, nil
	}
	for _, item := range items[keep:] {
		delete(r.items, item.ID)
	}
	return len(items) - keep, nil
}

// ownedLocked returns copies of owner's items, newest first.
func (r *InMemoryRepository) ownedLocked(owner string) []*Item {
	var items []*Item
	for _, item := range r.items {
		if item.Owner == owner {
			cpy := *item
			items = append(items, &cpy)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
