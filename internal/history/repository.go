package history

import "context"

// Repository defines the interface for history persistence.
type Repository interface {
	// Create stores a new item.
	Create(ctx context.Context, item *Item) error

	// ListByOwner returns at most limit items, newest first.
	ListByOwner(ctx context.Context, owner string, limit int) ([]*Item, error)

	// Delete removes an item. Returns ErrItemNotFound if the item doesn't
	// exist or doesn't belong to owner.
	Delete(ctx context.Context, owner, id string) error

	// Trim keeps the newest keep items of owner and returns how many were
	// removed.
	Trim(ctx context.Context, owner string, keep int) (int, error)
}
