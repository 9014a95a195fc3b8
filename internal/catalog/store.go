package catalog

import "context"

// Store persists medicines. It is the only writer of stock quantities.
//
// DecrementStock is all-or-nothing: when any adjustment cannot be covered, no stock
// changes and the error wraps an *InsufficientStockError for the first shortfall.
type Store interface {
	Get(ctx context.Context, id string) (Medicine, error)
	List(ctx context.Context, query string) ([]Medicine, error)
	Upsert(ctx context.Context, m Medicine) (Medicine, error)
	// Insert adds a new medicine and fails with ErrDuplicate when the id exists.
	Insert(ctx context.Context, m Medicine) (Medicine, error)
	// Update applies fn to the current record and stores the result atomically, so a
	// concurrent stock write is never overwritten by a stale copy.
	Update(ctx context.Context, id string, fn func(*Medicine) error) (Medicine, error)
	Delete(ctx context.Context, id string) error
	DecrementStock(ctx context.Context, adjs []StockAdjustment) ([]Medicine, error)
	// RestoreStock adds quantities back after a decrement whose surrounding work failed.
	RestoreStock(ctx context.Context, adjs []StockAdjustment) error
	// IncrementStock adds packSize × packs units.
	IncrementStock(ctx context.Context, id string, packs int) (Medicine, error)
}
