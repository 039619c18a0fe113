package orders

import "context"

// Store is the authoritative owner of per-table orders. Implementations
// return *errors.Error values: NOT_FOUND when a table has no order and
// DEPENDENCY_ERROR when the backend cannot be reached or rejects a call.
type Store interface {
	Fetch(ctx context.Context, tableID string) (Order, error)
	List(ctx context.Context) ([]Order, error)
	AddItem(ctx context.Context, tableID string, line Line) error
	UpdateItem(ctx context.Context, tableID, productID string, quantity int) error
	RemoveItem(ctx context.Context, tableID, productID string) error
	Clear(ctx context.Context, tableID string) error
	Complete(ctx context.Context, tableID string) (Completion, error)
}
