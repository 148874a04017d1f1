package orders

import "context"

// Catalog returns snapshots for the given ids. Missing ids are simply
// absent from the result.
type Catalog interface {
	Snapshots(ctx context.Context, ids []string, activeOnly bool) (map[string]Snapshot, error)
}

// StockLedger is the only way this module mutates product quantity.
type StockLedger interface {
	// TryDecrement lowers quantity by qty only if quantity >= qty, atomically.
	// It returns an error wrapping ErrInsufficientStock otherwise.
	TryDecrement(ctx context.Context, productID string, qty int) error
	// Increment undoes a prior successful TryDecrement.
	Increment(ctx context.Context, productID string, qty int) error
}

type OrderStore interface {
	// Create fails with ErrDuplicateKey if the (user, idempotency key)
	// pair is already taken.
	Create(ctx context.Context, o *Order) error
	Patch(ctx context.Context, id string, p Patch) (*Order, error)
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByUser(ctx context.Context, userID string) ([]Order, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	FindAll(ctx context.Context, f Filter, p Page) ([]Order, int64, error)
}

// Repos is the set of repositories bound to one scope: either the plain
// store or an open transaction.
type Repos struct {
	Catalog Catalog
	Stock   StockLedger
	Orders  OrderStore
}

type Store interface {
	Repos() Repos
	// SupportsTransactions reports whether WithTransaction gives
	// multi-document atomicity in this deployment.
	SupportsTransactions(ctx context.Context) (bool, error)
	// WithTransaction runs fn in one atomic scope. A non-nil error from fn
	// rolls everything back.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}
