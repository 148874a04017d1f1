package orders

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrProductUnavailable = errors.New("product not available")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrDuplicateKey       = errors.New("duplicate idempotency key")
	ErrNotFound           = errors.New("order not found")
	ErrPersistence        = errors.New("persistence failure")
	// ErrReconciliation means stock reversal failed and an operator has to
	// reconcile quantities by hand (or via the reconciler).
	ErrReconciliation = errors.New("stock reconciliation required")
)

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StockError names the product a reservation failed on.
type StockError struct {
	Kind      error // ErrProductUnavailable or ErrInsufficientStock
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	if e.Kind == ErrProductUnavailable {
		return fmt.Sprintf("product not available: %s", e.ProductID)
	}
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s", name)
}

func (e *StockError) Unwrap() error { return e.Kind }

func Unavailable(productID string) error {
	return &StockError{Kind: ErrProductUnavailable, ProductID: productID}
}

func Insufficient(productID, name string, requested, available int) error {
	return &StockError{
		Kind:      ErrInsufficientStock,
		ProductID: productID,
		Name:      name,
		Requested: requested,
		Available: available,
	}
}
