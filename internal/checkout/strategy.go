package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"go.uber.org/zap"
)

// Strategy reserves stock for an attempt, prices it and persists the order.
// On error no order exists and no net stock change remains, except when the
// error wraps orders.ErrReconciliation.
type Strategy interface {
	Name() string
	ReserveAndPlace(ctx context.Context, a Attempt) (*orders.Order, error)
}

type Mode string

const (
	ModeAuto          Mode = "auto"
	ModeTransactional Mode = "transactional"
	ModeCompensating  Mode = "compensating"
)

type Options struct {
	Pricing   orders.Pricing
	Publisher orders.Publisher
	Producer  string
	Metrics   *metrics.Checkout
	Log       *zap.Logger
	// CompensationTimeout bounds the reversal of decrements after a failure.
	CompensationTimeout time.Duration
	RetryBackoff        time.Duration
}

// SelectStrategy probes the store once and returns the matching strategy.
func SelectStrategy(ctx context.Context, store orders.Store, mode Mode, opts Options) (Strategy, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Pricing == (orders.Pricing{}) {
		opts.Pricing = orders.DefaultPricing
	}
	switch mode {
	case ModeCompensating:
		return newCompensating(store, opts), nil
	case ModeTransactional, ModeAuto, "":
	default:
		return nil, fmt.Errorf("unknown checkout strategy %q", mode)
	}

	ok, err := store.SupportsTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe transaction support: %w", err)
	}
	if ok {
		return &Transactional{Store: store, Pricing: opts.Pricing}, nil
	}
	if mode == ModeTransactional {
		return nil, errors.New("store does not support transactions")
	}
	return newCompensating(store, opts), nil
}

// Transactional does every check, decrement and the order insert inside one
// atomic scope.
type Transactional struct {
	Store   orders.Store
	Pricing orders.Pricing
}

func (t *Transactional) Name() string { return string(ModeTransactional) }

func (t *Transactional) ReserveAndPlace(ctx context.Context, a Attempt) (*orders.Order, error) {
	var placed *orders.Order
	err := t.Store.WithTransaction(ctx, func(ctx context.Context, r orders.Repos) error {
		snaps, err := r.Catalog.Snapshots(ctx, a.ProductIDs(), true)
		if err != nil {
			return err
		}
		items := make([]orders.Item, 0, len(a.Request.Lines))
		for _, l := range a.Request.Lines {
			s, ok := snaps[l.ProductID]
			if !ok {
				return orders.Unavailable(l.ProductID)
			}
			if l.Quantity > s.Quantity {
				return orders.Insufficient(s.ID, s.Name, l.Quantity, s.Quantity)
			}
			items = append(items, orders.NewItem(s, l.Quantity))
		}
		for _, it := range items {
			if err := r.Stock.TryDecrement(ctx, it.ProductID, it.Quantity); err != nil {
				return named(err, it)
			}
		}
		totals, err := t.Pricing.Quote(items)
		if err != nil {
			return err
		}
		o := a.Order(items, totals)
		if err := r.Orders.Create(ctx, o); err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return placed, nil
}

// classify keeps domain errors as they are and marks the rest as persistence
// failures. Timeouts land here too: the scope rolled back server side.
func classify(err error) error {
	for _, kind := range []error{
		orders.ErrValidation,
		orders.ErrProductUnavailable,
		orders.ErrInsufficientStock,
		orders.ErrDuplicateKey,
		orders.ErrPersistence,
		orders.ErrReconciliation,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", orders.ErrPersistence, err)
}

// named attaches the product name to a ledger error.
func named(err error, it orders.Item) error {
	if !errors.Is(err, orders.ErrInsufficientStock) {
		return err
	}
	available := 0
	var se *orders.StockError
	if errors.As(err, &se) {
		available = se.Available
	}
	return orders.Insufficient(it.ProductID, it.Name, it.Quantity, available)
}
