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

const reversalAttempts = 3

// Compensating decrements line by line without a spanning scope and undoes
// earlier decrements when a later step fails. A crash between a decrement
// and its reversal leaves stock under-counted until reconciled.
type Compensating struct {
	Store     orders.Store
	Pricing   orders.Pricing
	Publisher orders.Publisher
	Producer  string
	Metrics   *metrics.Checkout
	Log       *zap.Logger

	CompensationTimeout time.Duration
	RetryBackoff        time.Duration
}

func newCompensating(store orders.Store, opts Options) *Compensating {
	return &Compensating{
		Store:               store,
		Pricing:             opts.Pricing,
		Publisher:           opts.Publisher,
		Producer:            opts.Producer,
		Metrics:             opts.Metrics,
		Log:                 opts.Log,
		CompensationTimeout: opts.CompensationTimeout,
		RetryBackoff:        opts.RetryBackoff,
	}
}

func (c *Compensating) Name() string { return string(ModeCompensating) }

func (c *Compensating) ReserveAndPlace(ctx context.Context, a Attempt) (*orders.Order, error) {
	r := c.Store.Repos()
	snaps, err := r.Catalog.Snapshots(ctx, a.ProductIDs(), true)
	if err != nil {
		return nil, classify(err)
	}

	var (
		done     []orders.ItemQty
		items    = make([]orders.Item, 0, len(a.Request.Lines))
		currency string
	)
	for _, l := range a.Request.Lines {
		s, ok := snaps[l.ProductID]
		if !ok {
			return nil, c.unwind(ctx, a, r.Stock, done, orders.Unavailable(l.ProductID))
		}
		it := orders.NewItem(s, l.Quantity)
		if currency != "" && it.Currency != currency {
			return nil, c.unwind(ctx, a, r.Stock, done,
				orders.Invalid("mixed currency cart: %s and %s", currency, it.Currency))
		}
		currency = it.Currency

		if err := r.Stock.TryDecrement(ctx, l.ProductID, l.Quantity); err != nil {
			return nil, c.unwind(ctx, a, r.Stock, done, classify(named(err, it)))
		}
		done = append(done, orders.ItemQty{ProductID: l.ProductID, Qty: l.Quantity})
		items = append(items, it)
	}

	totals, err := c.Pricing.Quote(items)
	if err != nil {
		return nil, c.unwind(ctx, a, r.Stock, done, err)
	}
	o := a.Order(items, totals)
	if err := r.Orders.Create(ctx, o); err != nil {
		return nil, c.unwind(ctx, a, r.Stock, done, classify(err))
	}
	return o, nil
}

// unwind reverses done and returns cause, or an ErrReconciliation error if
// any reversal could not be applied.
func (c *Compensating) unwind(ctx context.Context, a Attempt, ledger orders.StockLedger, done []orders.ItemQty, cause error) error {
	if len(done) == 0 {
		return cause
	}
	// Reversal must not be cut short by the caller giving up.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout())
	defer cancel()

	var (
		stuck []orders.ItemQty
		errs  []error
	)
	for i := len(done) - 1; i >= 0; i-- {
		if err := c.increment(cctx, ledger, done[i]); err != nil {
			stuck = append(stuck, done[i])
			errs = append(errs, err)
		}
	}
	if len(stuck) == 0 {
		return cause
	}

	joined := errors.Join(errs...)
	c.Metrics.CompensationFailed(len(stuck))
	c.log().Error("stock reversal failed, reconciliation required",
		zap.String("attempt_id", a.ID),
		zap.String("user_id", a.Request.UserID),
		zap.Any("outstanding", stuck),
		zap.NamedError("cause", cause),
		zap.Error(joined),
	)
	c.alert(cctx, a, stuck, cause)
	return fmt.Errorf("%w: %d of %d reversals failed after %v: %w",
		orders.ErrReconciliation, len(stuck), len(done), cause, joined)
}

func (c *Compensating) increment(ctx context.Context, ledger orders.StockLedger, it orders.ItemQty) error {
	var err error
	for attempt := 1; attempt <= reversalAttempts; attempt++ {
		if err = ledger.Increment(ctx, it.ProductID, it.Qty); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("increment %s: %w", it.ProductID, err)
		case <-time.After(time.Duration(attempt) * c.backoff()):
		}
	}
	return fmt.Errorf("increment %s after %d attempts: %w", it.ProductID, reversalAttempts, err)
}

func (c *Compensating) alert(ctx context.Context, a Attempt, stuck []orders.ItemQty, cause error) {
	if c.Publisher == nil {
		return
	}
	env, err := orders.NewEnvelope(orders.EventReconciliationRequired, c.Producer, a.ID, orders.ReconciliationPayload{
		AttemptID: a.ID,
		UserID:    a.Request.UserID,
		Reason:    cause.Error(),
		Items:     stuck,
	})
	if err == nil {
		err = c.Publisher.Publish(ctx, orders.TopicReconciliationRequired, orders.PartitionKey(a.ID), env)
	}
	if err != nil {
		c.log().Error("publish reconciliation alert", zap.String("attempt_id", a.ID), zap.Error(err))
	}
}

func (c *Compensating) timeout() time.Duration {
	if c.CompensationTimeout <= 0 {
		return 10 * time.Second
	}
	return c.CompensationTimeout
}

func (c *Compensating) backoff() time.Duration {
	if c.RetryBackoff <= 0 {
		return 100 * time.Millisecond
	}
	return c.RetryBackoff
}

func (c *Compensating) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}
