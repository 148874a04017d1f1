package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"go.uber.org/zap"
)

// IdempotencyCache is an optional fast path in front of the order store.
// Lookup returns "" when nothing is cached.
type IdempotencyCache interface {
	Lookup(ctx context.Context, userID, key string) (string, error)
	Remember(ctx context.Context, userID, key, orderID string) error
}

// Guard short-circuits replayed checkouts. The order store's unique
// (user, key) constraint remains the authority; the guard only saves work.
type Guard struct {
	Orders orders.OrderStore
	Cache  IdempotencyCache
	Log    *zap.Logger
}

// Check returns the order previously placed by userID under key, or nil.
func (g *Guard) Check(ctx context.Context, userID, key string) (*orders.Order, error) {
	if key == "" {
		return nil, nil
	}
	if g.Cache != nil {
		id, err := g.Cache.Lookup(ctx, userID, key)
		if err != nil {
			g.warn("idempotency cache lookup", err, userID, key)
		} else if id != "" {
			o, err := g.Orders.FindByID(ctx, id)
			if err == nil && o.UserID == userID && o.IdempotencyKey == key {
				return o, nil
			}
		}
	}
	o, err := g.Orders.FindByIdempotencyKey(ctx, userID, key)
	if errors.Is(err, orders.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: idempotency lookup: %w", orders.ErrPersistence, err)
	}
	return o, nil
}

// Resolve fetches the winner of a lost (user, key) race straight from the store.
func (g *Guard) Resolve(ctx context.Context, userID, key string) (*orders.Order, error) {
	return g.Orders.FindByIdempotencyKey(ctx, userID, key)
}

func (g *Guard) Remember(ctx context.Context, o *orders.Order) {
	if g.Cache == nil || o.IdempotencyKey == "" {
		return
	}
	if err := g.Cache.Remember(ctx, o.UserID, o.IdempotencyKey, o.ID); err != nil {
		g.warn("idempotency cache write", err, o.UserID, o.IdempotencyKey)
	}
}

func (g *Guard) warn(msg string, err error, userID, key string) {
	if g.Log == nil {
		return
	}
	g.Log.Warn(msg, zap.String("user_id", userID), zap.String("idempotency_key", key), zap.Error(err))
}
