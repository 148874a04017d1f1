package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is the checkout entry point: validation, replay detection and
// reservation through the strategy picked at startup.
type Service struct {
	Strategy  Strategy
	Guard     *Guard
	Publisher orders.Publisher
	Producer  string
	Metrics   *metrics.Checkout
	Log       *zap.Logger
	Now       func() time.Time
}

func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	req = normalize(req)
	res, err := s.checkout(ctx, req)
	s.Metrics.Observe(s.Strategy.Name(), outcome(res, err), time.Since(start))

	log := s.log().With(zap.String("user_id", req.UserID), zap.String("strategy", s.Strategy.Name()))
	switch {
	case err == nil:
		log.Info("checkout", zap.String("order_id", res.Order.ID), zap.Bool("replayed", res.Replayed))
	case errors.Is(err, orders.ErrReconciliation), errors.Is(err, orders.ErrPersistence):
		log.Error("checkout failed", zap.Error(err))
	default:
		log.Info("checkout rejected", zap.Error(err))
	}
	return res, err
}

func (s *Service) checkout(ctx context.Context, req Request) (Result, error) {
	if err := Validate(req); err != nil {
		return Result{}, err
	}

	existing, err := s.Guard.Check(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return Result{Order: existing, Replayed: true}, nil
	}

	a := Attempt{ID: uuid.NewString(), Request: req, At: s.now()}
	o, err := s.Strategy.ReserveAndPlace(ctx, a)
	if errors.Is(err, orders.ErrDuplicateKey) {
		// Lost a race against a concurrent request with the same key.
		winner, lerr := s.Guard.Resolve(ctx, req.UserID, req.IdempotencyKey)
		if lerr != nil {
			return Result{}, fmt.Errorf("%w: resolve idempotent winner: %w", orders.ErrPersistence, lerr)
		}
		return Result{Order: winner, Replayed: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	s.Guard.Remember(ctx, o)
	s.publishCreated(ctx, o)
	return Result{Order: o}, nil
}

func (s *Service) publishCreated(ctx context.Context, o *orders.Order) {
	if s.Publisher == nil {
		return
	}
	items := make([]orders.ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	env, err := orders.NewEnvelope(orders.EventOrderCreated, s.Producer, o.ID, orders.OrderCreatedPayload{
		OrderID:        o.ID,
		UserID:         o.UserID,
		IdempotencyKey: o.IdempotencyKey,
		Items:          items,
		Currency:       o.Currency,
		GrandTotal:     o.GrandTotal,
		Strategy:       s.Strategy.Name(),
	})
	if err == nil {
		err = s.Publisher.Publish(ctx, orders.TopicOrderCreated, orders.PartitionKey(o.ID), env)
	}
	if err != nil {
		s.log().Warn("publish order created", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	// Millisecond precision survives every backend, so a replay echoes the
	// same timestamps as the original response.
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func outcome(res Result, err error) string {
	switch {
	case err == nil && res.Replayed:
		return "replayed"
	case err == nil:
		return "placed"
	case errors.Is(err, orders.ErrValidation):
		return "invalid"
	case errors.Is(err, orders.ErrProductUnavailable):
		return "unavailable"
	case errors.Is(err, orders.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, orders.ErrReconciliation):
		return "reconciliation_required"
	default:
		return "error"
	}
}
