// Package inventory restores stock that a failed checkout could not give
// back by itself.
package inventory

import (
	"context"
	"fmt"
	"strconv"

	kafkax "github.com/ariefcatur/go-realtime-checkout/internal/kafka"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Dedup remembers which parts of an event were already applied.
type Dedup interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

type Reconciler struct {
	Stock orders.StockLedger
	Dedup Dedup
	Log   *zap.Logger
}

// HandleReconciliation is installed as the consumer handler for
// stock.reconciliation.required. Each line is applied at most once, so a
// redelivered or partially applied event is safe to replay.
func (s *Reconciler) HandleReconciliation(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		s.Log.Error("drop undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventReconciliationRequired {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.ReconciliationPayload](env.Payload)
	if err != nil {
		s.Log.Error("drop undecodable payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	for i, it := range p.Items {
		id := env.EventID + ":" + strconv.Itoa(i)
		done, err := s.Dedup.Seen(ctx, id)
		if err != nil {
			return fmt.Errorf("dedup %s: %w", id, err)
		}
		if done {
			continue
		}
		if err := s.Stock.Increment(ctx, it.ProductID, it.Qty); err != nil {
			return fmt.Errorf("restore %s: %w", it.ProductID, err)
		}
		if err := s.Dedup.Mark(ctx, id); err != nil {
			// The increment is applied; a replay of this line would double it.
			s.Log.Error("dedup mark failed after restore", zap.String("dedup_id", id), zap.Error(err))
		}
		s.Log.Info("stock restored",
			zap.String("attempt_id", p.AttemptID),
			zap.String("product_id", it.ProductID),
			zap.Int("qty", it.Qty))
	}
	return nil
}
