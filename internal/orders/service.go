package orders

import (
	"context"

	"go.uber.org/zap"
)

// Publisher emits domain events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, env Envelope) error
}

// Service serves order reads and operator mutations.
type Service struct {
	Store     OrderStore
	Publisher Publisher
	Producer  string
	Log       *zap.Logger
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.Store.FindByID(ctx, id)
}

func (s *Service) Mine(ctx context.Context, userID string) ([]Order, error) {
	return s.Store.FindByUser(ctx, userID)
}

func (s *Service) List(ctx context.Context, f Filter, p Page) ([]Order, int64, Page, error) {
	p = p.Normalize()
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, p, Invalid("unknown status %q", f.Status)
	}
	items, total, err := s.Store.FindAll(ctx, f, p)
	return items, total, p, err
}

// Update applies an operator patch. Any status may be set from any status.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Order, error) {
	if p.Status != nil && !p.Status.Valid() {
		return nil, Invalid("unknown status %q", *p.Status)
	}
	if p.PaymentStatus != nil && !p.PaymentStatus.Valid() {
		return nil, Invalid("unknown payment status %q", *p.PaymentStatus)
	}
	o, err := s.Store.Patch(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.publishUpdated(ctx, o)
	return o, nil
}

func (s *Service) publishUpdated(ctx context.Context, o *Order) {
	if s.Publisher == nil {
		return
	}
	env, err := NewEnvelope(EventOrderUpdated, s.Producer, o.ID, OrderUpdatedPayload{
		OrderID:       o.ID,
		Status:        o.Status,
		PaymentStatus: o.Payment.Status,
	})
	if err == nil {
		err = s.Publisher.Publish(ctx, TopicOrderUpdated, PartitionKey(o.ID), env)
	}
	if err != nil && s.Log != nil {
		s.Log.Warn("publish order updated", zap.String("order_id", o.ID), zap.Error(err))
	}
}
