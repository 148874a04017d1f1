package checkout_test

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-realtime-checkout/internal/checkout"
	"github.com/ariefcatur/go-realtime-checkout/internal/memory"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// stubStrategy places orders without touching stock.
type stubStrategy struct {
	attempts []checkout.Attempt
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) ReserveAndPlace(_ context.Context, a checkout.Attempt) (*orders.Order, error) {
	s.attempts = append(s.attempts, a)
	return a.Order(nil, orders.Totals{Currency: "INR"}), nil
}

func TestServiceAcceptsOutsideStrategy(t *testing.T) {
	store := memory.New(true)
	strategy := &stubStrategy{}
	core, logs := observer.New(zapcore.InfoLevel)
	svc := &checkout.Service{
		Strategy: strategy,
		Guard:    &checkout.Guard{Orders: store.Repos().Orders},
		Log:      zap.New(core),
	}

	res, err := svc.Checkout(context.Background(), checkout.Request{
		UserID: "  u1  ",
		Lines: []orders.CartLine{
			{ProductID: "P1", Quantity: 1},
			{ProductID: "P2", Quantity: 2},
			{ProductID: "P1", Quantity: 3},
		},
		ShippingAddress: orders.Address{Line1: "12 MG Road", City: "Pune", PostalCode: "411001"},
	})
	require.NoError(t, err)

	require.Len(t, strategy.attempts, 1)
	a := strategy.attempts[0]
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "u1", a.Request.UserID)
	assert.Equal(t, []string{"P1", "P2"}, a.ProductIDs())
	assert.Equal(t, a.ID, res.Order.ID)
	assert.Equal(t, "u1", res.Order.UserID)
	assert.Equal(t, orders.StatusPending, res.Order.Status)
	assert.Equal(t, a.At, res.Order.CreatedAt)

	entries := logs.FilterMessage("checkout").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].ContextMap()["user_id"])
	assert.Equal(t, "stub", entries[0].ContextMap()["strategy"])
}
