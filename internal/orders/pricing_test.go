package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTotals(t *testing.T) {
	cases := []struct {
		name                                  string
		currency, subtotal, discount          string
		wantShipping, wantTax, wantGrandTotal string
	}{
		{"below threshold", "INR", "500", "0", "49", "90", "639"},
		{"just below threshold", "INR", "998.99", "0", "49", "179.82", "1227.81"},
		{"at threshold", "INR", "999", "0", "0", "179.82", "1178.82"},
		{"above threshold", "INR", "1000", "0", "0", "180", "1180"},
		{"tax rounds half up", "INR", "0.25", "0", "49", "0.05", "49.3"},
		{"zero decimal currency", "JPY", "1234", "0", "0", "222", "1456"},
		{"three decimal currency", "KWD", "10.005", "0", "49", "1.801", "60.806"},
		{"discount clamps at zero", "INR", "10", "100", "49", "1.8", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DefaultPricing.Totals(tc.currency, d(tc.subtotal), d(tc.discount))
			assert.Equal(t, tc.wantShipping, got.Shipping.String(), "shipping")
			assert.Equal(t, tc.wantTax, got.Tax.String(), "tax")
			assert.Equal(t, tc.wantGrandTotal, got.GrandTotal.String(), "grand total")
		})
	}
}

func TestQuote(t *testing.T) {
	a := NewItem(Snapshot{ID: "A", Price: d("199.99")}, 3)
	b := NewItem(Snapshot{ID: "B", Price: d("0.03"), Currency: "inr"}, 1)

	got, err := DefaultPricing.Quote([]Item{a, b})
	require.NoError(t, err)
	assert.Equal(t, "INR", got.Currency)
	assert.Equal(t, "600", got.Subtotal.String())
	assert.True(t, got.Shipping.IsZero())
	assert.Equal(t, "108", got.Tax.String())
	assert.Equal(t, "708", got.GrandTotal.String())

	_, err = DefaultPricing.Quote(nil)
	assert.ErrorIs(t, err, ErrValidation)

	usd := NewItem(Snapshot{ID: "C", Price: d("1"), Currency: "USD"}, 1)
	_, err = DefaultPricing.Quote([]Item{a, usd})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewItemFreezesSnapshot(t *testing.T) {
	attrs := map[string]any{"color": "blue"}
	s := Snapshot{ID: "A", Name: "Shirt", SKU: "S-1", Price: d("250"), Image: "a.jpg", Attributes: attrs}

	it := NewItem(s, 2)
	attrs["color"] = "red"

	assert.Equal(t, "INR", it.Currency)
	assert.Equal(t, "piece", it.Unit)
	assert.Equal(t, "500", it.LineTotal.String())
	assert.Equal(t, "blue", it.Attributes["color"])
	assert.Equal(t, "a.jpg", it.Image)
}

func TestMinorUnit(t *testing.T) {
	assert.EqualValues(t, 2, MinorUnit("INR"))
	assert.EqualValues(t, 0, MinorUnit("jpy"))
	assert.EqualValues(t, 3, MinorUnit("BHD"))
}
