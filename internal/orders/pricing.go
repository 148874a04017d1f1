package orders

import (
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "INR"

// Pricing holds the fixed shipping and tax formula.
type Pricing struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	TaxRate               decimal.Decimal
}

var DefaultPricing = Pricing{
	FreeShippingThreshold: decimal.NewFromInt(999),
	FlatShippingFee:       decimal.NewFromInt(49),
	TaxRate:               decimal.RequireFromString("0.18"),
}

type Totals struct {
	Currency   string
	Subtotal   decimal.Decimal
	Shipping   decimal.Decimal
	Tax        decimal.Decimal
	Discount   decimal.Decimal
	GrandTotal decimal.Decimal
}

// minorUnits lists ISO-4217 currencies whose minor unit is not 2 digits.
var minorUnits = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

func MinorUnit(currency string) int32 {
	if n, ok := minorUnits[strings.ToUpper(currency)]; ok {
		return n
	}
	return 2
}

// NewItem freezes a snapshot into an order item.
func NewItem(s Snapshot, qty int) Item {
	attrs := make(map[string]any, len(s.Attributes))
	for k, v := range s.Attributes {
		attrs[k] = v
	}
	return Item{
		ProductID:  s.ID,
		Name:       s.Name,
		SKU:        s.SKU,
		Image:      s.Image,
		Price:      s.Price,
		Currency:   currencyOf(s),
		Unit:       unitOf(s),
		Quantity:   qty,
		LineTotal:  s.Price.Mul(decimal.NewFromInt(int64(qty))),
		Attributes: attrs,
	}
}

func currencyOf(s Snapshot) string {
	if s.Currency == "" {
		return DefaultCurrency
	}
	return strings.ToUpper(s.Currency)
}

func unitOf(s Snapshot) string {
	if s.Unit == "" {
		return "piece"
	}
	return s.Unit
}

// Quote prices a currency-homogeneous list of items.
func (p Pricing) Quote(items []Item) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, Invalid("no items to price")
	}
	currency := items[0].Currency
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Currency != currency {
			return Totals{}, Invalid("mixed currency cart: %s and %s", currency, it.Currency)
		}
		subtotal = subtotal.Add(it.LineTotal)
	}
	return p.Totals(currency, subtotal, decimal.Zero), nil
}

// Totals applies the shipping and tax formula to a subtotal.
func (p Pricing) Totals(currency string, subtotal, discount decimal.Decimal) Totals {
	shipping := p.FlatShippingFee
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	// Round is half away from zero, i.e. half-up for non-negative amounts.
	tax := subtotal.Mul(p.TaxRate).Round(MinorUnit(currency))
	grand := subtotal.Add(shipping).Add(tax).Sub(discount)
	if grand.IsNegative() {
		grand = decimal.Zero
	}
	return Totals{
		Currency:   currency,
		Subtotal:   subtotal,
		Shipping:   shipping,
		Tax:        tax,
		Discount:   discount,
		GrandTotal: grand,
	}
}
