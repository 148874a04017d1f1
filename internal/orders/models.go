package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one requested product in a checkout.
type CartLine struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

// Snapshot is the catalog view of a product at reservation time.
type Snapshot struct {
	ID         string
	Name       string
	SKU        string
	Price      decimal.Decimal
	Currency   string
	Unit       string
	Quantity   int
	Active     bool
	Image      string
	Attributes map[string]any
}

// Item is a frozen copy of the snapshot at order time.
type Item struct {
	ProductID  string          `json:"productId" bson:"product_id"`
	Name       string          `json:"name" bson:"name"`
	SKU        string          `json:"sku" bson:"sku"`
	Image      string          `json:"image,omitempty" bson:"image,omitempty"`
	Price      decimal.Decimal `json:"price" bson:"price"`
	Currency   string          `json:"priceCurrency" bson:"price_currency"`
	Unit       string          `json:"priceUnit" bson:"price_unit"`
	Quantity   int             `json:"quantity" bson:"quantity"`
	LineTotal  decimal.Decimal `json:"lineTotal" bson:"line_total"`
	Attributes map[string]any  `json:"attributes" bson:"attributes"`
}

type Address struct {
	Name       string `json:"name,omitempty" bson:"name,omitempty"`
	Phone      string `json:"phone,omitempty" bson:"phone,omitempty"`
	Line1      string `json:"line1" bson:"line1"`
	Line2      string `json:"line2,omitempty" bson:"line2,omitempty"`
	City       string `json:"city" bson:"city"`
	State      string `json:"state,omitempty" bson:"state,omitempty"`
	PostalCode string `json:"postalCode" bson:"postal_code"`
	Country    string `json:"country" bson:"country"`
}

type Payment struct {
	Provider string         `json:"provider" bson:"provider"`
	Method   string         `json:"method,omitempty" bson:"method,omitempty"`
	Status   PaymentStatus  `json:"status" bson:"status"`
	PaidAt   *time.Time     `json:"paidAt,omitempty" bson:"paid_at,omitempty"`
	Meta     map[string]any `json:"meta" bson:"meta"`
}

// PaymentIntent is what the caller asks for; capture happens elsewhere.
type PaymentIntent struct {
	Provider string `json:"provider"`
	Method   string `json:"method,omitempty"`
}

type Order struct {
	ID              string          `json:"id" bson:"_id"`
	UserID          string          `json:"user" bson:"user_id"`
	Items           []Item          `json:"items" bson:"items"`
	Currency        string          `json:"currency" bson:"currency"`
	Subtotal        decimal.Decimal `json:"subtotal" bson:"subtotal"`
	Shipping        decimal.Decimal `json:"shipping" bson:"shipping"`
	Tax             decimal.Decimal `json:"tax" bson:"tax"`
	Discount        decimal.Decimal `json:"discount" bson:"discount"`
	GrandTotal      decimal.Decimal `json:"grandTotal" bson:"grand_total"`
	Status          Status          `json:"status" bson:"status"`
	Payment         Payment         `json:"payment" bson:"payment"`
	ShippingAddress Address         `json:"shippingAddress" bson:"shipping_address"`
	BillingAddress  Address         `json:"billingAddress" bson:"billing_address"`
	IdempotencyKey  string          `json:"idempotencyKey,omitempty" bson:"idempotency_key,omitempty"`
	Notes           string          `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" bson:"updated_at"`
}

// Patch is a partial update of an order. Nil fields are left untouched.
type Patch struct {
	Status         *Status        `json:"status,omitempty"`
	PaymentStatus  *PaymentStatus `json:"paymentStatus,omitempty"`
	TrackingNumber *string        `json:"trackingNumber,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// PaymentMeta returns the replacement payment meta, or nil when the patch
// does not touch it. Meta is only written together with a tracking number.
func (p Patch) PaymentMeta() map[string]any {
	if p.TrackingNumber == nil || *p.TrackingNumber == "" {
		return nil
	}
	meta := make(map[string]any, len(p.Meta)+1)
	for k, v := range p.Meta {
		meta[k] = v
	}
	meta["trackingNumber"] = *p.TrackingNumber
	return meta
}

// Apply mutates o in memory the same way the stores do.
func (p Patch) Apply(o *Order, now time.Time) {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		o.Payment.Status = *p.PaymentStatus
		if *p.PaymentStatus == PaymentPaid {
			t := now
			o.Payment.PaidAt = &t
		}
	}
	if meta := p.PaymentMeta(); meta != nil {
		o.Payment.Meta = meta
	}
	o.UpdatedAt = now
}

type Filter struct {
	Status Status
	UserID string
}

type Page struct {
	Page  int
	Limit int
}

func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 20
	}
	return p
}

func (p Page) Offset() int { return (p.Page - 1) * p.Limit }
