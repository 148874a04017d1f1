package checkout

import (
	"math"
	"strings"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
)

const (
	maxIdempotencyKeyLen = 255
	// Stock columns are 32-bit on every backend.
	maxLineQuantity = math.MaxInt32
)

type Request struct {
	UserID          string
	Lines           []orders.CartLine
	ShippingAddress orders.Address
	BillingAddress  *orders.Address
	Payment         orders.PaymentIntent
	IdempotencyKey  string
	Notes           string
}

type Result struct {
	Order    *orders.Order
	Replayed bool
}

func normalize(req Request) Request {
	req.UserID = strings.TrimSpace(req.UserID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.Payment.Provider = strings.ToLower(strings.TrimSpace(req.Payment.Provider))
	if req.Payment.Provider == "" {
		req.Payment.Provider = "cod"
	}
	if req.Payment.Method == "" && req.Payment.Provider == "cod" {
		req.Payment.Method = "cod"
	}
	req.ShippingAddress = normalizeAddress(req.ShippingAddress)
	if req.BillingAddress != nil {
		b := normalizeAddress(*req.BillingAddress)
		req.BillingAddress = &b
	}
	return req
}

func normalizeAddress(a orders.Address) orders.Address {
	a.Line1 = strings.TrimSpace(a.Line1)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	if a.Country == "" {
		a.Country = "IN"
	}
	return a
}

// Validate rejects a request before any stock is touched.
func Validate(req Request) error {
	if req.UserID == "" {
		return orders.Invalid("user id required")
	}
	if len(req.Lines) == 0 {
		return orders.Invalid("cart items required")
	}
	for i, l := range req.Lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return orders.Invalid("item %d: productId required", i)
		}
		if l.Quantity < 1 {
			return orders.Invalid("item %d: quantity must be at least 1", i)
		}
		if l.Quantity > maxLineQuantity {
			return orders.Invalid("item %d: quantity exceeds %d", i, maxLineQuantity)
		}
	}
	a := req.ShippingAddress
	if a.Line1 == "" || a.City == "" || a.PostalCode == "" {
		return orders.Invalid("shipping address incomplete")
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return orders.Invalid("idempotency key too long")
	}
	return nil
}

// Attempt is one checkout after validation, handed to a Strategy.
type Attempt struct {
	ID      string
	Request Request
	At      time.Time
}

// ProductIDs lists the distinct products in cart order.
func (a Attempt) ProductIDs() []string {
	seen := make(map[string]bool, len(a.Request.Lines))
	ids := make([]string, 0, len(a.Request.Lines))
	for _, l := range a.Request.Lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

// Order builds the pending order for priced items.
func (a Attempt) Order(items []orders.Item, t orders.Totals) *orders.Order {
	billing := a.Request.ShippingAddress
	if a.Request.BillingAddress != nil {
		billing = *a.Request.BillingAddress
	}
	return &orders.Order{
		ID:         a.ID,
		UserID:     a.Request.UserID,
		Items:      items,
		Currency:   t.Currency,
		Subtotal:   t.Subtotal,
		Shipping:   t.Shipping,
		Tax:        t.Tax,
		Discount:   t.Discount,
		GrandTotal: t.GrandTotal,
		Status:     orders.StatusPending,
		Payment: orders.Payment{
			Provider: a.Request.Payment.Provider,
			Method:   a.Request.Payment.Method,
			Status:   orders.PaymentUnpaid,
			Meta:     map[string]any{},
		},
		ShippingAddress: a.Request.ShippingAddress,
		BillingAddress:  billing,
		IdempotencyKey:  a.Request.IdempotencyKey,
		Notes:           a.Request.Notes,
		CreatedAt:       a.At,
		UpdatedAt:       a.At,
	}
}
