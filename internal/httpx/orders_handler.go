package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/checkout"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrdersHandler struct {
	Checkout *checkout.Service
	Orders   *orders.Service
	Auth     *Auth
	Log      *zap.Logger
	// Timeout bounds one checkout, default 5s.
	Timeout time.Duration

	validate *validator.Validate
}

type addressReq struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country"`
}

func (a addressReq) address() orders.Address {
	return orders.Address{
		Name: a.Name, Phone: a.Phone, Line1: a.Line1, Line2: a.Line2,
		City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country,
	}
}

type CheckoutReq struct {
	Items           []orders.CartLine    `json:"items" validate:"required,min=1,dive"`
	ShippingAddress *addressReq          `json:"shippingAddress" validate:"required"`
	BillingAddress  *addressReq          `json:"billingAddress" validate:"omitempty"`
	Payment         orders.PaymentIntent `json:"payment"`
	IdempotencyKey  string               `json:"idempotencyKey" validate:"max=255"`
	Notes           string               `json:"notes" validate:"max=2000"`
}

type listResp struct {
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
	Items    []orders.Order `json:"items"`
}

type mineResp struct {
	Total int            `json:"total"`
	Items []orders.Order `json:"items"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	h.validate = validator.New()
	r.Route("/orders", func(r chi.Router) {
		r.Use(h.Auth.Middleware)
		r.Post("/checkout", h.checkout)
		r.Get("/mine", h.mine)
		r.With(RequireAdmin).Get("/", h.list)
		r.Get("/{id}", h.getOrder)
		r.With(RequireAdmin).Patch("/{id}", h.patch)
	})
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	if key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)); key != "" {
		req.IdempotencyKey = key
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.Log, invalid(err))
		return
	}

	in := checkout.Request{
		UserID:          user.ID,
		Lines:           req.Items,
		ShippingAddress: req.ShippingAddress.address(),
		Payment:         req.Payment,
		IdempotencyKey:  req.IdempotencyKey,
		Notes:           req.Notes,
	}
	if req.BillingAddress != nil {
		b := req.BillingAddress.address()
		in.BillingAddress = &b
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	res, err := h.Checkout.Checkout(ctx, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, res.Order)
		return
	}
	writeJSON(w, http.StatusCreated, res.Order)
}

func (h *OrdersHandler) mine(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.Mine(ctx, user.ID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, mineResp{Total: len(list), Items: list})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if o.UserID != user.ID && user.Role != RoleAdmin {
		writeMessage(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := atoiOr(q.Get("page"), 1)
	if err != nil {
		writeError(w, h.Log, orders.Invalid("page: %v", err))
		return
	}
	limit, err := atoiOr(q.Get("limit"), 20)
	if err != nil {
		writeError(w, h.Log, orders.Invalid("limit: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	f := orders.Filter{Status: orders.Status(q.Get("status")), UserID: q.Get("user")}
	items, total, p, err := h.Orders.List(ctx, f, orders.Page{Page: page, Limit: limit})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, listResp{Total: total, Page: p.Page, PageSize: p.Limit, Items: items})
}

func (h *OrdersHandler) patch(w http.ResponseWriter, r *http.Request) {
	var p orders.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.Update(ctx, chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 5 * time.Second
	}
	return h.Timeout
}

// invalid turns validator output into one ErrValidation message.
func invalid(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return orders.Invalid("%v", err)
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return orders.Invalid("%s", strings.Join(parts, "; "))
}

func atoiOr(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
