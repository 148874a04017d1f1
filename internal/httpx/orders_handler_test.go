package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/checkout"
	"github.com/ariefcatur/go-realtime-checkout/internal/memory"
	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var secret = []byte("test-secret")

type fixture struct {
	store   *memory.Store
	router  http.Handler
	metrics *metrics.ServerMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New(true)
	store.Put(orders.Snapshot{
		ID: "P1", Name: "Cotton Kurta", SKU: "CK-1", Price: decimal.NewFromInt(500),
		Currency: "INR", Unit: "piece", Quantity: 5, Active: true,
	})

	strategy, err := checkout.SelectStrategy(context.Background(), store, checkout.ModeAuto, checkout.Options{})
	require.NoError(t, err)
	m := metrics.NewServerMetrics(prometheus.NewRegistry(), "api")
	log := zap.NewNop()
	h := &OrdersHandler{
		Checkout: &checkout.Service{Strategy: strategy, Guard: &checkout.Guard{Orders: store}},
		Orders:   &orders.Service{Store: store},
		Auth:     &Auth{Secret: secret},
		Log:      log,
		Timeout:  time.Second,
	}
	r := NewRouter(log, m)
	h.Register(r)
	return &fixture{store: store, router: r, metrics: m}
}

func token(t *testing.T, id, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:   id,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(secret)
	require.NoError(t, err)
	return s
}

func (f *fixture) do(t *testing.T, method, path, tok string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func checkoutBody(qty int) map[string]any {
	return map[string]any{
		"items": []map[string]any{{"productId": "P1", "quantity": qty}},
		"shippingAddress": map[string]any{
			"line1": "12 MG Road", "city": "Pune", "postalCode": "411001",
		},
	}
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) orders.Order {
	t.Helper()
	var o orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	return o
}

func TestCheckoutCreatesThenReplays(t *testing.T) {
	f := newFixture(t)
	tok := token(t, "u1", "customer")

	rec := f.do(t, http.MethodPost, "/orders/checkout", tok, checkoutBody(2), HeaderIdempotencyKey, "abc")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeOrder(t, rec)
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, "1180", first.GrandTotal.String())
	assert.Equal(t, "abc", first.IdempotencyKey)

	rec = f.do(t, http.MethodPost, "/orders/checkout", tok, checkoutBody(2), HeaderIdempotencyKey, "abc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, first.ID, decodeOrder(t, rec).ID)
	assert.Equal(t, 3, f.store.Quantity("P1"))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Requests.WithLabelValues("/orders/checkout", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Requests.WithLabelValues("/orders/checkout", "200")))
}

func TestCheckoutErrors(t *testing.T) {
	f := newFixture(t)
	tok := token(t, "u1", "customer")

	rec := f.do(t, http.MethodPost, "/orders/checkout", "", checkoutBody(1))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/orders/checkout", tok, map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/orders/checkout", tok, checkoutBody(0))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/orders/checkout", tok, checkoutBody(9))
	require.Equal(t, http.StatusConflict, rec.Code)
	var body Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Message, "Cotton Kurta")
	require.NotNil(t, body.Product)
	assert.Equal(t, "P1", body.Product.ID)
	assert.Equal(t, 5, body.Product.Available)

	missing := checkoutBody(1)
	missing["items"] = []map[string]any{{"productId": "nope", "quantity": 1}}
	rec = f.do(t, http.MethodPost, "/orders/checkout", tok, missing)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 5, f.store.Quantity("P1"))
}

func TestOrderAccess(t *testing.T) {
	f := newFixture(t)
	owner, other, admin := token(t, "u1", ""), token(t, "u2", ""), token(t, "ops", RoleAdmin)

	rec := f.do(t, http.MethodPost, "/orders/checkout", owner, checkoutBody(1))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeOrder(t, rec).ID

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/orders/"+id, owner, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/orders/"+id, other, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/orders/"+id, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/orders/missing", admin, nil).Code)

	rec = f.do(t, http.MethodGet, "/orders/mine", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine mineResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Equal(t, 1, mine.Total)

	rec = f.do(t, http.MethodGet, "/orders/mine", other, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Zero(t, mine.Total)
	assert.NotNil(t, mine.Items)
}

func TestAdminListAndPatch(t *testing.T) {
	f := newFixture(t)
	user, admin := token(t, "u1", ""), token(t, "ops", RoleAdmin)

	rec := f.do(t, http.MethodPost, "/orders/checkout", user, checkoutBody(1))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeOrder(t, rec).ID

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/orders", user, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPatch, "/orders/"+id, user, map[string]any{"status": "paid"}).Code)

	rec = f.do(t, http.MethodGet, "/orders?status=pending&page=1&limit=10", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.EqualValues(t, 1, list.Total)
	assert.Equal(t, 10, list.PageSize)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/orders?status=lost", admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/orders?page=x", admin, nil).Code)

	rec = f.do(t, http.MethodPatch, "/orders/"+id, admin, map[string]any{
		"status": "shipped", "paymentStatus": "paid", "trackingNumber": "TRK-9",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	o := decodeOrder(t, rec)
	assert.Equal(t, orders.StatusShipped, o.Status)
	assert.Equal(t, orders.PaymentPaid, o.Payment.Status)
	assert.NotNil(t, o.Payment.PaidAt)
	assert.Equal(t, "TRK-9", o.Payment.Meta["trackingNumber"])

	rec = f.do(t, http.MethodPatch, "/orders/"+id, admin, map[string]any{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPatch, "/orders/missing", admin, map[string]any{"status": "paid"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthRejectsForgedToken(t *testing.T) {
	f := newFixture(t)
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{ID: "u1"}).SignedString([]byte("other"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/orders/mine", forged, nil).Code)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{ID: "u1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}).SignedString(secret)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/orders/mine", expired, nil).Code)
}
