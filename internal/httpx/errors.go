package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"go.uber.org/zap"
)

// Error is the JSON body of every non-2xx response.
type Error struct {
	Code    int          `json:"code"`
	Message string       `json:"error"`
	Product *stockDetail `json:"product,omitempty"`
}

type stockDetail struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available"`
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := statusOf(err)
	body := Error{Code: status, Message: err.Error()}

	var se *orders.StockError
	if errors.As(err, &se) {
		body.Product = &stockDetail{ID: se.ProductID, Name: se.Name, Requested: se.Requested, Available: se.Available}
	}
	if status >= http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		// Internal causes stay in the logs.
		body.Message = http.StatusText(status)
		if errors.Is(err, orders.ErrReconciliation) {
			body.Message = "checkout failed, stock is being reconciled"
		}
	}
	writeJSON(w, status, body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, orders.ErrReconciliation):
		return http.StatusInternalServerError
	case errors.Is(err, orders.ErrValidation), errors.Is(err, orders.ErrProductUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Error{Code: status, Message: msg})
}
