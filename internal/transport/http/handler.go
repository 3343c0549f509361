// Package httptransport exposes the checkout and webhook endpoints over chi.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"checkout-be/internal/auth"
	"checkout-be/internal/checkout"
	"checkout-be/internal/logger"
	"checkout-be/internal/metrics"
	"checkout-be/internal/order"
	"checkout-be/internal/payment"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	// MaxWebhookBody caps the webhook body; processor events are well below it.
	MaxWebhookBody = 65536

	SignatureHeader = "Stripe-Signature"
)

// Notifier is the webhook entry point, implemented by payment.Reconciler.
type Notifier interface {
	HandleNotification(ctx context.Context, payload []byte, header string) (*payment.HandledEvent, error)
}

// OrderLookup resolves the order behind a fulfilled checkout, implemented by
// order.Service.
type OrderLookup interface {
	GetByCheckoutKey(ctx context.Context, checkoutKey string) (*order.Order, error)
}

type Handler struct {
	checkouts payment.CheckoutService
	orders    OrderLookup
	notifier  Notifier
	metrics   *metrics.Registry
}

// NewHandler builds the handler set. orders may be nil, in which case the
// checkout view carries the order id only.
func NewHandler(checkouts payment.CheckoutService, orders OrderLookup, notifier Notifier, reg *metrics.Registry) *Handler {
	return &Handler{
		checkouts: checkouts,
		orders:    orders,
		notifier:  notifier,
		metrics:   reg,
	}
}

type checkoutProduct struct {
	ProductName string `json:"productName"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
}

type createCheckoutRequest struct {
	ListProduct []checkoutProduct `json:"listProduct"`
}

type checkoutView struct {
	CheckoutKey string              `json:"checkoutKey"`
	Status      checkout.Status     `json:"status"`
	Total       int64               `json:"total"`
	Currency    string              `json:"currency"`
	Items       []checkout.LineItem `json:"items"`
	OrderID     *uint               `json:"orderId,omitempty"`
	Order       *orderView          `json:"order,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

type orderView struct {
	ID        uint              `json:"id"`
	Status    order.OrderStatus `json:"status"`
	Total     int64             `json:"total"`
	Currency  string            `json:"currency"`
	Items     []orderItemView   `json:"items"`
	CreatedAt time.Time         `json:"createdAt"`
}

type orderItemView struct {
	ProductName string `json:"productName"`
	UnitPrice   int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	Subtotal    int64  `json:"subtotal"`
}

func newOrderView(o *order.Order) *orderView {
	items := make([]orderItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemView{
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Subtotal:    it.Subtotal,
		})
	}
	return &orderView{
		ID:        o.ID,
		Status:    o.Status,
		Total:     o.Total,
		Currency:  o.Currency,
		Items:     items,
		CreatedAt: o.CreatedAt,
	}
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// CreateCheckout handles POST /payment/checkout.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createCheckoutRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid JSON", ErrBadRequest))
		return
	}

	items := make([]checkout.LineItem, 0, len(req.ListProduct))
	for _, p := range req.ListProduct {
		items = append(items, checkout.LineItem{
			Name:      p.ProductName,
			UnitPrice: p.Price,
			Quantity:  p.Quantity,
		})
	}

	target, err := h.checkouts.InitiateCheckout(r.Context(), items, identity)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, target)
}

// GetCheckout handles GET /payment/checkout/{key}.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.checkouts.GetCheckout(r.Context(), chi.URLParam(r, "key"), identity)
	if err != nil {
		writeError(w, r, err)
		return
	}

	view := checkoutView{
		CheckoutKey: d.Key,
		Status:      d.Status,
		Total:       d.Total,
		Currency:    d.Currency,
		Items:       d.Items,
		OrderID:     d.OrderID,
		CreatedAt:   d.CreatedAt,
	}

	if d.Status == checkout.StatusFulfilled && h.orders != nil {
		o, err := h.orders.GetByCheckoutKey(r.Context(), d.Key)
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			logger.FromCtx(r.Context()).Warn("fulfilled checkout has no order",
				zap.String("checkout_key", d.Key),
			)
		case err != nil:
			writeError(w, r, err)
			return
		default:
			view.Order = newOrderView(o)
		}
	}

	writeJSON(w, http.StatusOK, view)
}

// PaymentWebhook handles POST /webhook/payment. The body is read untouched
// since the signature covers the exact bytes.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error: errorPayload{Kind: "too_large", Message: "request body too large"},
			})
			return
		}
		writeError(w, r, fmt.Errorf("%w: failed to read body", ErrBadRequest))
		return
	}

	res, err := h.notifier.HandleNotification(r.Context(), payload, r.Header.Get(SignatureHeader))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

func identityFrom(ctx context.Context) (checkout.Identity, error) {
	id, ok := auth.GetUserIDFromContext(ctx)
	if !ok || id == 0 {
		return checkout.Identity{}, ErrUnauthenticated
	}
	return checkout.Identity{UserID: id, Email: auth.GetUserEmailFromContext(ctx)}, nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	log := logger.FromCtx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
	}

	// internal details stay in the log
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}

	writeJSON(w, status, errorResponse{
		Error: errorPayload{Kind: Kind(err), Message: msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
