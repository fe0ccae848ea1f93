package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/storefront-order-core/internal/adapters/mongo"
	"github.com/robertarktes/storefront-order-core/internal/booking"
	"github.com/robertarktes/storefront-order-core/internal/cart"
	"github.com/robertarktes/storefront-order-core/internal/config"
	"github.com/robertarktes/storefront-order-core/internal/domain"
	"github.com/robertarktes/storefront-order-core/internal/fulfillment"
	"github.com/robertarktes/storefront-order-core/internal/idempotency"
	"github.com/robertarktes/storefront-order-core/internal/observability"
	"github.com/robertarktes/storefront-order-core/internal/order"
)

type Handlers struct {
	cfg      *config.Config
	carts    *cart.Service
	orders   *order.Engine
	bookings *booking.Manager
	fulfill  *fulfillment.Dispatcher
	idemp    *idempotency.Idempotency
	catalog  domain.Catalog
	audit    *mongoadapter.AuditLogger
	logger   observability.Logger
}

func NewHandlers(cfg *config.Config, carts *cart.Service, orders *order.Engine, bookings *booking.Manager,
	fulfill *fulfillment.Dispatcher, idemp *idempotency.Idempotency, catalog domain.Catalog,
	audit *mongoadapter.AuditLogger, logger observability.Logger) *Handlers {
	return &Handlers{
		cfg:      cfg,
		carts:    carts,
		orders:   orders,
		bookings: bookings,
		fulfill:  fulfill,
		idemp:    idemp,
		catalog:  catalog,
		audit:    audit,
		logger:   logger,
	}
}

// writeError maps the domain taxonomy onto HTTP. Conflicts carry enough
// detail for the client to act: a failed checkout names the offending
// line item.
func writeError(w http.ResponseWriter, err error) {
	var lineErr *domain.LineItemError
	if errors.As(err, &lineErr) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     lineErr.Err.Error(),
			"item_type": lineErr.ItemType,
			"item_id":   lineErr.ItemID,
		})
		return
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrEmptyCart):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case domain.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrTransient):
		http.Error(w, "temporarily unavailable, retry", http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) []byte {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	c, err := h.carts.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) AddCartItem(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	var req struct {
		ItemType domain.ItemType `json:"item_type"`
		ItemID   uuid.UUID       `json:"item_id"`
		Quantity int             `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := h.carts.AddItem(r.Context(), userID, req.ItemType, req.ItemID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	itemType, itemID, ok := cartItemParams(w, r)
	if !ok {
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := h.carts.UpdateQuantity(r.Context(), userID, itemType, itemID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	itemType, itemID, ok := cartItemParams(w, r)
	if !ok {
		return
	}
	c, err := h.carts.RemoveItem(r.Context(), userID, itemType, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	if err := h.carts.Clear(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func cartItemParams(w http.ResponseWriter, r *http.Request) (domain.ItemType, uuid.UUID, bool) {
	itemType := domain.ItemType(chi.URLParam(r, "type"))
	if !itemType.Valid() {
		http.Error(w, "invalid item type", http.StatusBadRequest)
		return "", uuid.Nil, false
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return "", uuid.Nil, false
	}
	return itemType, itemID, true
}

// Checkout converts the cart into an order. The cart is cleared only
// after the order transaction commits; the snapshot in Redis is
// advisory, so losing the clear on a crash just leaves a stale cart.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err == nil && existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	snapshot, err := h.carts.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.orders.CreateOrder(r.Context(), userID, snapshot)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.carts.Clear(r.Context(), userID); err != nil {
		h.logger.WithField("user_id", userID.String()).Warn("cart clear after checkout failed: ", err)
	}
	if err := h.audit.LogOrder(r.Context(), "order.created", o); err != nil {
		h.logger.Warn("audit write failed: ", err)
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"order_id": o.ID,
		"status":   o.Status,
		"total":    o.TotalAmount,
	})
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	o, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":    o.ID,
		"status":      o.Status,
		"total":       o.TotalAmount,
		"payment_ref": o.PaymentRef,
		"items":       o.Items,
	})
}

// AttachPayment stores the gateway reference and moves a fresh order to
// payment_pending. Replays with the same reference are no-ops.
func (h *Handlers) AttachPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		PaymentRef string `json:"payment_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.orders.AttachPaymentReference(r.Context(), orderID, req.PaymentRef); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if o.Status == domain.OrderPending {
		if o, err = h.orders.UpdateStatus(r.Context(), orderID, domain.OrderPaymentPending); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"status":   o.Status,
	})
}

// PaymentCallback is invoked by the gateway webhook after the external
// payment completes. Signature verification happened upstream; this
// handler only drives the state machine and fulfillment. Gateways
// redeliver until they see a 2xx, so every branch tolerates seeing an
// order the last delivery already moved forward.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID       uuid.UUID `json:"order_id"`
		Status        string    `json:"status"`
		TransactionID string    `json:"transaction_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Status != "SUCCEEDED" {
		o, err := h.orders.GetOrder(r.Context(), req.OrderID)
		if err != nil {
			writeError(w, err)
			return
		}
		if o.Status != domain.OrderCancelled {
			if err := h.orders.CancelOrder(r.Context(), req.OrderID, "payment "+req.Status); err != nil {
				writeError(w, err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if req.TransactionID != "" {
		if err := h.orders.AttachPaymentReference(r.Context(), req.OrderID, req.TransactionID); err != nil {
			writeError(w, err)
			return
		}
	}
	o, err := h.orders.GetOrder(r.Context(), req.OrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	switch o.Status {
	case domain.OrderCompleted:
		// Redelivery after the whole flow already committed.
		w.WriteHeader(http.StatusOK)
		return
	case domain.OrderPaid, domain.OrderProcessing:
		// A previous delivery recorded the payment but fulfillment did
		// not commit; resume from fulfillment.
	default:
		if o.Status == domain.OrderPending {
			// The gateway can confirm before the client ever called the
			// payment-attach endpoint.
			if _, err := h.orders.UpdateStatus(r.Context(), req.OrderID, domain.OrderPaymentPending); err != nil {
				writeError(w, err)
				return
			}
		}
		if _, err := h.orders.UpdateStatus(r.Context(), req.OrderID, domain.OrderPaid); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := h.fulfill.FulfillOrder(r.Context(), req.OrderID); err != nil {
		writeError(w, err)
		return
	}
	if o, err := h.orders.GetOrder(r.Context(), req.OrderID); err == nil {
		if err := h.audit.LogOrder(r.Context(), "order.completed", o); err != nil {
			h.logger.Warn("audit write failed: ", err)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) RefundOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.fulfill.RefundOrder(r.Context(), orderID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	if o, err := h.orders.GetOrder(r.Context(), orderID); err == nil {
		if err := h.audit.LogOrder(r.Context(), "order.refunded", o); err != nil {
			h.logger.Warn("audit write failed: ", err)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err == nil && existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		EventID   uuid.UUID `json:"event_id"`
		Attendees int       `json:"attendees"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := h.catalog.GetItem(r.Context(), domain.ItemEvent, req.EventID)
	if err != nil {
		writeError(w, err)
		return
	}

	b, err := h.bookings.CreateBooking(r.Context(), booking.CreateParams{
		UserID:        userID,
		EventID:       req.EventID,
		AttendeeCount: req.Attendees,
		UnitPrice:     item.Price,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.audit.LogBooking(r.Context(), "booking.created", b); err != nil {
		h.logger.Warn("audit write failed: ", err)
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"booking_id": b.ID,
		"status":     b.Status,
		"total":      b.TotalPrice,
	})
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	bookings, err := h.bookings.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookings": bookings})
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	b, err := h.bookings.CancelBooking(r.Context(), bookingID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.audit.LogBooking(r.Context(), "booking.cancelled", b); err != nil {
		h.logger.Warn("audit write failed: ", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"booking_id": b.ID,
		"status":     b.Status,
	})
}

func (h *Handlers) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Status domain.BookingStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := h.bookings.UpdateStatus(r.Context(), bookingID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"booking_id": b.ID,
		"status":     b.Status,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
