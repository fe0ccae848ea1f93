package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/storefront-order-core/internal/idempotency"
	"github.com/robertarktes/storefront-order-core/internal/observability"
	"github.com/robertarktes/storefront-order-core/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// The payment gateway does not authenticate as a user.
	r.Post("/v1/payments/callback", h.PaymentCallback)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware)
		r.Use(RateLimitMiddleware(rl))
		r.Use(IdempotencyKeyMiddleware)

		r.Get("/v1/cart", h.GetCart)
		r.Post("/v1/cart/items", h.AddCartItem)
		r.Patch("/v1/cart/items/{type}/{id}", h.UpdateCartItem)
		r.Delete("/v1/cart/items/{type}/{id}", h.RemoveCartItem)
		r.Delete("/v1/cart", h.ClearCart)

		r.Post("/v1/checkout", h.Checkout)
		r.Get("/v1/orders/{id}", h.GetOrder)
		r.Post("/v1/orders/{id}/payment", h.AttachPayment)
		r.Post("/v1/orders/{id}/refund", h.RefundOrder)

		r.Post("/v1/bookings", h.CreateBooking)
		r.Get("/v1/bookings", h.ListBookings)
		r.Delete("/v1/bookings/{id}", h.CancelBooking)
		r.Patch("/v1/bookings/{id}/status", h.UpdateBookingStatus)
	})

	return r
}
