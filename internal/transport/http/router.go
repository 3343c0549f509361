package httptransport

import (
	"net/http"

	"checkout-be/internal/logger"
	"checkout-be/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	JWTSecret string

	// ServiceKey guards /debug/metrics; an empty key closes the route.
	ServiceKey string

	// Limiter may be nil.
	Limiter *middleware.RateLimiter
}

// NewRouter mounts every route.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	if cfg.Limiter != nil {
		r.Use(cfg.Limiter.Middleware)
	}

	r.Get("/health", h.Health)
	r.With(middleware.RequireServiceKey(cfg.ServiceKey)).Get("/debug/metrics", h.Metrics)

	// authenticated by signature, not by session
	r.Post("/webhook/payment", h.PaymentWebhook)

	r.Route("/payment", func(r chi.Router) {
		r.Use(middleware.RequireAuth(cfg.JWTSecret))
		r.Post("/checkout", h.CreateCheckout)
		r.Get("/checkout/{key}", h.GetCheckout)
	})

	return r
}
