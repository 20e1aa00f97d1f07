package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/homework-orders/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса приёма заказов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.Metrics(h.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Content-Encoding"},
		MaxAge:         300,
	}))
	r.Use(custommiddleware.GzipMiddleware)

	r.Get("/", h.Index)
	r.Get("/readyz", h.Ready)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.With(h.authMiddleware.Optional).Post("/create-checkout-session", h.CreateCheckoutSession)
	r.Post("/submit-login-details", h.SubmitLoginDetails)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.authLimiter.Middleware)

				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
			})

			r.With(h.authMiddleware.Middleware).Get("/profile", h.Profile)
		})

		r.With(h.authMiddleware.Middleware).Get("/orders", h.GetOrders)
		r.With(h.authMiddleware.Optional).Post("/discount/validate", h.ValidateDiscount)

		r.Route("/admin", func(r chi.Router) {
			r.With(h.authLimiter.Middleware).Post("/login", h.AdminLogin)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.AdminOnly)

				r.Get("/orders", h.AdminListOrders)
				r.Patch("/orders/{id}/status", h.AdminUpdateOrderStatus)
				r.Get("/orders/{id}/credentials", h.AdminOrderCredentials)

				r.Get("/discounts", h.AdminListDiscounts)
				r.Post("/discounts", h.AdminCreateDiscount)

				r.Get("/users", h.AdminListUsers)
				r.Get("/stats", h.AdminStats)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
