// Package handler содержит HTTP-обработчики API сервиса приёма заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/homework-orders/internal/metrics"
	"github.com/mmeshcher/homework-orders/internal/middleware"
	"github.com/mmeshcher/homework-orders/internal/model"
	"github.com/mmeshcher/homework-orders/internal/pricing"
	"github.com/mmeshcher/homework-orders/internal/repository"
	"github.com/mmeshcher/homework-orders/internal/service"
)

const maxBodyBytes = 1 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	RegisterUser(ctx context.Context, reg service.Registration) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	GetProfile(ctx context.Context, userID int64) (*service.Profile, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)

	CreateCheckoutSession(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
	SubmitLoginDetails(ctx context.Context, d service.LoginDetails) (string, error)
	ValidateDiscount(ctx context.Context, c service.DiscountCheck) (*service.DiscountQuote, error)

	AdminLogin(username, password string) error
	ListOrders(ctx context.Context) ([]model.Order, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	ListDiscounts(ctx context.Context) ([]model.Discount, error)
	CreateDiscount(ctx context.Context, d model.Discount) (*model.Discount, error)
	UpdateOrderStatus(ctx context.Context, id, status string) error
	OrderCredentials(ctx context.Context, id, admin string) (*service.Credentials, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

// Options содержит настройки HTTP-слоя.
type Options struct {
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	AuthRateLimit  float64
	AuthRateBurst  int
}

// Handler реализует HTTP-обработчики API сервиса приёма заказов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	authLimiter    *middleware.RateLimiter
	metrics        *metrics.Metrics
	allowedOrigins []string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts Options) *Handler {
	if opts.AuthRateLimit <= 0 {
		opts.AuthRateLimit = 5
	}
	if opts.AuthRateBurst <= 0 {
		opts.AuthRateBurst = 10
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		authLimiter:    middleware.NewRateLimiter(opts.AuthRateLimit, opts.AuthRateBurst),
		metrics:        opts.Metrics,
		allowedOrigins: opts.AllowedOrigins,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError переводит ошибку бизнес-логики в HTTP-ответ.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var paymentErr *service.PaymentError

	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, repository.ErrUserExists):
		writeError(w, http.StatusConflict, "user with this email already exists")
	case errors.Is(err, repository.ErrDiscountExists):
		writeError(w, http.StatusConflict, "discount code already exists")
	case errors.Is(err, repository.ErrInsufficientCredits),
		errors.Is(err, repository.ErrDiscountExhausted):
		writeError(w, http.StatusConflict, "order state changed, please retry")
	case errors.Is(err, pricing.ErrDiscountNotFound),
		errors.Is(err, repository.ErrDiscountNotFound):
		writeError(w, http.StatusNotFound, pricing.ErrDiscountNotFound.Error())
	case errors.Is(err, pricing.ErrDiscountInactive),
		errors.Is(err, pricing.ErrDiscountExpired),
		errors.Is(err, pricing.ErrDiscountLimitReached),
		errors.Is(err, pricing.ErrMinimumPurchase):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, repository.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.As(err, &paymentErr):
		h.logger.Error(op+" error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, paymentErr.Error())
	case errors.Is(err, service.ErrPaymentUnavailable):
		h.logger.Error(op+" error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		h.logger.Error(op+" error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

// Index отвечает простой строкой для проверки доступности.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Homework service is running"))
}

// Ready проверяет доступность базы данных.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
