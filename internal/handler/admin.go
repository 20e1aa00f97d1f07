package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/homework-orders/internal/middleware"
	"github.com/mmeshcher/homework-orders/internal/model"
)

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminLogin выдаёт токен администратора.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.AdminLogin(req.Username, req.Password); err != nil {
		h.logger.Warn("admin login rejected", zap.String("username", req.Username))
		h.writeServiceError(w, "admin login", err)
		return
	}

	token, err := h.authMiddleware.IssueAdminToken(req.Username)
	if err != nil {
		h.logger.Error("issue admin token error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
	})
}

// AdminListOrders возвращает последние заказы.
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		h.writeServiceError(w, "list orders", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  newOrderResponses(orders, true),
	})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// AdminUpdateOrderStatus меняет статус заказа.
func (h *Handler) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
		h.writeServiceError(w, "update order status", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// AdminOrderCredentials возвращает расшифрованные данные входа заказа.
func (h *Handler) AdminOrderCredentials(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.GetAdminFromContext(r.Context())
	creds, err := h.service.OrderCredentials(r.Context(), chi.URLParam(r, "id"), admin)
	if err != nil {
		h.writeServiceError(w, "order credentials", err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"credentials": map[string]string{
			"orderId":  creds.OrderID,
			"email":    creds.Email,
			"login":    creds.Login,
			"password": creds.Password,
		},
	})
}

// AdminListUsers возвращает пользователей.
func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, "list users", err)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for i := range users {
		resp = append(resp, newUserResponse(&users[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"users":   resp,
	})
}

// AdminListDiscounts возвращает промокоды.
func (h *Handler) AdminListDiscounts(w http.ResponseWriter, r *http.Request) {
	discounts, err := h.service.ListDiscounts(r.Context())
	if err != nil {
		h.writeServiceError(w, "list discounts", err)
		return
	}

	resp := make([]discountResponse, 0, len(discounts))
	for i := range discounts {
		resp = append(resp, newDiscountResponse(&discounts[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"discounts": resp,
	})
}

type createDiscountRequest struct {
	Code        string          `json:"code"`
	Type        string          `json:"type"`
	Value       decimal.Decimal `json:"value"`
	MinPurchase decimal.Decimal `json:"minPurchase"`
	MaxUses     *int            `json:"maxUses"`
	Active      *bool           `json:"active"`
	ExpiresAt   *time.Time      `json:"expiresAt"`
}

// AdminCreateDiscount создаёт промокод.
func (h *Handler) AdminCreateDiscount(w http.ResponseWriter, r *http.Request) {
	var req createDiscountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	d, err := h.service.CreateDiscount(r.Context(), model.Discount{
		Code:        req.Code,
		Kind:        model.DiscountKind(req.Type),
		Value:       req.Value,
		MinPurchase: req.MinPurchase,
		MaxUses:     req.MaxUses,
		Active:      active,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		h.writeServiceError(w, "create discount", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"discount": newDiscountResponse(d),
	})
}

type statsResponse struct {
	Users           int64  `json:"users"`
	Orders          int64  `json:"orders"`
	CompletedOrders int64  `json:"completedOrders"`
	Discounts       int64  `json:"discounts"`
	Revenue         amount `json:"revenue"`
}

// AdminStats возвращает агрегированную статистику.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, "stats", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats": statsResponse{
			Users:           s.Users,
			Orders:          s.Orders,
			CompletedOrders: s.CompletedOrders,
			Discounts:       s.Discounts,
			Revenue:         amount(s.Revenue),
		},
	})
}
