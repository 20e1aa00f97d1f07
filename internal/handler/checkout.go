package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/homework-orders/internal/middleware"
	"github.com/mmeshcher/homework-orders/internal/model"
	"github.com/mmeshcher/homework-orders/internal/service"
)

type checkoutRequest struct {
	Email            string            `json:"email"`
	Items            []model.OrderItem `json:"items"`
	HomeworkLogin    string            `json:"homeworkLogin"`
	HomeworkPassword string            `json:"homeworkPassword"`
	DiscountCode     string            `json:"discountCode"`
	Notes            string            `json:"notes"`
}

type checkoutResponse struct {
	Success        bool   `json:"success"`
	ID             string `json:"id"`
	URL            string `json:"url"`
	OrderID        string `json:"orderId"`
	RawTotal       amount `json:"rawTotal"`
	CreditsUsed    amount `json:"creditsUsed"`
	DiscountAmount amount `json:"discountAmount"`
	Total          amount `json:"total"`
	DiscountError  string `json:"discountError,omitempty"`
}

// CreateCheckoutSession оформляет заказ и возвращает идентификатор платёжной сессии.
// Пользователь определяется только по токену, если он передан.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := service.CheckoutRequest{
		Email:            req.Email,
		Items:            req.Items,
		HomeworkLogin:    req.HomeworkLogin,
		HomeworkPassword: req.HomeworkPassword,
		DiscountCode:     req.DiscountCode,
		Notes:            req.Notes,
	}
	if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		in.UserID = &userID
	}

	res, err := h.service.CreateCheckoutSession(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, "create checkout session", err)
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		Success:        true,
		ID:             res.SessionID,
		URL:            res.URL,
		OrderID:        res.OrderID,
		RawTotal:       amount(res.RawTotal),
		CreditsUsed:    amount(res.CreditsUsed),
		DiscountAmount: amount(res.DiscountAmount),
		Total:          amount(res.Total),
		DiscountError:  res.DiscountError,
	})
}

type loginDetailsRequest struct {
	Email            string `json:"email"`
	HomeworkLogin    string `json:"homeworkLogin"`
	HomeworkPassword string `json:"homeworkPassword"`
	Notes            string `json:"notes"`
}

// SubmitLoginDetails принимает данные входа без оплаты.
func (h *Handler) SubmitLoginDetails(w http.ResponseWriter, r *http.Request) {
	var req loginDetailsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.service.SubmitLoginDetails(r.Context(), service.LoginDetails{
		Email:            req.Email,
		HomeworkLogin:    req.HomeworkLogin,
		HomeworkPassword: req.HomeworkPassword,
		Notes:            req.Notes,
	})
	if err != nil {
		h.writeServiceError(w, "submit login details", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"orderId": id,
	})
}

type validateDiscountRequest struct {
	Code  string            `json:"code"`
	Items []model.OrderItem `json:"items"`
	Total decimal.Decimal   `json:"total"`
}

type appliedDiscount struct {
	Code  string `json:"code"`
	Type  string `json:"type"`
	Value amount `json:"value"`
}

// ValidateDiscount проверяет промокод и рассчитывает скидку без её применения.
func (h *Handler) ValidateDiscount(w http.ResponseWriter, r *http.Request) {
	var req validateDiscountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	check := service.DiscountCheck{
		Code:  req.Code,
		Items: req.Items,
		Total: req.Total,
	}
	if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		check.UserID = &userID
	}

	q, err := h.service.ValidateDiscount(r.Context(), check)
	if err != nil {
		h.writeServiceError(w, "validate discount", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"discount": appliedDiscount{
			Code:  q.Discount.Code,
			Type:  string(q.Discount.Kind),
			Value: amount(q.Discount.Value),
		},
		"discountAmount": amount(q.Quote.DiscountAmount),
		"creditsUsed":    amount(q.Quote.CreditsUsed),
		"total":          amount(q.Quote.Total),
	})
}
