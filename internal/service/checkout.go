package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/homework-orders/internal/model"
	"github.com/mmeshcher/homework-orders/internal/payment"
	"github.com/mmeshcher/homework-orders/internal/pricing"
	"github.com/mmeshcher/homework-orders/internal/repository"
	"github.com/mmeshcher/homework-orders/internal/validation"
)

const releaseTimeout = 10 * time.Second

// CheckoutRequest содержит данные для оформления заказа.
type CheckoutRequest struct {
	// UserID берётся из токена доступа; nil для анонимного заказа.
	UserID           *int64
	Email            string
	Items            []model.OrderItem
	HomeworkLogin    string
	HomeworkPassword string
	DiscountCode     string
	Notes            string
}

// CheckoutResult описывает созданную платёжную сессию и рассчитанные суммы.
type CheckoutResult struct {
	SessionID      string
	URL            string
	OrderID        string
	RawTotal       decimal.Decimal
	CreditsUsed    decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	// DiscountError объясняет, почему промокод не применён; пусто, если применён или не указан.
	DiscountError string
}

// CreateCheckoutSession резервирует кредиты и промокод, сохраняет заказ и создаёт платёжную сессию.
// Если платёжная система отказала, резерв снимается, а заказ отменяется.
func (s *Service) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" && req.UserID != nil {
		u, err := s.repo.GetUserByID(ctx, *req.UserID)
		if err != nil {
			return nil, err
		}
		email = u.Email
	}

	if err := validateCheckout(email, req); err != nil {
		s.metrics.Checkout("invalid")
		return nil, err
	}
	if s.processor == nil {
		return nil, ErrPaymentUnavailable
	}

	sealed, err := s.box.Seal(req.HomeworkPassword)
	if err != nil {
		return nil, fmt.Errorf("seal credentials: %w", err)
	}

	order := &model.Order{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		Email:          email,
		Items:          req.Items,
		HomeworkLogin:  strings.TrimSpace(req.HomeworkLogin),
		SealedPassword: sealed,
		Notes:          strings.TrimSpace(req.Notes),
	}

	code := strings.ToUpper(strings.TrimSpace(req.DiscountCode))
	now := s.now()
	items := pricingItems(req.Items)

	quote, err := s.repo.ReserveOrder(ctx, order, code, func(credits decimal.Decimal, d *model.Discount) pricing.Quote {
		return pricing.Resolve(pricing.Input{
			Items:    items,
			Credits:  credits,
			Code:     code,
			Discount: d,
			Now:      now,
			Base:     s.opts.DiscountBase,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrCommitUncertain) {
			// Заказ мог сохраниться без платёжной сессии, его резерв нужно снять.
			s.release(ctx, order.ID, "commit_uncertain")
		}
		s.metrics.Checkout("reserve_failed")
		return nil, fmt.Errorf("reserve order: %w", err)
	}

	res := &CheckoutResult{
		OrderID:        order.ID,
		RawTotal:       quote.RawTotal,
		CreditsUsed:    quote.CreditsUsed,
		DiscountAmount: quote.DiscountAmount,
		Total:          quote.Total,
	}
	if quote.DiscountErr != nil {
		res.DiscountError = quote.DiscountErr.Error()
		s.metrics.DiscountRejected(rejectionReason(quote.DiscountErr))
		s.logger.Info("discount not applied",
			zap.String("order_id", order.ID),
			zap.String("code", code),
			zap.Error(quote.DiscountErr),
		)
	}

	session, err := s.processor.CreateSession(ctx, payment.SessionRequest{
		OrderID:       order.ID,
		CustomerEmail: email,
		Description:   describeItems(req.Items),
		Amount:        quote.Total,
		Currency:      s.opts.Currency,
		SuccessURL:    s.frontendURL("/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:     s.frontendURL("/cancel"),
	})
	if err != nil {
		s.release(ctx, order.ID, "processor_failed")
		return nil, &PaymentError{Err: err}
	}

	if err := s.repo.AttachSession(ctx, order.ID, session.ID, session.URL); err != nil {
		s.release(ctx, order.ID, "attach_failed")
		return nil, fmt.Errorf("attach session: %w", err)
	}

	order.SessionID = session.ID
	order.PaymentURL = session.URL
	s.notifier.OrderPlaced(ctx, order)

	s.metrics.Checkout("created")
	s.logger.Info("checkout session created",
		zap.String("order_id", order.ID),
		zap.String("session_id", session.ID),
		zap.String("total", quote.Total.StringFixed(2)),
	)

	res.SessionID = session.ID
	res.URL = session.URL
	return res, nil
}

// release снимает резерв заказа. Выполняется даже после отмены контекста запроса.
func (s *Service) release(ctx context.Context, orderID, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	s.metrics.Checkout(reason)

	released, err := s.repo.ReleaseOrder(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		s.logger.Info("nothing to release",
			zap.String("order_id", orderID),
			zap.String("reason", reason),
		)
		return
	}
	if err != nil {
		s.logger.Error("release order failed",
			zap.String("order_id", orderID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("order released",
		zap.String("order_id", orderID),
		zap.String("reason", reason),
		zap.Bool("released", released),
	)
}

// LoginDetails содержит данные, присланные клиентом без оплаты.
type LoginDetails struct {
	Email            string
	HomeworkLogin    string
	HomeworkPassword string
	Notes            string
}

// SubmitLoginDetails сохраняет присланные данные входа как заказ в статусе submitted и уведомляет оператора.
func (s *Service) SubmitLoginDetails(ctx context.Context, d LoginDetails) (string, error) {
	email := normalizeEmail(d.Email)
	switch {
	case !validation.IsValidEmail(email):
		return "", invalid("valid email is required")
	case strings.TrimSpace(d.HomeworkLogin) == "" || d.HomeworkPassword == "":
		return "", invalid("homework login and password are required")
	}

	sealed, err := s.box.Seal(d.HomeworkPassword)
	if err != nil {
		return "", fmt.Errorf("seal credentials: %w", err)
	}

	order := &model.Order{
		ID:             uuid.NewString(),
		Email:          email,
		Items:          []model.OrderItem{},
		HomeworkLogin:  strings.TrimSpace(d.HomeworkLogin),
		SealedPassword: sealed,
		Notes:          strings.TrimSpace(d.Notes),
		Status:         model.OrderStatusSubmitted,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return "", err
	}

	s.notifier.LoginDetailsSubmitted(ctx, order)
	return order.ID, nil
}

// DiscountCheck содержит параметры проверки промокода.
type DiscountCheck struct {
	Code   string
	UserID *int64
	// Items имеет приоритет над Total.
	Items []model.OrderItem
	Total decimal.Decimal
}

// DiscountQuote — результат проверки промокода.
type DiscountQuote struct {
	Discount *model.Discount
	Quote    pricing.Quote
}

// ValidateDiscount рассчитывает скидку по тем же правилам, что и оформление заказа.
// Не изменяет счётчики промокода и баланс пользователя.
func (s *Service) ValidateDiscount(ctx context.Context, c DiscountCheck) (*DiscountQuote, error) {
	code := strings.ToUpper(strings.TrimSpace(c.Code))
	if code == "" {
		return nil, invalid("discount code is required")
	}

	var items []pricing.Item
	if len(c.Items) > 0 {
		if problem := validation.CartProblem(c.Items); problem != "" {
			return nil, invalid(problem)
		}
		items = pricingItems(c.Items)
	} else {
		if c.Total.IsNegative() {
			return nil, invalid("total must not be negative")
		}
		items = []pricing.Item{{Price: c.Total, Quantity: 1}}
	}

	credits := decimal.Zero
	if c.UserID != nil {
		u, err := s.repo.GetUserByID(ctx, *c.UserID)
		if err != nil {
			return nil, err
		}
		credits = u.Credits
	}

	d, err := s.repo.GetDiscount(ctx, code)
	if err != nil && !errors.Is(err, repository.ErrDiscountNotFound) {
		return nil, err
	}

	q := pricing.Resolve(pricing.Input{
		Items:    items,
		Credits:  credits,
		Code:     code,
		Discount: d,
		Now:      s.now(),
		Base:     s.opts.DiscountBase,
	})
	if q.DiscountErr != nil {
		s.metrics.DiscountRejected(rejectionReason(q.DiscountErr))
		return nil, q.DiscountErr
	}

	return &DiscountQuote{Discount: d, Quote: q}, nil
}

func validateCheckout(email string, req CheckoutRequest) error {
	if !validation.IsValidEmail(email) {
		return invalid("valid email is required")
	}
	if problem := validation.CartProblem(req.Items); problem != "" {
		return invalid(problem)
	}
	if strings.TrimSpace(req.HomeworkLogin) == "" || req.HomeworkPassword == "" {
		return invalid("homework login and password are required")
	}
	return nil
}

func pricingItems(items []model.OrderItem) []pricing.Item {
	res := make([]pricing.Item, 0, len(items))
	for _, it := range items {
		res = append(res, pricing.Item{Price: it.Price, Quantity: it.Quantity})
	}
	return res
}

// describeItems сворачивает корзину в одну строку для платёжной страницы.
func describeItems(items []model.OrderItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s x%d", strings.TrimSpace(it.Name), it.Quantity))
	}
	return "Homework order: " + strings.Join(parts, ", ")
}

func (s *Service) frontendURL(path string) string {
	return strings.TrimRight(s.opts.FrontendURL, "/") + path
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, pricing.ErrDiscountNotFound):
		return "not_found"
	case errors.Is(err, pricing.ErrDiscountInactive):
		return "inactive"
	case errors.Is(err, pricing.ErrDiscountExpired):
		return "expired"
	case errors.Is(err, pricing.ErrDiscountLimitReached):
		return "limit_reached"
	case errors.Is(err, pricing.ErrMinimumPurchase):
		return "minimum_purchase"
	default:
		return "other"
	}
}
