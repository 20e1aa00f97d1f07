package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/homework-orders/internal/model"
	"github.com/mmeshcher/homework-orders/internal/validation"
)

const (
	adminOrdersLimit = 100
	adminUsersLimit  = 500
)

// Credentials — расшифрованные данные входа в учебный аккаунт клиента.
type Credentials struct {
	OrderID  string
	Email    string
	Login    string
	Password string
}

// AdminLogin проверяет учётные данные администратора из конфигурации.
// Пустой пароль в конфигурации отключает вход.
func (s *Service) AdminLogin(username, password string) error {
	if s.opts.AdminPassword == "" {
		return ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.opts.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.opts.AdminPassword)) == 1
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}

// ListOrders возвращает последние заказы, не более 100.
func (s *Service) ListOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.ListOrders(ctx, adminOrdersLimit)
}

// ListUsers возвращает зарегистрированных пользователей.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.ListUsers(ctx, adminUsersLimit)
}

// ListDiscounts возвращает все промокоды.
func (s *Service) ListDiscounts(ctx context.Context) ([]model.Discount, error) {
	return s.repo.ListDiscounts(ctx)
}

// CreateDiscount проверяет и сохраняет новый промокод.
func (s *Service) CreateDiscount(ctx context.Context, d model.Discount) (*model.Discount, error) {
	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	if problem := validation.DiscountProblem(d); problem != "" {
		return nil, invalid(problem)
	}
	if d.ExpiresAt != nil && !d.ExpiresAt.After(s.now()) {
		return nil, invalid("expiry must be in the future")
	}
	d.UsedCount = 0

	created, err := s.repo.CreateDiscount(ctx, &d)
	if err != nil {
		return nil, err
	}

	s.logger.Info("discount created", zap.String("code", created.Code), zap.String("kind", string(created.Kind)))
	return created, nil
}

// UpdateOrderStatus устанавливает статус заказа, заданный администратором.
func (s *Service) UpdateOrderStatus(ctx context.Context, id, status string) error {
	status = strings.TrimSpace(status)
	if !validation.IsValidOrderStatus(status) {
		return invalid("status must match ^[a-z_]{1,32}$")
	}
	if err := s.repo.UpdateOrderStatus(ctx, id, model.OrderStatus(status)); err != nil {
		return err
	}
	s.logger.Info("order status updated", zap.String("order_id", id), zap.String("status", status))
	return nil
}

// OrderCredentials расшифровывает данные входа, сохранённые в заказе.
// Каждый просмотр записывается в журнал с именем администратора.
func (s *Service) OrderCredentials(ctx context.Context, id, admin string) (*Credentials, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	password, err := s.box.Open(o.SealedPassword)
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}

	s.logger.Info("credentials revealed", zap.String("order_id", id), zap.String("admin", admin))
	return &Credentials{
		OrderID:  o.ID,
		Email:    o.Email,
		Login:    o.HomeworkLogin,
		Password: password,
	}, nil
}

// Stats возвращает агрегированную статистику.
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	return s.repo.GetStats(ctx)
}
