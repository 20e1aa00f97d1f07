// Package service реализует бизнес-логику сервиса приёма заказов.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/homework-orders/internal/metrics"
	"github.com/mmeshcher/homework-orders/internal/model"
	"github.com/mmeshcher/homework-orders/internal/payment"
	"github.com/mmeshcher/homework-orders/internal/pricing"
	"github.com/mmeshcher/homework-orders/internal/repository"
	"github.com/mmeshcher/homework-orders/internal/secret"
)

var (
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrValidation объединяет ошибки проверки входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrPaymentUnavailable возвращается, если платёжная система не настроена.
	ErrPaymentUnavailable = errors.New("payment processor is not configured")
)

// ValidationError описывает некорректные входные данные. errors.Is(err, ErrValidation) == true.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Is сопоставляет ошибку с ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string) error {
	return &ValidationError{Msg: msg}
}

// PaymentError оборачивает ошибку платёжной системы; её текст возвращается клиенту.
type PaymentError struct {
	Err error
}

func (e *PaymentError) Error() string { return e.Err.Error() }

func (e *PaymentError) Unwrap() error { return e.Err }

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error

	CreateUser(ctx context.Context, nu repository.NewUser) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context, limit int) ([]model.User, error)
	ListReferrals(ctx context.Context, code string) ([]model.Referral, error)

	CreateDiscount(ctx context.Context, d *model.Discount) (*model.Discount, error)
	GetDiscount(ctx context.Context, code string) (*model.Discount, error)
	ListDiscounts(ctx context.Context) ([]model.Discount, error)

	ReserveOrder(ctx context.Context, o *model.Order, code string, quote repository.QuoteFunc) (pricing.Quote, error)
	ReleaseOrder(ctx context.Context, id string) (bool, error)
	CreateOrder(ctx context.Context, o *model.Order) error
	AttachSession(ctx context.Context, id, sessionID, paymentURL string) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	ListOrders(ctx context.Context, limit int) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
	CompleteOrder(ctx context.Context, id string) (bool, error)
	GetPendingSessions(ctx context.Context, limit int) ([]repository.PendingSession, error)
	GetStats(ctx context.Context) (*model.Stats, error)
}

// Notifier отправляет письма клиентам и оператору. Методы не блокируют вызывающего.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *model.Order)
	LoginDetailsSubmitted(ctx context.Context, o *model.Order)
	Welcome(ctx context.Context, u *model.User)
}

// Options содержит настройки бизнес-логики.
type Options struct {
	Currency      string
	FrontendURL   string
	DiscountBase  pricing.Base
	AdminUsername string
	AdminPassword string
}

// Service содержит бизнес-логику сервиса приёма заказов.
type Service struct {
	repo      Repository
	processor payment.Processor
	notifier  Notifier
	box       *secret.Box
	metrics   *metrics.Metrics
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

// NewService создаёт сервис. processor может быть nil: тогда оформление оплаты недоступно.
func NewService(
	repo Repository,
	processor payment.Processor,
	notifier Notifier,
	box *secret.Box,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts Options,
) *Service {
	if opts.DiscountBase == "" {
		opts.DiscountBase = pricing.BasePostCredit
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		processor: processor,
		notifier:  notifier,
		box:       box,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}
