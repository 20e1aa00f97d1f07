// Package model содержит доменные сущности сервиса приёма заказов.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User представляет зарегистрированного клиента сервиса.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	Name         string
	ReferralCode string
	ReferredBy   *string
	Credits      decimal.Decimal
	CreatedAt    time.Time
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusSubmitted OrderStatus = "submitted"
)

// OrderItem описывает позицию корзины.
type OrderItem struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Order описывает заказ клиента.
type Order struct {
	ID             string
	UserID         *int64
	Email          string
	Items          []OrderItem
	RawTotal       decimal.Decimal
	CreditsUsed    decimal.Decimal
	Total          decimal.Decimal
	HomeworkLogin  string
	SealedPassword string
	Notes          string
	SessionID      string
	PaymentURL     string
	Status         OrderStatus
	DiscountCode   *string
	DiscountAmount decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DiscountKind задаёт способ расчёта скидки.
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// Discount описывает промокод и его счётчики.
type Discount struct {
	Code        string
	Kind        DiscountKind
	Value       decimal.Decimal
	MinPurchase decimal.Decimal
	MaxUses     *int
	UsedCount   int
	Active      bool
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// Referral фиксирует начисление бонуса за приглашение.
type Referral struct {
	ID            int64
	ReferrerCode  string
	ReferredEmail string
	Reward        decimal.Decimal
	CreatedAt     time.Time
}

// Stats содержит агрегированную статистику для администратора.
type Stats struct {
	Users           int64
	Orders          int64
	CompletedOrders int64
	Discounts       int64
	Revenue         decimal.Decimal
}
