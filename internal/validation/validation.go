// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/homework-orders/internal/model"
)

const (
	// MinPasswordLength минимальная длина пароля пользователя.
	MinPasswordLength = 6
	maxItemNameLength = 200
	maxCartItems      = 50
	maxItemQuantity   = 1000
)

var (
	// Суммы хранятся в NUMERIC(12,2); корзина из максимальных позиций укладывается в этот тип.
	maxItemPrice = decimal.NewFromInt(100_000)
	maxCartTotal = maxItemPrice.Mul(decimal.NewFromInt(maxCartItems * maxItemQuantity))

	statusRe       = regexp.MustCompile(`^[a-z_]{1,32}$`)
	discountCodeRe = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)
)

// IsValidEmail проверяет, что строка является одиночным адресом без отображаемого имени.
func IsValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(addr.Address, "@")
}

// IsValidPassword проверяет минимальную длину пароля.
func IsValidPassword(password string) bool {
	return len(password) >= MinPasswordLength
}

// IsValidOrderStatus проверяет формат статуса, выставляемого администратором.
func IsValidOrderStatus(status string) bool {
	return statusRe.MatchString(status)
}

// IsValidDiscountCode проверяет формат промокода.
func IsValidDiscountCode(code string) bool {
	return discountCodeRe.MatchString(code)
}

// CartProblem возвращает описание первой ошибки в корзине или пустую строку.
func CartProblem(items []model.OrderItem) string {
	if len(items) == 0 {
		return "cart is empty"
	}
	if len(items) > maxCartItems {
		return "too many items in cart"
	}
	for _, it := range items {
		name := strings.TrimSpace(it.Name)
		switch {
		case name == "":
			return "item name is required"
		case len(name) > maxItemNameLength:
			return "item name is too long"
		case it.Quantity < 1:
			return "item quantity must be at least 1"
		case it.Quantity > maxItemQuantity:
			return "item quantity is too large"
		case it.Price.IsNegative():
			return "item price must not be negative"
		case it.Price.GreaterThan(maxItemPrice):
			return "item price is too large"
		case !it.Price.Equal(it.Price.Round(2)):
			return "item price has too many decimal places"
		}
	}
	return ""
}

// DiscountProblem возвращает описание ошибки в параметрах нового промокода или пустую строку.
func DiscountProblem(d model.Discount) string {
	switch {
	case !IsValidDiscountCode(d.Code):
		return "discount code must be 3-32 letters, digits, '-' or '_'"
	case d.Kind != model.DiscountPercentage && d.Kind != model.DiscountFixed:
		return "discount type must be percentage or fixed"
	case !d.Value.IsPositive():
		return "discount value must be positive"
	case d.Kind == model.DiscountPercentage && d.Value.GreaterThan(decimal.NewFromInt(100)):
		return "percentage discount must not exceed 100"
	case d.Value.GreaterThan(maxCartTotal):
		return "discount value is too large"
	case d.MinPurchase.IsNegative():
		return "minimum purchase must not be negative"
	case d.MinPurchase.GreaterThan(maxCartTotal):
		return "minimum purchase is too large"
	case d.MaxUses != nil && *d.MaxUses < 1:
		return "max uses must be at least 1"
	}
	return ""
}
