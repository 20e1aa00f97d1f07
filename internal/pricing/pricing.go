// Package pricing вычисляет итоговую сумму заказа с учётом кредитов и промокода.
package pricing

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/homework-orders/internal/model"
)

// Floor — минимальная сумма, которую принимает платёжная система.
var Floor = decimal.New(50, -2)

var hundred = decimal.NewFromInt(100)

var (
	// ErrDiscountNotFound возвращается, если промокод не существует.
	ErrDiscountNotFound = errors.New("discount code not found")
	// ErrDiscountInactive возвращается для отключённого промокода.
	ErrDiscountInactive = errors.New("discount code is not active")
	// ErrDiscountExpired возвращается для промокода с истёкшим сроком действия.
	ErrDiscountExpired = errors.New("discount code has expired")
	// ErrDiscountLimitReached возвращается, если исчерпан лимит использований.
	ErrDiscountLimitReached = errors.New("discount code usage limit reached")
	// ErrMinimumPurchase возвращается, если сумма заказа ниже порога промокода.
	ErrMinimumPurchase = errors.New("minimum purchase amount not met")
)

// Base определяет, от какой суммы считается скидка и проверяется минимальная покупка.
type Base string

const (
	// BasePostCredit — сумма после списания кредитов.
	BasePostCredit Base = "post_credit"
	// BasePreCredit — сумма корзины до списания кредитов.
	BasePreCredit Base = "pre_credit"
)

// ParseBase разбирает значение настройки DISCOUNT_BASE.
func ParseBase(s string) (Base, error) {
	switch Base(strings.ToLower(strings.TrimSpace(s))) {
	case "", BasePostCredit:
		return BasePostCredit, nil
	case BasePreCredit:
		return BasePreCredit, nil
	default:
		return "", errors.Errorf("unknown discount base %q", s)
	}
}

// Item — позиция корзины для расчёта.
type Item struct {
	Price    decimal.Decimal
	Quantity int
}

// Input содержит всё, что нужно для расчёта одного заказа.
type Input struct {
	Items []Item
	// Credits — баланс пользователя; ноль для анонимного заказа.
	Credits decimal.Decimal
	// Code — запрошенный промокод, Discount — найденная по нему запись (nil, если не найдена).
	Code     string
	Discount *model.Discount
	Now      time.Time
	Base     Base
}

// Quote — результат расчёта.
type Quote struct {
	RawTotal        decimal.Decimal
	CreditsUsed     decimal.Decimal
	DiscountAmount  decimal.Decimal
	DiscountApplied bool
	// DiscountErr объясняет, почему запрошенный промокод не применён.
	DiscountErr error
	Total       decimal.Decimal
}

// Resolve рассчитывает итоговую сумму. Функция не изменяет хранилище:
// списание кредитов и учёт использования промокода выполняет вызывающий код.
func Resolve(in Input) Quote {
	var q Quote

	q.RawTotal = Subtotal(in.Items)
	running := q.RawTotal

	if in.Credits.IsPositive() {
		q.CreditsUsed = decimal.Min(in.Credits, q.RawTotal)
		running = running.Sub(q.CreditsUsed)
	}

	if in.Code != "" {
		if in.Discount == nil {
			q.DiscountErr = ErrDiscountNotFound
		} else {
			base := running
			if in.Base == BasePreCredit {
				base = q.RawTotal
			}

			if err := Eligible(in.Discount, base, in.Now); err != nil {
				q.DiscountErr = err
			} else {
				q.DiscountAmount = Amount(in.Discount, base, running)
				q.DiscountApplied = true
				running = running.Sub(q.DiscountAmount)
			}
		}
	}

	q.Total = decimal.Max(Floor, running).Round(2)

	return q
}

// Eligible проверяет, можно ли применить промокод к сумме base в момент now.
func Eligible(d *model.Discount, base decimal.Decimal, now time.Time) error {
	if !d.Active {
		return ErrDiscountInactive
	}
	if d.ExpiresAt != nil && !now.Before(*d.ExpiresAt) {
		return ErrDiscountExpired
	}
	if d.MaxUses != nil && d.UsedCount >= *d.MaxUses {
		return ErrDiscountLimitReached
	}
	if base.LessThan(d.MinPurchase) {
		return ErrMinimumPurchase
	}
	return nil
}

// Amount вычисляет размер скидки от суммы base, не превышающий остаток remaining.
func Amount(d *model.Discount, base, remaining decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal

	switch d.Kind {
	case model.DiscountPercentage:
		amount = base.Mul(d.Value).Div(hundred)
	case model.DiscountFixed:
		amount = d.Value
	}

	amount = decimal.Min(amount, remaining)
	return floorAtZero(amount).Round(2)
}

// Subtotal возвращает сумму price * quantity по всем позициям.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
