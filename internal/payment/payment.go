// Package payment предоставляет клиент платёжной системы с размещённой страницей оплаты.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// SessionStatus описывает состояние платёжной сессии.
type SessionStatus string

const (
	StatusOpen    SessionStatus = "open"
	StatusPaid    SessionStatus = "paid"
	StatusExpired SessionStatus = "expired"
)

// SessionRequest содержит параметры создания платёжной сессии с одной позицией.
type SessionRequest struct {
	OrderID       string
	CustomerEmail string
	Description   string
	Amount        decimal.Decimal
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// Session — созданная платёжная сессия.
type Session struct {
	ID  string
	URL string
}

// Processor определяет контракт платёжной системы.
type Processor interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	SessionStatus(ctx context.Context, id string) (SessionStatus, error)
}

// StripeProcessor реализует Processor через Stripe Checkout.
type StripeProcessor struct {
	api *client.API
}

// NewStripeProcessor создаёт клиент Stripe с указанным секретным ключом.
func NewStripeProcessor(secretKey string) *StripeProcessor {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProcessor{api: api}
}

// NewStripeProcessorWithURL создаёт клиент Stripe, обращающийся к указанному адресу API.
func NewStripeProcessorWithURL(secretKey, baseURL string) *StripeProcessor {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(baseURL),
		MaxNetworkRetries: stripe.Int64(0),
	})

	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeProcessor{api: api}
}

// CreateSession создаёт сессию оплаты на сумму req.Amount.
func (p *StripeProcessor) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ClientReferenceID: stripe.String(req.OrderID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(MinorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("orderId", req.OrderID)
	params.AddMetadata("customerEmail", req.CustomerEmail)

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %s", errorMessage(err))
	}

	return &Session{ID: s.ID, URL: s.URL}, nil
}

// SessionStatus возвращает состояние оплаты сессии.
func (p *StripeProcessor) SessionStatus(ctx context.Context, id string) (SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return "", fmt.Errorf("get checkout session: %s", errorMessage(err))
	}

	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return StatusPaid, nil
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return StatusExpired, nil
	default:
		return StatusOpen, nil
	}
}

// MinorUnits переводит сумму в минимальные единицы валюты (центы).
// Поддерживаются только валюты с двумя знаками, это проверяет конфигурация.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func errorMessage(err error) string {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return se.Msg
	}
	return err.Error()
}
