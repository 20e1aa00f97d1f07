// Package notify форматирует и отправляет уведомления клиентам и оператору.
package notify

import (
	"bytes"
	"context"
	"sync"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/homework-orders/internal/metrics"
	"github.com/mmeshcher/homework-orders/internal/model"
)

// Виды уведомлений, используются в логах и метриках.
const (
	KindOrderConfirmation = "order_confirmation"
	KindOrderDetails      = "order_details"
	KindLoginDetails      = "login_details"
	KindWelcome           = "welcome"
)

// Mailer отправляет одно письмо.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

var funcs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}

var (
	orderConfirmationTmpl = template.Must(template.New(KindOrderConfirmation).Funcs(funcs).Parse(
		`Thank you for your order!

Order: {{.ID}}
{{range .Items}}- {{.Name}} x{{.Quantity}} @ {{money .Price}}
{{end}}{{if .CreditsUsed.IsPositive}}Credits applied: -{{money .CreditsUsed}}
{{end}}{{if .DiscountCode}}Discount {{.DiscountCode}}: -{{money .DiscountAmount}}
{{end}}Total: {{money .Total}}

We will start working on your homework as soon as the payment is confirmed.
`))

	orderDetailsTmpl = template.Must(template.New(KindOrderDetails).Funcs(funcs).Parse(
		`New order {{.ID}} ({{.Status}})

Customer: {{.Email}}
{{range .Items}}- {{.Name}} x{{.Quantity}} @ {{money .Price}}
{{end}}Subtotal: {{money .RawTotal}}
Credits used: {{money .CreditsUsed}}
Discount: {{if .DiscountCode}}{{.DiscountCode}} -{{money .DiscountAmount}}{{else}}none{{end}}
Charged: {{money .Total}}

Homework account login: {{.HomeworkLogin}}
The password is stored encrypted; fetch it from the admin panel.
`))

	loginDetailsTmpl = template.Must(template.New(KindLoginDetails).Funcs(funcs).Parse(
		`Login details submitted for order {{.ID}}

Customer: {{.Email}}
Homework account login: {{.HomeworkLogin}}
{{if .Notes}}Notes: {{.Notes}}
{{end}}The password is stored encrypted; fetch it from the admin panel.
`))

	welcomeTmpl = template.Must(template.New(KindWelcome).Parse(
		`Hi {{if .Name}}{{.Name}}{{else}}there{{end}},

Your account is ready. Share your referral code {{.ReferralCode}} with friends:
they get 1 credit on sign-up and you get 2.
`))
)

// Notifier отправляет уведомления в фоне. Ошибки отправки логируются и не возвращаются.
type Notifier struct {
	mailer        Mailer
	operatorEmail string
	logger        *zap.Logger
	metrics       *metrics.Metrics
	timeout       time.Duration

	wg sync.WaitGroup
}

// NewNotifier создаёт Notifier. mailer может быть nil — тогда письма не отправляются.
func NewNotifier(mailer Mailer, operatorEmail string, logger *zap.Logger, m *metrics.Metrics) *Notifier {
	return &Notifier{
		mailer:        mailer,
		operatorEmail: operatorEmail,
		logger:        logger,
		metrics:       m,
		timeout:       15 * time.Second,
	}
}

// OrderPlaced отправляет подтверждение клиенту и детали заказа оператору.
func (n *Notifier) OrderPlaced(ctx context.Context, o *model.Order) {
	n.dispatch(ctx, KindOrderConfirmation, o.Email, "Order confirmation "+o.ID, orderConfirmationTmpl, o)
	n.dispatch(ctx, KindOrderDetails, n.operatorEmail, "New order "+o.ID, orderDetailsTmpl, o)
}

// LoginDetailsSubmitted уведомляет оператора о присланных данных и подтверждает приём клиенту.
func (n *Notifier) LoginDetailsSubmitted(ctx context.Context, o *model.Order) {
	n.dispatch(ctx, KindLoginDetails, n.operatorEmail, "Login details for order "+o.ID, loginDetailsTmpl, o)
	n.dispatch(ctx, KindOrderConfirmation, o.Email, "We received your details", orderConfirmationTmpl, o)
}

// Welcome отправляет приветственное письмо с реферальным кодом.
func (n *Notifier) Welcome(ctx context.Context, u *model.User) {
	n.dispatch(ctx, KindWelcome, u.Email, "Welcome!", welcomeTmpl, u)
}

// Wait дожидается завершения отправки всех писем.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) dispatch(ctx context.Context, kind, to, subject string, tmpl *template.Template, data any) {
	if n.mailer == nil || to == "" {
		n.logger.Debug("notification skipped", zap.String("kind", kind), zap.String("to", to))
		return
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		n.logger.Error("render notification", zap.String("kind", kind), zap.Error(err))
		n.metrics.Notification(kind, err)
		return
	}

	// Отправка не должна зависеть от отмены контекста запроса.
	sendCtx := context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(sendCtx, n.timeout)
		defer cancel()

		err := n.mailer.Send(ctx, to, subject, body.String())
		n.metrics.Notification(kind, err)
		if err != nil {
			n.logger.Warn("send notification failed",
				zap.String("kind", kind),
				zap.String("to", to),
				zap.Error(err),
			)
		}
	}()
}
