// Package metrics содержит счётчики Prometheus сервиса.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homework"

// Metrics объединяет метрики сервиса. Методы допускают nil-получатель.
type Metrics struct {
	gatherer prometheus.Gatherer

	checkouts          *prometheus.CounterVec
	discountRejections *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	paymentSync        *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

// New регистрирует метрики в отдельном реестре.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		gatherer: reg,
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by result.",
		}, []string{"result"}),
		discountRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_rejections_total",
			Help:      "Discount codes rejected by reason.",
		}, []string{"reason"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification emails by kind and result.",
		}, []string{"kind", "result"}),
		paymentSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_sync_total",
			Help:      "Payment session status checks by outcome.",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.checkouts,
		m.discountRejections,
		m.notifications,
		m.paymentSync,
		m.requestDuration,
		collectors.NewGoCollector(),
	)

	return m
}

// Handler отдаёт метрики в формате Prometheus.
// Сжатие ответа выполняет общий gzip-middleware роутера.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{DisableCompression: true})
}

// Checkout учитывает результат оформления заказа.
func (m *Metrics) Checkout(result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
}

// DiscountRejected учитывает отклонённый промокод.
func (m *Metrics) DiscountRejected(reason string) {
	if m == nil {
		return
	}
	m.discountRejections.WithLabelValues(reason).Inc()
}

// Notification учитывает отправку письма.
func (m *Metrics) Notification(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// PaymentSync учитывает результат проверки платёжной сессии.
func (m *Metrics) PaymentSync(outcome string) {
	if m == nil {
		return
	}
	m.paymentSync.WithLabelValues(outcome).Inc()
}

// ObserveRequest записывает длительность HTTP-запроса.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
