package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/homework-orders/internal/payment"
)

const paymentSyncBatch = 100

// StartPaymentSync запускает фоновую сверку статусов оплаты заказов в статусе pending.
// Оплаченные заказы завершаются, заказы с истёкшей сессией отменяются с возвратом резерва.
func (s *Service) StartPaymentSync(ctx context.Context, interval time.Duration) {
	if s.processor == nil {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.syncPayments(ctx)
			}
		}
	}()
}

func (s *Service) syncPayments(ctx context.Context) {
	pending, err := s.repo.GetPendingSessions(ctx, paymentSyncBatch)
	if err != nil {
		s.logger.Warn("load pending sessions", zap.Error(err))
		return
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return
		}

		status, err := s.processor.SessionStatus(ctx, p.SessionID)
		if err != nil {
			s.metrics.PaymentSync("error")
			s.logger.Warn("get session status",
				zap.String("order_id", p.OrderID),
				zap.String("session_id", p.SessionID),
				zap.Error(err),
			)
			continue
		}

		switch status {
		case payment.StatusPaid:
			ok, err := s.repo.CompleteOrder(ctx, p.OrderID)
			if err != nil {
				s.logger.Error("complete order", zap.String("order_id", p.OrderID), zap.Error(err))
				continue
			}
			if ok {
				s.metrics.PaymentSync("completed")
				s.logger.Info("order paid", zap.String("order_id", p.OrderID))
			}
		case payment.StatusExpired:
			ok, err := s.repo.ReleaseOrder(ctx, p.OrderID)
			if err != nil {
				s.logger.Error("release expired order", zap.String("order_id", p.OrderID), zap.Error(err))
				continue
			}
			if ok {
				s.metrics.PaymentSync("expired")
				s.logger.Info("payment session expired", zap.String("order_id", p.OrderID))
			}
		default:
			s.metrics.PaymentSync("open")
		}
	}
}
