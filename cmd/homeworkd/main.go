// Package main запускает HTTP-сервер сервиса приёма заказов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/homework-orders/internal/config"
	"github.com/mmeshcher/homework-orders/internal/handler"
	"github.com/mmeshcher/homework-orders/internal/metrics"
	"github.com/mmeshcher/homework-orders/internal/middleware"
	"github.com/mmeshcher/homework-orders/internal/notify"
	"github.com/mmeshcher/homework-orders/internal/payment"
	"github.com/mmeshcher/homework-orders/internal/pricing"
	"github.com/mmeshcher/homework-orders/internal/repository"
	"github.com/mmeshcher/homework-orders/internal/secret"
	"github.com/mmeshcher/homework-orders/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	discountBase, err := pricing.ParseBase(cfg.DiscountBase)
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	box, err := secret.NewBoxFromHex(cfg.CredentialsKey)
	if err != nil {
		sugar.Fatalw("credentials key error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	m := metrics.New()

	var processor payment.Processor
	if cfg.StripeSecretKey != "" {
		processor = payment.NewStripeProcessor(cfg.StripeSecretKey)
	} else {
		sugar.Warn("STRIPE_SECRET_KEY is not set, checkout is disabled")
	}

	var mailer notify.Mailer
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.MailFrom,
		})
	} else {
		sugar.Warn("SMTP_HOST is not set, notifications are disabled")
	}
	notifier := notify.NewNotifier(mailer, cfg.OperatorEmail, logger, m)

	svc := service.NewService(repo, processor, notifier, box, m, logger, service.Options{
		Currency:      cfg.Currency,
		FrontendURL:   cfg.FrontendURL,
		DiscountBase:  discountBase,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	})
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret, cfg.TokenTTL)
	h := handler.NewHandler(svc, logger, authMiddleware, handler.Options{
		Metrics:        m,
		AllowedOrigins: []string{cfg.FrontendURL},
		AuthRateLimit:  cfg.AuthRateLimit,
		AuthRateBurst:  cfg.AuthRateBurst,
	})

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой сверки оплат
	g.Go(func() error {
		svc.StartPaymentSync(ctx, cfg.PaymentSyncInterval)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting homework server", "addr", cfg.RunAddress, "discount_base", discountBase)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		notifier.Wait()
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
