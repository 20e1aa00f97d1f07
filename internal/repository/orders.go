package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/homework-orders/internal/model"
	"github.com/mmeshcher/homework-orders/internal/pricing"
)

const orderColumns = `id, user_id, email, items, raw_total, credits_used, total,
	homework_login, sealed_password, notes, COALESCE(session_id, ''), COALESCE(payment_url, ''),
	status, discount_code, discount_amount, created_at, updated_at`

// QuoteFunc рассчитывает заказ по заблокированному в транзакции балансу и промокоду.
type QuoteFunc func(credits decimal.Decimal, d *model.Discount) pricing.Quote

// ReserveOrder в одной транзакции блокирует строки пользователя и промокода,
// рассчитывает сумму через quote, списывает кредиты, учитывает использование
// промокода и сохраняет заказ в статусе pending. Поля суммы заказа заполняются по расчёту.
// Обрыв на фиксации возвращает ErrCommitUncertain и не повторяется.
func (r *PostgresRepository) ReserveOrder(ctx context.Context, o *model.Order, code string, quote QuoteFunc) (pricing.Quote, error) {
	var q pricing.Quote
	err := withRetry(ctx, func() error {
		var err error
		q, err = r.reserveOrder(ctx, o, code, quote)
		return err
	})
	return q, err
}

func (r *PostgresRepository) reserveOrder(ctx context.Context, o *model.Order, code string, quote QuoteFunc) (pricing.Quote, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return pricing.Quote{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку пользователя, чтобы параллельные заказы не списали кредиты дважды.
	credits := decimal.Zero
	if o.UserID != nil {
		err := tx.QueryRow(ctx,
			`SELECT credits FROM users WHERE id = $1 FOR UPDATE`,
			*o.UserID,
		).Scan(&credits)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return pricing.Quote{}, ErrUserNotFound
			}
			return pricing.Quote{}, fmt.Errorf("lock user for update: %w", err)
		}
	}

	var discount *model.Discount
	if code != "" {
		row := tx.QueryRow(ctx,
			`SELECT `+discountColumns+` FROM discounts WHERE code = UPPER($1) FOR UPDATE`,
			code,
		)
		d, err := scanDiscount(row)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return pricing.Quote{}, fmt.Errorf("lock discount for update: %w", err)
		default:
			discount = d
		}
	}

	q := quote(credits, discount)

	if q.CreditsUsed.IsPositive() {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET credits = credits - $2 WHERE id = $1 AND credits >= $2`,
			*o.UserID, q.CreditsUsed,
		)
		if err != nil {
			return pricing.Quote{}, fmt.Errorf("consume credits: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return pricing.Quote{}, ErrInsufficientCredits
		}
	}

	o.DiscountCode = nil
	if q.DiscountApplied {
		tag, err := tx.Exec(ctx,
			`UPDATE discounts SET used_count = used_count + 1
			 WHERE code = $1 AND (max_uses IS NULL OR used_count < max_uses)`,
			discount.Code,
		)
		if err != nil {
			return pricing.Quote{}, fmt.Errorf("increment discount usage: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return pricing.Quote{}, ErrDiscountExhausted
		}
		applied := discount.Code
		o.DiscountCode = &applied
	}

	o.RawTotal = q.RawTotal
	o.CreditsUsed = q.CreditsUsed
	o.DiscountAmount = q.DiscountAmount
	o.Total = q.Total
	o.Status = model.OrderStatusPending

	if err := insertOrder(ctx, tx, o); err != nil {
		return pricing.Quote{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return pricing.Quote{}, fmt.Errorf("commit tx: %w: %w", ErrCommitUncertain, err)
	}

	return q, nil
}

// ReleaseOrder отменяет заказ в статусе pending и возвращает списанные кредиты и использование промокода.
// Возвращает false, если заказ уже не в статусе pending.
func (r *PostgresRepository) ReleaseOrder(ctx context.Context, id string) (bool, error) {
	var released bool
	err := withRetry(ctx, func() error {
		var err error
		released, err = r.releaseOrder(ctx, id)
		return err
	})
	return released, err
}

func (r *PostgresRepository) releaseOrder(ctx context.Context, id string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		userID       *int64
		creditsUsed  decimal.Decimal
		discountCode *string
		status       string
	)
	err = tx.QueryRow(ctx,
		`SELECT user_id, credits_used, discount_code, status FROM orders WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&userID, &creditsUsed, &discountCode, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrOrderNotFound
		}
		return false, fmt.Errorf("lock order for update: %w", err)
	}

	if model.OrderStatus(status) != model.OrderStatusPending {
		return false, nil
	}

	if userID != nil && creditsUsed.IsPositive() {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET credits = credits + $2 WHERE id = $1`,
			*userID, creditsUsed,
		); err != nil {
			return false, fmt.Errorf("restore credits: %w", err)
		}
	}

	if discountCode != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE discounts SET used_count = GREATEST(used_count - 1, 0) WHERE code = $1`,
			*discountCode,
		); err != nil {
			return false, fmt.Errorf("restore discount usage: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(model.OrderStatusCancelled),
	); err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return true, nil
}

// CreateOrder сохраняет заказ без списания кредитов и промокода.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	return insertOrder(ctx, r.pool, o)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertOrder(ctx context.Context, db execer, o *model.Order) error {
	_, err := db.Exec(ctx,
		`INSERT INTO orders (id, user_id, email, items, raw_total, credits_used, total,
			homework_login, sealed_password, notes, status, discount_code, discount_amount)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.UserID, o.Email, o.Items, o.RawTotal, o.CreditsUsed, o.Total,
		o.HomeworkLogin, o.SealedPassword, o.Notes, string(o.Status), o.DiscountCode, o.DiscountAmount,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// AttachSession сохраняет идентификатор и ссылку платёжной сессии заказа.
func (r *PostgresRepository) AttachSession(ctx context.Context, id, sessionID, paymentURL string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET session_id = $2, payment_url = $3, updated_at = now() WHERE id = $1`,
		id, sessionID, paymentURL,
	)
	if err != nil {
		return fmt.Errorf("attach session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrdersByUser возвращает список заказов пользователя.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
}

// ListOrders возвращает последние заказы, не больше limit.
func (r *PostgresRepository) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
}

func (r *PostgresRepository) queryOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// UpdateOrderStatus устанавливает статус заказа.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// CompleteOrder переводит заказ из pending в completed. Возвращает false, если статус уже другой.
func (r *PostgresRepository) CompleteOrder(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		id, string(model.OrderStatusCompleted), string(model.OrderStatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("complete order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PendingSession описывает заказ, ожидающий подтверждения оплаты.
type PendingSession struct {
	OrderID   string
	SessionID string
}

// GetPendingSessions возвращает заказы в статусе pending с созданной платёжной сессией.
func (r *PostgresRepository) GetPendingSessions(ctx context.Context, limit int) ([]PendingSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id
		 FROM orders
		 WHERE status = $1 AND session_id IS NOT NULL
		 ORDER BY created_at
		 LIMIT $2`,
		string(model.OrderStatusPending),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending sessions: %w", err)
	}
	defer rows.Close()

	var res []PendingSession
	for rows.Next() {
		var p PendingSession
		if err := rows.Scan(&p.OrderID, &p.SessionID); err != nil {
			return nil, fmt.Errorf("scan pending session: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetStats возвращает агрегированную статистику; выручка считается по завершённым заказам.
func (r *PostgresRepository) GetStats(ctx context.Context) (*model.Stats, error) {
	var s model.Stats
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM orders),
			(SELECT count(*) FROM orders WHERE status = $1),
			(SELECT count(*) FROM discounts),
			(SELECT COALESCE(SUM(total), 0) FROM orders WHERE status = $1)`,
		string(model.OrderStatusCompleted),
	).Scan(&s.Users, &s.Orders, &s.CompletedOrders, &s.Discounts, &s.Revenue)
	if err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}
	return &s, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Email, &o.Items, &o.RawTotal, &o.CreditsUsed, &o.Total,
		&o.HomeworkLogin, &o.SealedPassword, &o.Notes, &o.SessionID, &o.PaymentURL,
		&status, &o.DiscountCode, &o.DiscountAmount, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}
