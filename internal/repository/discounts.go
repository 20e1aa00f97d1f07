package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/homework-orders/internal/model"
)

const discountColumns = `code, kind, value, min_purchase, max_uses, used_count, active, expires_at, created_at`

// CreateDiscount сохраняет новый промокод. Код приводится к верхнему регистру.
func (r *PostgresRepository) CreateDiscount(ctx context.Context, d *model.Discount) (*model.Discount, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO discounts (code, kind, value, min_purchase, max_uses, active, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+discountColumns,
		strings.ToUpper(d.Code), string(d.Kind), d.Value, d.MinPurchase, d.MaxUses, d.Active, d.ExpiresAt,
	)

	created, err := scanDiscount(row)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: %s", ErrDiscountExists, d.Code)
		}
		return nil, fmt.Errorf("create discount: %w", err)
	}
	return created, nil
}

// GetDiscount возвращает промокод по коду без учёта регистра.
func (r *PostgresRepository) GetDiscount(ctx context.Context, code string) (*model.Discount, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+discountColumns+` FROM discounts WHERE code = $1`,
		strings.ToUpper(code),
	)

	d, err := scanDiscount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDiscountNotFound
		}
		return nil, fmt.Errorf("get discount: %w", err)
	}
	return d, nil
}

// ListDiscounts возвращает все промокоды, начиная с новых.
func (r *PostgresRepository) ListDiscounts(ctx context.Context) ([]model.Discount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+discountColumns+` FROM discounts ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select discounts: %w", err)
	}
	defer rows.Close()

	var res []model.Discount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		res = append(res, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanDiscount(row pgx.Row) (*model.Discount, error) {
	var (
		d    model.Discount
		kind string
	)
	err := row.Scan(
		&d.Code, &kind, &d.Value, &d.MinPurchase, &d.MaxUses,
		&d.UsedCount, &d.Active, &d.ExpiresAt, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Kind = model.DiscountKind(kind)
	return &d, nil
}
