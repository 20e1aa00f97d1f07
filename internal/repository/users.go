package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/homework-orders/internal/model"
)

const userColumns = `id, email, password_hash, name, referral_code, referred_by, credits, created_at`

// NewUser содержит данные для регистрации пользователя.
type NewUser struct {
	Email        string
	PasswordHash []byte
	Name         string
	ReferralCode string
	// ReferredBy — код пригласившего; пустая строка, если кода нет.
	ReferredBy string
	// NewUserBonus и ReferrerBonus начисляются, только если ReferredBy принадлежит существующему пользователю.
	NewUserBonus  decimal.Decimal
	ReferrerBonus decimal.Decimal
}

// CreateUser создаёт пользователя и, если указан действующий реферальный код,
// в той же транзакции начисляет бонусы обеим сторонам и записывает факт приглашения.
func (r *PostgresRepository) CreateUser(ctx context.Context, nu NewUser) (*model.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var referredBy *string
	credits := decimal.Zero

	if nu.ReferredBy != "" {
		var referrerID int64
		err := tx.QueryRow(ctx,
			`SELECT id FROM users WHERE referral_code = $1 FOR UPDATE`,
			nu.ReferredBy,
		).Scan(&referrerID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// Неизвестный код не мешает регистрации.
		case err != nil:
			return nil, fmt.Errorf("lock referrer: %w", err)
		default:
			code := nu.ReferredBy
			referredBy = &code
			credits = nu.NewUserBonus

			if _, err := tx.Exec(ctx,
				`UPDATE users SET credits = credits + $2 WHERE id = $1`,
				referrerID, nu.ReferrerBonus,
			); err != nil {
				return nil, fmt.Errorf("credit referrer: %w", err)
			}
		}
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, name, referral_code, referred_by, credits)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+userColumns,
		nu.Email, nu.PasswordHash, nu.Name, nu.ReferralCode, referredBy, credits,
	)

	u, err := scanUser(row)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == "users_referral_code_key" {
				return nil, ErrReferralCodeTaken
			}
			return nil, fmt.Errorf("%w: %s", ErrUserExists, nu.Email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if referredBy != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO referrals (referrer_code, referred_email, reward) VALUES ($1, $2, $3)`,
			*referredBy, nu.Email, nu.ReferrerBonus,
		); err != nil {
			return nil, fmt.Errorf("insert referral: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return u, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers возвращает пользователей, начиная с новых.
func (r *PostgresRepository) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}

// ListReferrals возвращает начисления за приглашения по реферальному коду, начиная с новых.
func (r *PostgresRepository) ListReferrals(ctx context.Context, code string) ([]model.Referral, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, referrer_code, referred_email, reward, created_at
		 FROM referrals
		 WHERE referrer_code = $1
		 ORDER BY created_at DESC, id DESC`,
		code,
	)
	if err != nil {
		return nil, fmt.Errorf("select referrals: %w", err)
	}
	defer rows.Close()

	var res []model.Referral
	for rows.Next() {
		var ref model.Referral
		if err := rows.Scan(&ref.ID, &ref.ReferrerCode, &ref.ReferredEmail, &ref.Reward, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		res = append(res, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name,
		&u.ReferralCode, &u.ReferredBy, &u.Credits, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
