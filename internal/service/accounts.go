package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/homework-orders/internal/model"
	"github.com/mmeshcher/homework-orders/internal/repository"
	"github.com/mmeshcher/homework-orders/internal/validation"
)

const (
	bcryptCost          = 10
	referralCodeLength  = 8
	referralCodeRetries = 5
	referralCodeChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	newUserBonus  = decimal.NewFromInt(1)
	referrerBonus = decimal.NewFromInt(2)
)

// Registration содержит данные для регистрации пользователя.
type Registration struct {
	Email        string
	Password     string
	Name         string
	ReferralCode string
}

// Profile — данные пользователя для личного кабинета.
type Profile struct {
	User *model.User
	// Referrals — начисления за приглашения, начиная с новых.
	Referrals []model.Referral
}

// RegisterUser регистрирует нового пользователя. Если указан действующий реферальный код,
// новому пользователю начисляется 1 кредит, пригласившему 2.
func (s *Service) RegisterUser(ctx context.Context, reg Registration) (*model.User, error) {
	email := normalizeEmail(reg.Email)
	name := strings.TrimSpace(reg.Name)

	switch {
	case !validation.IsValidEmail(email):
		return nil, invalid("valid email is required")
	case !validation.IsValidPassword(reg.Password):
		return nil, invalid(fmt.Sprintf("password must be at least %d characters", validation.MinPasswordLength))
	case name == "":
		return nil, invalid("name is required")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	nu := repository.NewUser{
		Email:         email,
		PasswordHash:  hashed,
		Name:          name,
		ReferredBy:    strings.ToUpper(strings.TrimSpace(reg.ReferralCode)),
		NewUserBonus:  newUserBonus,
		ReferrerBonus: referrerBonus,
	}

	for attempt := 0; attempt < referralCodeRetries; attempt++ {
		code, err := generateReferralCode()
		if err != nil {
			return nil, err
		}
		nu.ReferralCode = code

		u, err := s.repo.CreateUser(ctx, nu)
		if errors.Is(err, repository.ErrReferralCodeTaken) {
			s.logger.Debug("referral code collision", zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		if u.ReferredBy != nil {
			s.logger.Info("referral bonus granted",
				zap.Int64("user_id", u.ID),
				zap.String("referrer_code", *u.ReferredBy),
			)
		}
		s.notifier.Welcome(ctx, u)
		return u, nil
	}

	return nil, fmt.Errorf("generate unique referral code: %w", repository.ErrReferralCodeTaken)
}

// AuthenticateUser проверяет email и пароль пользователя и возвращает его.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetProfile возвращает пользователя и историю его приглашений.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	refs, err := s.repo.ListReferrals(ctx, u.ReferralCode)
	if err != nil {
		return nil, err
	}

	return &Profile{User: u, Referrals: refs}, nil
}

// GetOrdersByUser возвращает список заказов пользователя.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

func generateReferralCode() (string, error) {
	buf := make([]byte, referralCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = referralCodeChars[int(b)%len(referralCodeChars)]
	}
	return string(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
