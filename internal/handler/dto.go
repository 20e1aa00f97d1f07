package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/homework-orders/internal/model"
)

// amount сериализуется как число с двумя знаками после запятой.
type amount decimal.Decimal

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).StringFixed(2)), nil
}

type userResponse struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	ReferralCode string    `json:"referralCode"`
	ReferredBy   *string   `json:"referredBy,omitempty"`
	Credits      amount    `json:"credits"`
	Referrals    *int64    `json:"referrals,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`

	ReferralHistory []referralResponse `json:"referralHistory,omitempty"`
}

type referralResponse struct {
	Email     string    `json:"email"`
	Reward    amount    `json:"reward"`
	CreatedAt time.Time `json:"createdAt"`
}

func newReferralResponses(refs []model.Referral) []referralResponse {
	res := make([]referralResponse, 0, len(refs))
	for _, ref := range refs {
		res = append(res, referralResponse{
			Email:     maskEmail(ref.ReferredEmail),
			Reward:    amount(ref.Reward),
			CreatedAt: ref.CreatedAt,
		})
	}
	return res
}

// maskEmail оставляет первую букву локальной части и домен.
func maskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 1 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		ReferralCode: u.ReferralCode,
		ReferredBy:   u.ReferredBy,
		Credits:      amount(u.Credits),
		CreatedAt:    u.CreatedAt,
	}
}

type itemResponse struct {
	Name     string `json:"name"`
	Price    amount `json:"price"`
	Quantity int    `json:"quantity"`
}

type orderResponse struct {
	ID             string         `json:"id"`
	UserID         *int64         `json:"userId,omitempty"`
	Email          string         `json:"email"`
	Items          []itemResponse `json:"items"`
	RawTotal       amount         `json:"rawTotal"`
	CreditsUsed    amount         `json:"creditsUsed"`
	DiscountCode   *string        `json:"discountCode,omitempty"`
	DiscountAmount amount         `json:"discountAmount"`
	Total          amount         `json:"total"`
	HomeworkLogin  string         `json:"homeworkLogin,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	SessionID      string         `json:"sessionId,omitempty"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// newOrderResponse не включает зашифрованный пароль; логин отдаётся только администратору.
func newOrderResponse(o model.Order, withLogin bool) orderResponse {
	items := make([]itemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemResponse{Name: it.Name, Price: amount(it.Price), Quantity: it.Quantity})
	}

	resp := orderResponse{
		ID:             o.ID,
		UserID:         o.UserID,
		Email:          o.Email,
		Items:          items,
		RawTotal:       amount(o.RawTotal),
		CreditsUsed:    amount(o.CreditsUsed),
		DiscountCode:   o.DiscountCode,
		DiscountAmount: amount(o.DiscountAmount),
		Total:          amount(o.Total),
		Notes:          o.Notes,
		SessionID:      o.SessionID,
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if withLogin {
		resp.HomeworkLogin = o.HomeworkLogin
	}
	return resp
}

func newOrderResponses(orders []model.Order, withLogin bool) []orderResponse {
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o, withLogin))
	}
	return resp
}

type discountResponse struct {
	Code        string     `json:"code"`
	Type        string     `json:"type"`
	Value       amount     `json:"value"`
	MinPurchase amount     `json:"minPurchase"`
	MaxUses     *int       `json:"maxUses"`
	UsedCount   int        `json:"usedCount"`
	Active      bool       `json:"active"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func newDiscountResponse(d *model.Discount) discountResponse {
	return discountResponse{
		Code:        d.Code,
		Type:        string(d.Kind),
		Value:       amount(d.Value),
		MinPurchase: amount(d.MinPurchase),
		MaxUses:     d.MaxUses,
		UsedCount:   d.UsedCount,
		Active:      d.Active,
		ExpiresAt:   d.ExpiresAt,
		CreatedAt:   d.CreatedAt,
	}
}
