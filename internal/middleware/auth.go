// Package middleware содержит HTTP middleware сервиса приёма заказов.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	adminKey  contextKey = "admin"
)

// Роли, записываемые в токен.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ErrInvalidToken возвращается для просроченного, испорченного или чужого токена.
var ErrInvalidToken = errors.New("invalid token")

// Claims описывает полезную нагрузку токена доступа.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"uid,omitempty"`
	Role   string `json:"role"`
}

// AuthMiddleware выпускает и проверяет JWT-токены доступа.
type AuthMiddleware struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретом и сроком жизни токена.
func NewAuthMiddleware(secret string, ttl time.Duration) *AuthMiddleware {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &AuthMiddleware{
		secretKey: []byte(secret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// IssueToken выпускает токен пользователя.
func (a *AuthMiddleware) IssueToken(userID int64) (string, error) {
	return a.issue(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: strconv.FormatInt(userID, 10)},
		UserID:           userID,
		Role:             RoleUser,
	})
}

// IssueAdminToken выпускает токен администратора.
func (a *AuthMiddleware) IssueAdminToken(username string) (string, error) {
	return a.issue(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: username},
		Role:             RoleAdmin,
	})
}

func (a *AuthMiddleware) issue(c Claims) (string, error) {
	now := a.now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secretKey)
}

// Parse проверяет подпись и срок действия токена.
func (a *AuthMiddleware) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware требует токен пользователя и добавляет его идентификатор в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := a.fromRequest(r)
		if !ok || claims.Role != RoleUser || claims.UserID == 0 {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional добавляет идентификатор пользователя в контекст, если передан корректный токен.
// Запросы без токена или с некорректным токеном обслуживаются как анонимные.
func (a *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := a.fromRequest(r); ok && claims.Role == RoleUser && claims.UserID != 0 {
			r = r.WithContext(context.WithValue(r.Context(), userIDKey, claims.UserID))
		}
		next.ServeHTTP(w, r)
	})
}

// AdminOnly пропускает только запросы с токеном администратора.
func (a *AuthMiddleware) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := a.fromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if claims.Role != RoleAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}

		ctx := context.WithValue(r.Context(), adminKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthMiddleware) fromRequest(r *http.Request) (*Claims, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return nil, false
	}
	claims, err := a.Parse(strings.TrimSpace(token))
	if err != nil {
		return nil, false
	}
	return claims, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// GetAdminFromContext возвращает имя администратора из контекста запроса.
func GetAdminFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(adminKey).(string)
	return name, ok
}
