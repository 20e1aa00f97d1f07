package handler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/homework-orders/internal/metrics"
	"github.com/mmeshcher/homework-orders/internal/middleware"
	"github.com/mmeshcher/homework-orders/internal/model"
	"github.com/mmeshcher/homework-orders/internal/pricing"
	"github.com/mmeshcher/homework-orders/internal/repository"
	"github.com/mmeshcher/homework-orders/internal/service"
)

type stubService struct {
	pingErr error

	registerUser *model.User
	registerErr  error
	gotReg       service.Registration

	authUser *model.User
	authErr  error

	profile    *service.Profile
	ordersResp []model.Order

	checkoutRes *service.CheckoutResult
	checkoutErr error
	gotCheckout service.CheckoutRequest

	submitID  string
	submitErr error

	discountQuote *service.DiscountQuote
	discountErr   error
	gotCheck      service.DiscountCheck

	adminErr error

	statusErr  error
	gotStatus  string
	gotOrderID string

	credentials *service.Credentials
	gotAdmin    string
	stats       *model.Stats
}

func (s *stubService) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubService) RegisterUser(ctx context.Context, reg service.Registration) (*model.User, error) {
	s.gotReg = reg
	return s.registerUser, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) GetProfile(ctx context.Context, userID int64) (*service.Profile, error) {
	return s.profile, nil
}

func (s *stubService) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.ordersResp, nil
}

func (s *stubService) CreateCheckoutSession(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	s.gotCheckout = req
	return s.checkoutRes, s.checkoutErr
}

func (s *stubService) SubmitLoginDetails(ctx context.Context, d service.LoginDetails) (string, error) {
	return s.submitID, s.submitErr
}

func (s *stubService) ValidateDiscount(ctx context.Context, c service.DiscountCheck) (*service.DiscountQuote, error) {
	s.gotCheck = c
	return s.discountQuote, s.discountErr
}

func (s *stubService) AdminLogin(username, password string) error { return s.adminErr }

func (s *stubService) ListOrders(ctx context.Context) ([]model.Order, error) {
	return s.ordersResp, nil
}

func (s *stubService) ListUsers(ctx context.Context) ([]model.User, error) { return nil, nil }

func (s *stubService) ListDiscounts(ctx context.Context) ([]model.Discount, error) { return nil, nil }

func (s *stubService) CreateDiscount(ctx context.Context, d model.Discount) (*model.Discount, error) {
	return &d, nil
}

func (s *stubService) UpdateOrderStatus(ctx context.Context, id, status string) error {
	s.gotOrderID = id
	s.gotStatus = status
	return s.statusErr
}

func (s *stubService) OrderCredentials(ctx context.Context, id, admin string) (*service.Credentials, error) {
	s.gotOrderID = id
	s.gotAdmin = admin
	return s.credentials, nil
}

func (s *stubService) Stats(ctx context.Context) (*model.Stats, error) { return s.stats, nil }

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret", time.Hour)

	return NewHandler(svc, logger, auth, Options{
		Metrics:        metrics.New(),
		AllowedOrigins: []string{"http://localhost:3000"},
	})
}

func do(t *testing.T, h *Handler, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	res := rec.Result()
	t.Cleanup(func() { res.Body.Close() })

	var decoded map[string]any
	if res.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return res, decoded
}

func TestIndex(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	res, _ := do(t, h, http.MethodGet, "/", "", nil)
	body, _ := io.ReadAll(res.Body)

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if string(body) != "Homework service is running" {
		t.Fatalf("body = %q", body)
	}
}

func TestReady(t *testing.T) {
	h := newTestHandler(t, &stubService{pingErr: errors.New("connection refused")})

	res, _ := do(t, h, http.MethodGet, "/readyz", "", nil)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerUser: &model.User{ID: 42, Email: "a@example.com", ReferralCode: "ABCD1234", Credits: decimal.NewFromInt(1)},
	}
	h := newTestHandler(t, svc)

	res, body := do(t, h, http.MethodPost, "/api/auth/register", "", registerRequest{
		Email: "a@example.com", Password: "secret1", Name: "A", ReferralCode: "REF",
	})

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if body["success"] != true || body["token"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
	user := body["user"].(map[string]any)
	if user["credits"] != 1.0 || user["referralCode"] != "ABCD1234" {
		t.Fatalf("unexpected user: %v", user)
	}
	if svc.gotReg.ReferralCode != "REF" {
		t.Fatalf("referral code not passed: %+v", svc.gotReg)
	}
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "duplicate", err: repository.ErrUserExists, want: http.StatusConflict},
		{name: "validation", err: &service.ValidationError{Msg: "name is required"}, want: http.StatusBadRequest},
		{name: "internal", err: errors.New("db down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{registerErr: tt.err})

			res, body := do(t, h, http.MethodPost, "/api/auth/register", "", registerRequest{Email: "a@example.com"})
			if res.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want)
			}
			if body["error"] == "" {
				t.Fatalf("error message missing")
			}
			if tt.name == "internal" && body["error"] == "db down" {
				t.Fatalf("internal error leaked to client")
			}
		})
	}
}

func TestLogin_UnauthorizedOnInvalidCredentials(t *testing.T) {
	h := newTestHandler(t, &stubService{authErr: service.ErrInvalidCredentials})

	res, _ := do(t, h, http.MethodPost, "/api/auth/login", "", loginRequest{Email: "a@example.com", Password: "x"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestLogin_BadRequest(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestProfile_RequiresToken(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	res, _ := do(t, h, http.MethodGet, "/api/auth/profile", "", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestProfile_WithToken(t *testing.T) {
	svc := &stubService{
		profile: &service.Profile{
			User: &model.User{ID: 5, Email: "a@example.com"},
			Referrals: []model.Referral{
				{ID: 2, ReferrerCode: "ABCD1234", ReferredEmail: "bob@example.com", Reward: decimal.NewFromInt(2)},
				{ID: 1, ReferrerCode: "ABCD1234", ReferredEmail: "carol@example.com", Reward: decimal.NewFromInt(2)},
			},
		},
	}
	h := newTestHandler(t, svc)
	token, _ := h.authMiddleware.IssueToken(5)

	res, body := do(t, h, http.MethodGet, "/api/auth/profile", token, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	user := body["user"].(map[string]any)
	if user["referrals"] != 2.0 {
		t.Fatalf("unexpected body: %v", body)
	}
	history, ok := user["referralHistory"].([]any)
	if !ok || len(history) != 2 {
		t.Fatalf("referral history missing: %v", user)
	}
	first := history[0].(map[string]any)
	if first["email"] != "b***@example.com" || first["reward"] != 2.0 {
		t.Fatalf("unexpected referral entry: %v", first)
	}
}

func TestCreateCheckoutSession_UsesTokenUser(t *testing.T) {
	svc := &stubService{
		checkoutRes: &service.CheckoutResult{
			SessionID:      "cs_1",
			URL:            "https://pay.example.com/cs_1",
			OrderID:        "order-1",
			RawTotal:       decimal.NewFromInt(20),
			CreditsUsed:    decimal.NewFromInt(5),
			DiscountAmount: decimal.RequireFromString("1.5"),
			Total:          decimal.RequireFromString("13.5"),
		},
	}
	h := newTestHandler(t, svc)
	token, _ := h.authMiddleware.IssueToken(9)

	res, body := do(t, h, http.MethodPost, "/create-checkout-session", token, map[string]any{
		"email":            "a@example.com",
		"items":            []map[string]any{{"name": "Algebra", "price": 10, "quantity": 2}},
		"homeworkLogin":    "student",
		"homeworkPassword": "pw",
		"discountCode":     "SAVE10",
		"userId":           777,
	})

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if body["success"] != true || body["id"] != "cs_1" || body["total"] != 13.5 {
		t.Fatalf("unexpected body: %v", body)
	}
	if svc.gotCheckout.UserID == nil || *svc.gotCheckout.UserID != 9 {
		t.Fatalf("user id must come from token, got %v", svc.gotCheckout.UserID)
	}
	if len(svc.gotCheckout.Items) != 1 || !svc.gotCheckout.Items[0].Price.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("items not decoded: %+v", svc.gotCheckout.Items)
	}
}

func TestCreateCheckoutSession_AnonymousAndProcessorError(t *testing.T) {
	svc := &stubService{checkoutErr: &service.PaymentError{Err: errors.New("Invalid API Key provided")}}
	h := newTestHandler(t, svc)

	res, body := do(t, h, http.MethodPost, "/create-checkout-session", "", map[string]any{"email": "a@example.com"})

	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusInternalServerError)
	}
	if body["error"] != "Invalid API Key provided" {
		t.Fatalf("processor message not passed through: %v", body)
	}
	if svc.gotCheckout.UserID != nil {
		t.Fatalf("anonymous checkout must not carry a user id")
	}
}

func TestValidateDiscount(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "ok", want: http.StatusOK},
		{name: "unknown", err: pricing.ErrDiscountNotFound, want: http.StatusNotFound},
		{name: "expired", err: pricing.ErrDiscountExpired, want: http.StatusBadRequest},
		{name: "limit", err: pricing.ErrDiscountLimitReached, want: http.StatusBadRequest},
		{name: "minimum", err: pricing.ErrMinimumPurchase, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				discountErr: tt.err,
				discountQuote: &service.DiscountQuote{
					Discount: &model.Discount{Code: "SAVE10", Kind: model.DiscountPercentage, Value: decimal.NewFromInt(10)},
					Quote:    pricing.Quote{DiscountAmount: decimal.NewFromInt(2), Total: decimal.NewFromInt(18)},
				},
			}
			h := newTestHandler(t, svc)

			res, body := do(t, h, http.MethodPost, "/api/discount/validate", "", map[string]any{"code": "save10", "total": 20})
			if res.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want)
			}
			if tt.want == http.StatusOK {
				if body["discountAmount"] != 2.0 || body["total"] != 18.0 {
					t.Fatalf("unexpected body: %v", body)
				}
				if !svc.gotCheck.Total.Equal(decimal.NewFromInt(20)) {
					t.Fatalf("total not decoded: %v", svc.gotCheck.Total)
				}
			}
		})
	}
}

func TestSubmitLoginDetails(t *testing.T) {
	h := newTestHandler(t, &stubService{submitID: "order-7"})

	res, body := do(t, h, http.MethodPost, "/submit-login-details", "", loginDetailsRequest{
		Email: "a@example.com", HomeworkLogin: "student", HomeworkPassword: "pw",
	})
	if res.StatusCode != http.StatusOK || body["orderId"] != "order-7" {
		t.Fatalf("status = %d, body = %v", res.StatusCode, body)
	}
}

func TestAdminOrderCredentials(t *testing.T) {
	svc := &stubService{credentials: &service.Credentials{
		OrderID: "order-1", Email: "a@example.com", Login: "student", Password: "hunter2",
	}}
	h := newTestHandler(t, svc)
	token, _ := h.authMiddleware.IssueAdminToken("ops")

	res, body := do(t, h, http.MethodGet, "/api/admin/orders/order-1/credentials", token, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", res.StatusCode, body)
	}
	if res.Header.Get("Cache-Control") != "no-store" {
		t.Fatalf("Cache-Control = %q", res.Header.Get("Cache-Control"))
	}
	if svc.gotOrderID != "order-1" || svc.gotAdmin != "ops" {
		t.Fatalf("order = %q, admin = %q", svc.gotOrderID, svc.gotAdmin)
	}
	creds := body["credentials"].(map[string]any)
	if creds["password"] != "hunter2" {
		t.Fatalf("unexpected credentials: %v", creds)
	}
}

func TestAdminRoutes_RequireAdminToken(t *testing.T) {
	h := newTestHandler(t, &stubService{stats: &model.Stats{Revenue: decimal.NewFromInt(100)}})
	userToken, _ := h.authMiddleware.IssueToken(1)

	res, _ := do(t, h, http.MethodGet, "/api/admin/stats", "", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}

	res, _ = do(t, h, http.MethodGet, "/api/admin/stats", userToken, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("user token: status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}

	res, body := do(t, h, http.MethodPost, "/api/admin/login", "", adminLoginRequest{Username: "admin", Password: "pw"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin login: status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	adminToken := body["token"].(string)

	res, body = do(t, h, http.MethodGet, "/api/admin/stats", adminToken, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin token: status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if body["stats"].(map[string]any)["revenue"] != 100.0 {
		t.Fatalf("unexpected stats: %v", body)
	}
}

func TestAdminLogin_Rejected(t *testing.T) {
	h := newTestHandler(t, &stubService{adminErr: service.ErrInvalidCredentials})

	res, _ := do(t, h, http.MethodPost, "/api/admin/login", "", adminLoginRequest{Username: "admin", Password: "bad"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	token, _ := h.authMiddleware.IssueAdminToken("admin")

	res, _ := do(t, h, http.MethodPatch, "/api/admin/orders/order-1/status", token, updateStatusRequest{Status: "completed"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.gotOrderID != "order-1" || svc.gotStatus != "completed" {
		t.Fatalf("unexpected call: %q %q", svc.gotOrderID, svc.gotStatus)
	}

	svc.statusErr = repository.ErrOrderNotFound
	res, _ = do(t, h, http.MethodPatch, "/api/admin/orders/missing/status", token, updateStatusRequest{Status: "completed"})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestAdminListOrders_HidesSealedPassword(t *testing.T) {
	svc := &stubService{
		ordersResp: []model.Order{{ID: "o1", HomeworkLogin: "student", SealedPassword: "c2VhbGVk", Status: model.OrderStatusPending}},
	}
	h := newTestHandler(t, svc)
	token, _ := h.authMiddleware.IssueAdminToken("admin")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("c2VhbGVk")) {
		t.Fatalf("sealed password leaked: %s", rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"homeworkLogin":"student"`)) {
		t.Fatalf("homework login missing: %s", rec.Body.String())
	}
}

func TestNotFound(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	res, body := do(t, h, http.MethodGet, "/nope", "", nil)
	if res.StatusCode != http.StatusNotFound || body["error"] == "" {
		t.Fatalf("status = %d, body = %v", res.StatusCode, body)
	}
}

func gzipBody(t *testing.T, data []byte) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func TestMetrics_CompressedOnce(t *testing.T) {
	svc := &stubService{checkoutRes: &service.CheckoutResult{SessionID: "cs_1"}}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	// Один запрос, чтобы в реестре появилась гистограмма запросов.
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Values("Content-Encoding"); len(got) != 1 || got[0] != "gzip" {
		t.Fatalf("Content-Encoding = %v", got)
	}

	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("new gzip reader: %v", err)
	}
	defer zr.Close()
	text, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}

	if !strings.Contains(string(text), "# HELP homework_http_request_duration_seconds") {
		t.Fatalf("exposition text expected after a single gunzip, got %q", text[:min(len(text), 32)])
	}
}

func TestCreateCheckoutSession_GzipBody(t *testing.T) {
	svc := &stubService{checkoutRes: &service.CheckoutResult{SessionID: "cs_gz", OrderID: "order-gz"}}
	h := newTestHandler(t, svc)

	raw := []byte(`{"email":"a@example.com","items":[{"name":"Algebra","price":10,"quantity":2}],"homeworkLogin":"student","homeworkPassword":"pw"}`)
	req := httptest.NewRequest(http.MethodPost, "/create-checkout-session", gzipBody(t, raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if svc.gotCheckout.Email != "a@example.com" || svc.gotCheckout.HomeworkLogin != "student" {
		t.Fatalf("compressed body not decoded: %+v", svc.gotCheckout)
	}
}

func TestCreateCheckoutSession_GzipBodyOverLimit(t *testing.T) {
	svc := &stubService{checkoutRes: &service.CheckoutResult{SessionID: "cs_big"}}
	h := newTestHandler(t, svc)

	// Сжатое тело маленькое, но после распаковки превышает лимит.
	raw := []byte(`{"email":"a@example.com","notes":"` + strings.Repeat("a", 2*maxBodyBytes) + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/create-checkout-session", gzipBody(t, raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if svc.gotCheckout.Email != "" {
		t.Fatalf("service must not be called for an oversized body")
	}
}

func TestCreateCheckoutSession_MalformedGzip(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/create-checkout-session", strings.NewReader(`{"email":"a@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != "malformed gzip body" {
		t.Fatalf("error = %q", body["error"])
	}
}
