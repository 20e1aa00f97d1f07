package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("path = %s, want /v1/checkout/sessions", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("line_items[0][price_data][unit_amount]"); got != "1350" {
			t.Errorf("unit_amount = %q, want 1350", got)
		}
		if got := r.PostForm.Get("metadata[orderId]"); got != "order-1" {
			t.Errorf("metadata orderId = %q, want order-1", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://pay.example/cs_test_1"}`))
	}))
	defer ts.Close()

	p := NewStripeProcessorWithURL("sk_test_123", ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s, err := p.CreateSession(ctx, SessionRequest{
		OrderID:       "order-1",
		CustomerEmail: "student@example.com",
		Description:   "Homework order: Essay x1",
		Amount:        decimal.RequireFromString("13.5"),
		Currency:      "usd",
		SuccessURL:    "http://localhost:3000/success",
		CancelURL:     "http://localhost:3000/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", s.ID)
	assert.Equal(t, "https://pay.example/cs_test_1", s.URL)
}

func TestCreateSession_ProcessorError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Amount must be at least $0.50 usd"}}`))
	}))
	defer ts.Close()

	p := NewStripeProcessorWithURL("sk_test_123", ts.URL)

	_, err := p.CreateSession(context.Background(), SessionRequest{
		OrderID:  "order-2",
		Amount:   decimal.RequireFromString("0.10"),
		Currency: "usd",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Amount must be at least")
}

func TestSessionStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want SessionStatus
	}{
		{
			name: "paid",
			body: `{"id":"cs_1","object":"checkout.session","status":"complete","payment_status":"paid"}`,
			want: StatusPaid,
		},
		{
			name: "expired",
			body: `{"id":"cs_1","object":"checkout.session","status":"expired","payment_status":"unpaid"}`,
			want: StatusExpired,
		},
		{
			name: "open",
			body: `{"id":"cs_1","object":"checkout.session","status":"open","payment_status":"unpaid"}`,
			want: StatusOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/checkout/sessions/cs_1" {
					t.Errorf("path = %s, want /v1/checkout/sessions/cs_1", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			p := NewStripeProcessorWithURL("sk_test_123", ts.URL)

			got, err := p.SessionStatus(context.Background(), "cs_1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(50), MinorUnits(decimal.RequireFromString("0.50")))
	assert.Equal(t, int64(1350), MinorUnits(decimal.RequireFromString("13.5")))
	assert.Equal(t, int64(1999), MinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(100), MinorUnits(decimal.RequireFromString("0.995")))
}
