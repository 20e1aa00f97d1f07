package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func gunzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()

	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer zr.Close()

	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return out
}

// echoOrderHandler отвечает полученным email из JSON-тела.
func echoOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"email":           req.Email,
		"contentEncoding": r.Header.Get("Content-Encoding"),
	})
}

func TestGzipMiddleware_Responses(t *testing.T) {
	tests := []struct {
		name           string
		acceptEncoding string
		compressBody   bool
		wantEncoding   string
	}{
		{
			name:           "plain request, plain response",
			acceptEncoding: "",
			wantEncoding:   "",
		},
		{
			name:           "plain request, gzip response",
			acceptEncoding: "gzip, deflate, br",
			wantEncoding:   "gzip",
		},
		{
			name:           "gzip request, plain response",
			acceptEncoding: "",
			compressBody:   true,
			wantEncoding:   "",
		},
		{
			name:           "gzip request, gzip response",
			acceptEncoding: "gzip",
			compressBody:   true,
			wantEncoding:   "gzip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := []byte(`{"email":"student@example.com"}`)
			if tt.compressBody {
				body = gzipBytes(t, body)
			}

			req := httptest.NewRequest(http.MethodPost, "/create-checkout-session", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.compressBody {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()

			GzipMiddleware(http.HandlerFunc(echoOrderHandler)).ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantEncoding, rec.Header().Get("Content-Encoding"))
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			raw := rec.Body.Bytes()
			if tt.wantEncoding == "gzip" {
				assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))
				raw = gunzipBytes(t, raw)
			}

			var got map[string]string
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, "student@example.com", got["email"])
			assert.Empty(t, got["contentEncoding"], "request encoding header must be dropped after decompression")
		})
	}
}

func TestGzipMiddleware_MalformedRequestBody(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodPost, "/submit-login-details", bytes.NewReader([]byte("not gzip at all")))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	GzipMiddleware(next).ServeHTTP(rec, req)

	assert.False(t, called)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "malformed gzip body", got["error"])
}

func TestGzipMiddleware_PreEncodedResponseNotCompressedTwice(t *testing.T) {
	payload := []byte("homework_checkouts_total{result=\"created\"} 1\n")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write(gzipBytes(t, payload))
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	GzipMiddleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"gzip"}, rec.Header().Values("Content-Encoding"))
	assert.Equal(t, payload, gunzipBytes(t, rec.Body.Bytes()))
}

func TestGzipMiddleware_EmptyResponseHasNoGzipStream(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	GzipMiddleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
}
