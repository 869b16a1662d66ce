package hmacauth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func testVerifier() *Verifier {
	v := NewVerifier("secret", time.Minute)
	v.Now = func() time.Time { return fixedNow }
	return v
}

func TestMiddlewareAllowsValidSignature(t *testing.T) {
	body := `{"itemId":"gig-42"}`
	v := testVerifier()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases", strings.NewReader(body))
	v.SignRequest(req, []byte(body))
	rec := httptest.NewRecorder()

	var seen string
	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(raw)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, seen)
}

func TestMiddlewareRejects(t *testing.T) {
	body := `{"itemId":"gig-42"}`
	ts := strconv.FormatInt(fixedNow.Unix(), 10)
	good := Sign("secret", http.MethodPost, "/api/v1/purchases", ts, []byte(body))

	tests := []struct {
		name    string
		secret  string
		path    string
		sig     string
		ts      string
		wantErr error
	}{
		{"bad signature", "secret", "/api/v1/purchases", "deadbeef", ts, ErrInvalidSignature},
		{"signature for another path", "secret", "/api/v1/items", good, ts, ErrInvalidSignature},
		{"missing signature", "secret", "/api/v1/purchases", "", ts, ErrMissingSignature},
		{"missing timestamp", "secret", "/api/v1/purchases", good, "", ErrMissingTimestamp},
		{"garbage timestamp", "secret", "/api/v1/purchases", good, "yesterday", ErrMissingTimestamp},
		{"stale timestamp", "secret", "/api/v1/purchases", good, strconv.FormatInt(fixedNow.Add(-2*time.Minute).Unix(), 10), ErrStaleTimestamp},
		{"future timestamp", "secret", "/api/v1/purchases", good, strconv.FormatInt(fixedNow.Add(2*time.Minute).Unix(), 10), ErrStaleTimestamp},
		{"no secret configured", "", "/api/v1/purchases", good, ts, ErrNotConfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testVerifier()
			v.Secret = tt.secret

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(body))
			if tt.sig != "" {
				req.Header.Set(DefaultSignatureHeader, tt.sig)
			}
			if tt.ts != "" {
				req.Header.Set(DefaultTimestampHeader, tt.ts)
			}
			assert.ErrorIs(t, v.Verify(req), tt.wantErr)

			rec := httptest.NewRecorder()
			v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			})).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestCustomHeaders(t *testing.T) {
	v := testVerifier()
	v.SignatureHeader = "X-Partner-Signature"
	v.TimestampHeader = "X-Partner-Timestamp"

	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader("{}"))
	v.SignRequest(req, []byte("{}"))
	assert.NotEmpty(t, req.Header.Get("X-Partner-Signature"))
	assert.Empty(t, req.Header.Get(DefaultSignatureHeader))
	assert.NoError(t, v.Verify(req))
}

func TestBodyTooLarge(t *testing.T) {
	v := testVerifier()
	body := strings.Repeat("a", maxBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(body))
	v.SignRequest(req, []byte(body))

	rec := httptest.NewRecorder()
	v.Middleware(http.NotFoundHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
