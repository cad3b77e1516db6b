package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/auth/apikey"
)

type fakeValidator map[string]*apikey.KeyInfo

func (f fakeValidator) Validate(_ context.Context, raw string) (*apikey.KeyInfo, error) {
	switch raw {
	case "expired":
		return nil, apikey.ErrExpiredKey
	case "broken":
		return nil, errors.New("db down")
	}
	info, ok := f[raw]
	if !ok {
		return nil, apikey.ErrInvalidKey
	}
	return info, nil
}

type countingLimiter struct {
	allowed int
}

func (c *countingLimiter) Allow(string, int) bool {
	if c.allowed == 0 {
		return false
	}
	c.allowed--
	return true
}

func ok(w http.ResponseWriter, r *http.Request) {
	if info := GetKeyInfo(r.Context()); info != nil {
		w.Header().Set("X-Key-Name", info.Name)
	}
	w.WriteHeader(http.StatusOK)
}

func TestAuth(t *testing.T) {
	h := Auth(fakeValidator{"good": {ID: "1", Name: "dash"}})(http.HandlerFunc(ok))
	cases := []struct {
		name  string
		setup func(r *http.Request)
		path  string
		want  int
	}{
		{"missing", func(*http.Request) {}, "/api/v1/search", http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, "/api/v1/search", http.StatusOK},
		{"header", func(r *http.Request) { r.Header.Set("X-API-Key", "good") }, "/api/v1/search", http.StatusOK},
		{"query", func(*http.Request) {}, "/api/v1/search?api_key=good", http.StatusOK},
		{"invalid", func(r *http.Request) { r.Header.Set("X-API-Key", "bad") }, "/api/v1/search", http.StatusUnauthorized},
		{"expired", func(r *http.Request) { r.Header.Set("X-API-Key", "expired") }, "/api/v1/search", http.StatusUnauthorized},
		{"backend", func(r *http.Request) { r.Header.Set("X-API-Key", "broken") }, "/api/v1/search", http.StatusInternalServerError},
		{"health", func(*http.Request) {}, "/health/ready", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusOK && tc.path != "/health/ready" {
				assert.Equal(t, "dash", rec.Header().Get("X-Key-Name"))
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	lim := &countingLimiter{allowed: 1}
	h := Auth(fakeValidator{"good": {ID: "1", RateLimit: 1}})(RateLimit(lim, 30)(http.HandlerFunc(ok)))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
		req.Header.Set("X-API-Key", "good")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusOK, do().Code)
	rec := do()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestCORS(t *testing.T) {
	h := CORS(DefaultCORSConfig([]string{"https://app.example"}))(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
