package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	const key = "sekret"

	tests := []struct {
		name   string
		apiKey string
		header map[string]string
		want   int
	}{
		{"disabled when no key configured", "", nil, http.StatusOK},
		{"missing token", key, nil, http.StatusUnauthorized},
		{"bearer token", key, map[string]string{"Authorization": "Bearer sekret"}, http.StatusOK},
		{"bearer case insensitive scheme", key, map[string]string{"Authorization": "bearer sekret"}, http.StatusOK},
		{"x-api-key header", key, map[string]string{"X-API-Key": "sekret"}, http.StatusOK},
		{"wrong token", key, map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"malformed authorization", key, map[string]string{"Authorization": "sekret"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Auth(tt.apiKey)(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/funds", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// fakeLimiter scripts the limiter's verdicts and records the keys it saw.
type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

func TestRateLimit(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		limiter := &fakeLimiter{allow: true}
		h := RateLimit(limiter, 60, time.Minute)(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/funds", nil)
		req.RemoteAddr = "203.0.113.7:5511"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if len(limiter.keys) != 1 || limiter.keys[0] != "ratelimit:api:203.0.113.7" {
			t.Fatalf("limiter keys = %v", limiter.keys)
		}
	})

	t.Run("blocked", func(t *testing.T) {
		h := RateLimit(&fakeLimiter{allow: false}, 60, time.Minute)(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/funds", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d, want 429", rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Fatal("missing Retry-After header")
		}
	})

	t.Run("fails open on limiter error", func(t *testing.T) {
		h := RateLimit(&fakeLimiter{err: errors.New("redis down")}, 60, time.Minute)(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/funds", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("forwarded-for wins over remote addr", func(t *testing.T) {
		limiter := &fakeLimiter{allow: true}
		h := RateLimit(limiter, 60, time.Minute)(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/api/funds", nil)
		req.RemoteAddr = "10.0.0.1:9000"
		req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if limiter.keys[0] != "ratelimit:api:198.51.100.4" {
			t.Fatalf("limiter key = %q", limiter.keys[0])
		}
	})
}
