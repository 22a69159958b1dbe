package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RequestsPerMinute: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("write")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/transfers", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
	if wait, err := strconv.Atoi(res.Header().Get("Retry-After")); err != nil || wait < 59 || wait > 61 {
		t.Fatalf("Retry-After = %q, want about a minute", res.Header().Get("Retry-After"))
	}
	if !strings.Contains(res.Body.String(), `"reason":"rate_limited"`) {
		t.Fatalf("unexpected body %q", res.Body.String())
	}
}

func TestRateLimiterIgnoresUnconfiguredGroup(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"write": {RequestsPerMinute: 1, Burst: 1}}, nil)
	handler := limiter.Middleware("read")(okHandler())
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/token", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d throttled without a configured limit", i)
		}
	}
	if len(limiter.visitors) != 0 {
		t.Fatalf("unconfigured group should not track visitors")
	}
}

func TestRateLimiterSeparatesGroups(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"read":  {RequestsPerMinute: 1, Burst: 1},
		"write": {RequestsPerMinute: 1, Burst: 1},
	}, nil)
	read := limiter.Middleware("read")(okHandler())
	write := limiter.Middleware("write")(okHandler())

	for name, handler := range map[string]http.Handler{"read": read, "write": write} {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/token", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("expected first %s request to succeed, got %d", name, res.Code)
		}
	}
}

func TestRateLimiterKeysByCaller(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RequestsPerMinute: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("write")(okHandler())

	for _, b := range []byte{1, 2} {
		var caller [20]byte
		caller[0] = b
		req := httptest.NewRequest(http.MethodPost, "/v1/stakes", nil)
		req = req.WithContext(context.WithValue(req.Context(), ContextKeyCaller, caller))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected caller %d to have its own bucket, got %d", b, res.Code)
		}
	}
}

func TestRateLimiterSweepsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"write": {RequestsPerMinute: 1, Burst: 1},
	}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("write")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/transfers", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected one tracked visitor, got %d", len(limiter.visitors))
	}

	now = now.Add(10 * time.Minute)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected refreshed bucket after idle period, got %d", res.Code)
	}
	if len(limiter.visitors) != 1 {
		t.Fatalf("expected stale visitor replaced, got %d", len(limiter.visitors))
	}
}

func TestClientIDPrefersForwardedAddress(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/token", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientID(req); got != "203.0.113.7" {
		t.Fatalf("unexpected client id %q", got)
	}
}
