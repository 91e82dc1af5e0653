package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1000),
		GeneralBurst:    2,
		SyncRate:        rate.Limit(1000),
		SyncBurst:       1,
		CleanupInterval: time.Hour,
	}
}

func doRateLimitedRequest(t *testing.T, handler http.Handler, userID string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/sync", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), userID))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Result().StatusCode
}

func TestRateLimiter_GeneralAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		if status := doRateLimitedRequest(t, handler, "user-1"); status != http.StatusOK {
			t.Errorf("request %d status = %d, want 200", i, status)
		}
	}
}

func TestRateLimiter_SyncRejectsOverBurst(t *testing.T) {
	cfg := testRateLimiterConfig()
	cfg.SyncRate = rate.Limit(0.001) // 補充をほぼゼロにしてバースト超過を確実にする
	rl := NewRateLimiter(cfg)
	defer rl.Stop()
	handler := rl.SyncMiddleware()(okHandler())

	if status := doRateLimitedRequest(t, handler, "user-1"); status != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", status)
	}
	if status := doRateLimitedRequest(t, handler, "user-1"); status != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", status)
	}
}

func TestRateLimiter_LimitsArePerUser(t *testing.T) {
	cfg := testRateLimiterConfig()
	cfg.SyncRate = rate.Limit(0.001)
	rl := NewRateLimiter(cfg)
	defer rl.Stop()
	handler := rl.SyncMiddleware()(okHandler())

	doRateLimitedRequest(t, handler, "user-1")
	if status := doRateLimitedRequest(t, handler, "user-2"); status != http.StatusOK {
		t.Errorf("another user's request status = %d, want 200", status)
	}
	if rl.SyncLimiterCount() != 2 {
		t.Errorf("expected 2 sync limiter entries, got %d", rl.SyncLimiterCount())
	}
}

func TestRateLimiter_UnauthenticatedRequestRejected(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

func TestRateLimiter_RetryAfterHeader(t *testing.T) {
	cfg := testRateLimiterConfig()
	cfg.SyncRate = rate.Limit(10.0 / 60.0)
	rl := NewRateLimiter(cfg)
	defer rl.Stop()
	handler := rl.SyncMiddleware()(okHandler())

	doRateLimitedRequest(t, handler, "user-1")

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/sync", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Result().StatusCode)
	}
	if got := w.Header().Get("Retry-After"); got == "" {
		t.Error("429 response must carry a Retry-After header")
	}
}
