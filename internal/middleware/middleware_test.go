package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"telegram_loyalty_bot/internal/testutil"
	"telegram_loyalty_bot/pkg/metrics"
)

func TestTelegramRateLimiter(t *testing.T) {
	log, _ := testutil.SetupTestLogger()
	// 60 запросов в минуту на пользователя, 10 в секунду глобально
	limiter := NewTelegramRateLimiter(60, 10, 5, log)
	defer limiter.Close()

	chatID := int64(12345)
	for i := 0; i < 3; i++ {
		testutil.AssertTrue(t, limiter.AllowUser(chatID), "Request should be allowed within limits")
	}
}

func TestTelegramRateLimiter_UserLimit(t *testing.T) {
	log, logs := testutil.SetupTestLogger()
	limiter := NewTelegramRateLimiter(1, 10, 5, log)
	defer limiter.Close()

	chatID := int64(12345)
	before := promtest.ToFloat64(metrics.RateLimited.WithLabelValues("user"))

	testutil.AssertTrue(t, limiter.AllowUser(chatID), "First request should be allowed")
	testutil.AssertFalse(t, limiter.AllowUser(chatID), "Second request should be blocked by user limit")
	testutil.AssertTrue(t, limiter.AllowUser(54321), "Other users keep their own budget")

	if got := promtest.ToFloat64(metrics.RateLimited.WithLabelValues("user")) - before; got != 1 {
		t.Errorf("rate limited metric delta = %v, want 1", got)
	}
	if logs.FilterMessage("User rate limit exceeded").Len() != 1 {
		t.Error("expected warning for user limit")
	}
}

func TestTelegramRateLimiter_GlobalLimit(t *testing.T) {
	limiter := NewTelegramRateLimiter(10, 2, 5, nil)
	defer limiter.Close()

	users := []int64{12345, 67890, 11111}
	for i := 0; i < 2; i++ {
		testutil.AssertTrue(t, limiter.AllowUser(users[i]), "Request within global limit should be allowed")
	}
	testutil.AssertFalse(t, limiter.AllowUser(users[2]), "Request over global limit should be denied")
}

func TestTelegramRateLimiter_AIQuestions(t *testing.T) {
	limiter := NewTelegramRateLimiter(60, 10, 2, nil)
	defer limiter.Close()

	testutil.AssertTrue(t, limiter.AllowAIQuestion(1), "first question allowed")
	testutil.AssertTrue(t, limiter.AllowAIQuestion(1), "second question allowed")
	testutil.AssertFalse(t, limiter.AllowAIQuestion(1), "third question within an hour denied")
}

func TestTelegramRateLimiter_ZeroAILimitIsUnlimited(t *testing.T) {
	limiter := NewTelegramRateLimiter(60, 10, 0, nil)
	defer limiter.Close()

	for i := 0; i < 50; i++ {
		testutil.AssertTrue(t, limiter.AllowAIQuestion(1), "zero limit must not restrict questions")
	}
	testutil.AssertEqual(t, limiter.aiLimiter.Size(), 0)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(5, time.Second, nil)
	defer rl.Close()

	rl.Allow("a")
	rl.Allow("b")
	testutil.AssertEqual(t, rl.Size(), 2)

	rl.cleanup(time.Now().Add(rl.idleTimeout + time.Second))
	testutil.AssertEqual(t, rl.Size(), 0)
}

func TestHTTPRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, nil)
	defer rl.Close()

	handler := HTTPRateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	testutil.AssertEqual(t, rec.Code, http.StatusOK)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	testutil.AssertEqual(t, rec.Code, http.StatusTooManyRequests)
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"cloudflare", map[string]string{"CF-Connecting-IP": "1.1.1.1"}, "9.9.9.9:1", "1.1.1.1"},
		{"forwarded list", map[string]string{"X-Forwarded-For": "2.2.2.2, 3.3.3.3"}, "9.9.9.9:1", "2.2.2.2"},
		{"real ip", map[string]string{"X-Real-IP": "4.4.4.4"}, "9.9.9.9:1", "4.4.4.4"},
		{"remote addr", nil, "5.5.5.5:4321", "5.5.5.5"},
		{"ipv6 remote", nil, "[::1]:80", "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			testutil.AssertEqual(t, RealIP(req), tt.want)
		})
	}
}

func TestPrometheusMiddleware_NormalizesEndpoint(t *testing.T) {
	handler := PrometheusMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "other", "404")
	before := promtest.ToFloat64(counter)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/path/123", nil))

	if got := promtest.ToFloat64(counter) - before; got != 1 {
		t.Errorf("metric delta = %v, want 1", got)
	}
}
