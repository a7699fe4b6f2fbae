package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"telegram_loyalty_bot/internal/config"
	"telegram_loyalty_bot/internal/testutil"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

type recordingHandler struct {
	mu      sync.Mutex
	updates []*tgmodels.Update
}

func (h *recordingHandler) HandleUpdate(_ context.Context, _ *tgbot.Bot, update *tgmodels.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, update)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.updates)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return stderrors.New("connection refused") }

func newTestServer(t *testing.T, secret string, storage Pinger) (*Server, *recordingHandler) {
	t.Helper()

	cfg := &config.Config{
		Telegram: config.TelegramConfig{SecretToken: secret},
		Server: config.ServerConfig{
			Port:         "0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			IdleTimeout:  time.Second,
			RateLimit:    1000,
		},
	}

	log, _ := testutil.SetupTestLogger()
	handler := &recordingHandler{}
	srv := New(cfg, log, handler, nil, storage)
	t.Cleanup(func() { srv.rateLimiter.Close() })

	return srv, handler
}

func webhookRequest(body, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(secretTokenHeader, secret)
	}
	return req
}

const messageUpdate = `{"update_id": 42, "message": {"message_id": 1, "date": 1700000000, "text": "/start",
	"chat": {"id": 1001, "type": "private"}, "from": {"id": 1001, "is_bot": false, "first_name": "Гость"}}}`

func TestWebhook(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		secret     string
		wantStatus int
		dispatched bool
	}{
		{"valid update", http.MethodPost, messageUpdate, "s3cret", http.StatusOK, true},
		{"missing secret", http.MethodPost, messageUpdate, "", http.StatusUnauthorized, false},
		{"wrong secret", http.MethodPost, messageUpdate, "guess", http.StatusUnauthorized, false},
		{"wrong method", http.MethodGet, "", "s3cret", http.StatusMethodNotAllowed, false},
		{"bad json", http.MethodPost, `{"update_id":`, "s3cret", http.StatusBadRequest, false},
		{"zero update id", http.MethodPost, `{"update_id": 0, "message": {"chat": {"id": 1}}}`, "s3cret", http.StatusBadRequest, false},
		{"unsupported update", http.MethodPost, `{"update_id": 7, "poll_answer": {"poll_id": "p1"}}`, "s3cret", http.StatusOK, false},
		{"long callback data", http.MethodPost,
			`{"update_id": 8, "callback_query": {"id": "1", "from": {"id": 5}, "data": "` + strings.Repeat("x", 65) + `"}}`,
			"s3cret", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, handler := newTestServer(t, "s3cret", nil)

			req := webhookRequest(tt.body, tt.secret)
			req.Method = tt.method
			rec := httptest.NewRecorder()

			srv.Handler().ServeHTTP(rec, req)

			testutil.AssertEqual(t, rec.Code, tt.wantStatus)
			testutil.AssertEqual(t, handler.count() == 1, tt.dispatched)
		})
	}
}

func TestWebhook_NoSecretConfigured(t *testing.T) {
	srv, handler := newTestServer(t, "", nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, webhookRequest(messageUpdate, ""))

	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	testutil.AssertEqual(t, handler.count(), 1)
	testutil.AssertEqual(t, handler.updates[0].Message.Text, "/start")
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	srv, handler := newTestServer(t, "", nil)
	srv.validator = NewRequestValidator(64)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, webhookRequest(messageUpdate, ""))

	testutil.AssertEqual(t, rec.Code, http.StatusRequestEntityTooLarge)
	testutil.AssertEqual(t, handler.count(), 0)
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy storage", func(t *testing.T) {
		srv, _ := newTestServer(t, "", testutil.SetupTestDB(t))

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		testutil.AssertEqual(t, rec.Code, http.StatusOK)

		var resp HealthResponse
		testutil.AssertNoError(t, json.NewDecoder(rec.Body).Decode(&resp), "decode health response")
		testutil.AssertEqual(t, resp.Checks["database"], "healthy")
		testutil.AssertTrue(t, resp.Status == "healthy" || resp.Status == "warning", "unexpected status "+resp.Status)
	})

	t.Run("storage down", func(t *testing.T) {
		srv, _ := newTestServer(t, "", failingPinger{})

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		testutil.AssertEqual(t, rec.Code, http.StatusServiceUnavailable)

		var resp HealthResponse
		testutil.AssertNoError(t, json.NewDecoder(rec.Body).Decode(&resp), "decode health response")
		testutil.AssertEqual(t, resp.Status, "unhealthy")
		testutil.AssertTrue(t, strings.Contains(resp.Checks["database"], "connection refused"), "database check should carry the error")
	})
}

type fakeJobs map[string]error

func (f fakeJobs) LastRun(name string) (int, error, bool) {
	err, ok := f[name]
	if !ok {
		return 0, nil, false
	}
	return 1, err, true
}

func TestHealthHandler_Jobs(t *testing.T) {
	srv, _ := newTestServer(t, "", nil)
	srv.WatchJobs(fakeJobs{"sheets_sync": stderrors.New("quota exceeded")}, "sheets_sync", "missing")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	testutil.AssertEqual(t, rec.Code, http.StatusOK)

	var resp HealthResponse
	testutil.AssertNoError(t, json.NewDecoder(rec.Body).Decode(&resp), "decode health response")
	testutil.AssertEqual(t, resp.Status, "warning")
	testutil.AssertTrue(t, strings.Contains(resp.Checks["job:sheets_sync"], "quota exceeded"), "job error should be reported")
	testutil.AssertTrue(t, strings.Contains(resp.Checks["job:missing"], "not registered"), "unknown job should be reported")
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, "", nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		testutil.AssertEqual(t, rec.Header().Get(header), want)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "", nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	testutil.AssertTrue(t, strings.Contains(rec.Body.String(), "go_goroutines"), "metrics output should include runtime collectors")
}
