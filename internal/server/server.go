package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"telegram_loyalty_bot/internal/config"
	"telegram_loyalty_bot/internal/middleware"
	"telegram_loyalty_bot/pkg/logger"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version версия сборки, отдается в health check
var Version = "dev"

// UpdateHandler обрабатывает обновления Telegram
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, b *tgbot.Bot, update *tgmodels.Update)
}

// Server представляет HTTP сервер с middleware
type Server struct {
	httpServer     *http.Server
	security       *SecurityConfig
	logger         *logger.Logger
	rateLimiter    *middleware.RateLimiter
	securityLogger *SecurityLogger
	healthChecker  *HealthChecker
	validator      *RequestValidator
	handler        UpdateHandler
	telegramBot    *tgbot.Bot
}

// New создает новый HTTP сервер
func New(cfg *config.Config, log *logger.Logger, handler UpdateHandler, telegramBot *tgbot.Bot, storage Pinger) *Server {
	security := LoadSecurityConfig(cfg)
	log = log.Named("http")

	server := &Server{
		security:       security,
		logger:         log,
		rateLimiter:    middleware.NewRateLimiter(security.HTTPRequestsPerMinute, time.Minute, log),
		securityLogger: NewSecurityLogger(log),
		healthChecker:  NewHealthChecker(storage, Version),
		validator:      NewRequestValidator(security.MaxRequestSize),
		handler:        handler,
		telegramBot:    telegramBot,
	}

	server.httpServer = &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        server.setupRoutes(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: security.MaxHeaderSize,
	}

	return server
}

// WatchJobs включает состояние фоновых задач в /health
func (s *Server) WatchJobs(jobs JobReporter, names ...string) {
	s.healthChecker.WatchJobs(jobs, names...)
}

// Handler возвращает корневой обработчик со всеми middleware
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes настраивает маршруты с middleware
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthChecker.HealthHandler)
	mux.Handle("/webhook", s.webhookAuthMiddleware(http.HandlerFunc(s.handleWebhook)))
	mux.Handle("/metrics", promhttp.Handler())

	return s.applyMiddleware(mux)
}

// applyMiddleware применяет middleware, последний в списке выполняется первым
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	h := handler

	h = middleware.PrometheusMiddleware(h)
	h = middleware.HTTPRateLimitMiddleware(s.rateLimiter)(h)
	h = s.loggingMiddleware(h)
	h = s.securityAuditMiddleware(h)
	h = s.securityHeadersMiddleware(h)

	return h
}

// handleWebhook обрабатывает Telegram webhook
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	update, err := s.validator.ValidateWebhookRequest(w, r)
	if err != nil {
		if stderrors.Is(err, ErrUnsupportedUpdate) {
			s.logger.Debug("Skipping unsupported update", logger.Int64("update_id", update.ID))
			w.WriteHeader(http.StatusOK)
			return
		}

		var vErr *ValidationError
		if stderrors.As(err, &vErr) {
			s.securityLogger.LogValidationError(r, vErr.Field, vErr.Message)
			http.Error(w, http.StatusText(vErr.Status), vErr.Status)
			return
		}

		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.security.RequestTimeout)
	defer cancel()

	s.handler.HandleUpdate(ctx, s.telegramBot, update)

	s.securityLogger.LogTelegramUpdate(update, time.Since(start))
	w.WriteHeader(http.StatusOK)
}

// Start запускает сервер и блокируется до отмены контекста
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", logger.String("addr", s.httpServer.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown корректно завершает работу сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s.rateLimiter.Close()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.securityLogger.LogSystemEvent("server_shutdown_error", "error", logger.Error(err))
		return err
	}

	s.securityLogger.LogSystemEvent("server_shutdown_complete", "info")
	return nil
}
