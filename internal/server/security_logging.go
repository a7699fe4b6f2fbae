package server

import (
	"net/http"
	"strings"
	"time"

	"telegram_loyalty_bot/internal/middleware"
	"telegram_loyalty_bot/pkg/logger"

	tgmodels "github.com/go-telegram/bot/models"
)

// SecurityLogger логирует события безопасности
type SecurityLogger struct {
	logger *logger.Logger
}

// NewSecurityLogger создает новый логгер безопасности
func NewSecurityLogger(log *logger.Logger) *SecurityLogger {
	return &SecurityLogger{logger: log.Named("security")}
}

// LogFailedAuth логирует неудачную попытку аутентификации
func (sl *SecurityLogger) LogFailedAuth(r *http.Request, reason string) {
	sl.logger.Warn("Authentication failed",
		logger.String("reason", reason),
		logger.String("ip", middleware.RealIP(r)),
		logger.String("user_agent", r.UserAgent()),
		logger.String("path", r.URL.Path),
		logger.String("method", r.Method),
	)
}

// LogValidationError логирует ошибки валидации
func (sl *SecurityLogger) LogValidationError(r *http.Request, field, reason string) {
	sl.logger.Warn("Validation error",
		logger.String("field", field),
		logger.String("reason", reason),
		logger.String("ip", middleware.RealIP(r)),
		logger.String("path", r.URL.Path),
	)
}

// LogTelegramUpdate логирует обработку Telegram update
func (sl *SecurityLogger) LogTelegramUpdate(update *tgmodels.Update, processingTime time.Duration) {
	var chatID, userID int64
	updateType := "other"

	switch {
	case update.Message != nil:
		updateType = "message"
		chatID = update.Message.Chat.ID
		if update.Message.From != nil {
			userID = update.Message.From.ID
		}
	case update.CallbackQuery != nil:
		updateType = "callback_query"
		userID = update.CallbackQuery.From.ID
		chatID = userID
	}

	sl.logger.Debug("Telegram update processed",
		logger.Int64("update_id", update.ID),
		logger.String("type", updateType),
		logger.Int64("chat_id", chatID),
		logger.Int64("user_id", userID),
		logger.Duration("processing_time", processingTime),
	)
}

// LogSystemEvent логирует системные события
func (sl *SecurityLogger) LogSystemEvent(event, level string, fields ...logger.Field) {
	fields = append([]logger.Field{logger.String("event", event)}, fields...)

	switch strings.ToLower(level) {
	case "error":
		sl.logger.Error("System event", fields...)
	case "warn", "warning":
		sl.logger.Warn("System event", fields...)
	case "debug":
		sl.logger.Debug("System event", fields...)
	default:
		sl.logger.Info("System event", fields...)
	}
}

// securityAuditMiddleware логирует обращения к webhook и все ошибочные ответы
func (s *Server) securityAuditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &auditResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if r.URL.Path != "/webhook" && wrapped.statusCode < 400 {
			return
		}

		fields := []logger.Field{
			logger.String("path", r.URL.Path),
			logger.Int("status_code", wrapped.statusCode),
			logger.Duration("duration", time.Since(start)),
			logger.Int64("bytes_written", wrapped.bytesWritten),
			logger.String("ip", middleware.RealIP(r)),
		}

		if wrapped.statusCode >= 400 {
			s.securityLogger.LogSystemEvent("http_error", "warn", fields...)
			return
		}
		s.securityLogger.LogSystemEvent("http_request", "debug", fields...)
	})
}

// auditResponseWriter оборачивает ResponseWriter для сбора метрик
type auditResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

// WriteHeader перехватывает status code
func (arw *auditResponseWriter) WriteHeader(code int) {
	arw.statusCode = code
	arw.ResponseWriter.WriteHeader(code)
}

// Write перехватывает количество записанных байт
func (arw *auditResponseWriter) Write(data []byte) (int, error) {
	n, err := arw.ResponseWriter.Write(data)
	arw.bytesWritten += int64(n)
	return n, err
}
