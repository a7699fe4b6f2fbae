package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"telegram_loyalty_bot/pkg/logger"
	"telegram_loyalty_bot/pkg/metrics"
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter ограничивает частоту запросов по ключу (IP или user ID)
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	logger   *logger.Logger

	// Cleanup
	cleanupInterval time.Duration
	idleTimeout     time.Duration
	done            chan struct{}
	closeOnce       sync.Once
}

// NewRateLimiter создает limiter на requests запросов за период per.
// requests <= 0 снимает ограничение.
func NewRateLimiter(requests int, per time.Duration, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewNop()
	}

	limit, burst := rate.Inf, 0
	if requests > 0 {
		limit, burst = rate.Every(per/time.Duration(requests)), requests
	}

	rl := &RateLimiter{
		limiters:        make(map[string]*limiterEntry),
		limit:           limit,
		burst:           burst,
		logger:          log,
		cleanupInterval: 5 * time.Minute,
		idleTimeout:     10 * time.Minute,
		done:            make(chan struct{}),
	}

	// Запускаем goroutine для очистки неиспользуемых limiters
	go rl.cleanupRoutine()

	return rl
}

// GetLimiter возвращает limiter для конкретного ключа
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}

	entry.lastAccess = time.Now()
	return entry.limiter
}

// Allow проверяет, разрешен ли запрос для данного ключа
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit == rate.Inf {
		return true
	}
	return rl.GetLimiter(key).Allow()
}

// Size возвращает число отслеживаемых ключей
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// cleanupRoutine периодически удаляет неиспользуемые limiters
func (rl *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.done:
			return
		}
	}
}

// cleanup удаляет limiters, к которым не обращались дольше idleTimeout
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.idleTimeout)
	var cleaned int

	for key, entry := range rl.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.limiters, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		rl.logger.Debug("Cleaned up rate limiters",
			logger.Int("cleaned_count", cleaned),
			logger.Int("remaining_count", len(rl.limiters)),
		)
	}
}

// Close останавливает cleanup routine
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.done) })
}

// HTTPRateLimitMiddleware создает HTTP middleware для rate limiting по IP
func HTTPRateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := RealIP(r)

			if !limiter.Allow(key) {
				metrics.RecordRateLimited("http")
				limiter.logger.Warn("Rate limit exceeded",
					logger.String("ip", key),
					logger.String("user_agent", r.UserAgent()),
				)

				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TelegramRateLimiter ограничения для обновлений бота и вопросов к AI
type TelegramRateLimiter struct {
	userLimiter   *RateLimiter  // Ограничение по пользователям
	aiLimiter     *RateLimiter  // Вопросы к ассистенту
	globalLimiter *rate.Limiter // Глобальное ограничение
	logger        *logger.Logger
}

// NewTelegramRateLimiter создает rate limiter для Telegram бота
func NewTelegramRateLimiter(
	userRequestsPerMinute int,
	globalRequestsPerSecond int,
	aiQuestionsPerHour int,
	log *logger.Logger,
) *TelegramRateLimiter {
	if log == nil {
		log = logger.NewNop()
	}
	if globalRequestsPerSecond <= 0 {
		globalRequestsPerSecond = 30
	}
	return &TelegramRateLimiter{
		userLimiter:   NewRateLimiter(userRequestsPerMinute, time.Minute, log),
		aiLimiter:     NewRateLimiter(aiQuestionsPerHour, time.Hour, log),
		globalLimiter: rate.NewLimiter(rate.Limit(globalRequestsPerSecond), globalRequestsPerSecond),
		logger:        log,
	}
}

// AllowUser проверяет, может ли пользователь отправить запрос
func (trl *TelegramRateLimiter) AllowUser(chatID int64) bool {
	if !trl.globalLimiter.Allow() {
		metrics.RecordRateLimited("global")
		trl.logger.Warn("Global rate limit exceeded", logger.Int64("chat_id", chatID))
		return false
	}

	if !trl.userLimiter.Allow(fmt.Sprintf("user_%d", chatID)) {
		metrics.RecordRateLimited("user")
		trl.logger.Warn("User rate limit exceeded", logger.Int64("chat_id", chatID))
		return false
	}

	return true
}

// AllowAIQuestion проверяет лимит вопросов к ассистенту
func (trl *TelegramRateLimiter) AllowAIQuestion(userID int64) bool {
	if !trl.aiLimiter.Allow(fmt.Sprintf("ai_%d", userID)) {
		metrics.RecordRateLimited("ai")
		trl.logger.Info("AI question limit exceeded", logger.Int64("user_id", userID))
		return false
	}
	return true
}

// Close закрывает все ресурсы
func (trl *TelegramRateLimiter) Close() {
	trl.userLimiter.Close()
	trl.aiLimiter.Close()
}

// RealIP извлекает реальный IP адрес клиента из заголовков прокси или RemoteAddr
func RealIP(r *http.Request) string {
	// Проверяем заголовки в порядке приоритета
	headers := []string{
		"CF-Connecting-IP", // Cloudflare
		"X-Forwarded-For",  // Стандартный заголовок
		"X-Real-IP",        // Nginx
	}

	for _, header := range headers {
		ip := r.Header.Get(header)
		if ip == "" {
			continue
		}
		// X-Forwarded-For может содержать несколько IP через запятую
		if first, _, ok := strings.Cut(ip, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(ip)
	}

	// Fallback на RemoteAddr без порта
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
