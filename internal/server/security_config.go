package server

import (
	"time"

	"telegram_loyalty_bot/internal/config"
)

// SecurityConfig содержит настройки защиты webhook эндпоинта
type SecurityConfig struct {
	// Rate Limiting
	HTTPRequestsPerMinute int `json:"http_requests_per_minute"`

	// Request Validation
	MaxRequestSize int64         `json:"max_request_size"`
	MaxHeaderSize  int           `json:"max_header_size"`
	RequestTimeout time.Duration `json:"request_timeout"`

	// Authentication
	SecretToken string `json:"-"`
}

// LoadSecurityConfig собирает настройки безопасности из основной конфигурации
func LoadSecurityConfig(cfg *config.Config) *SecurityConfig {
	return &SecurityConfig{
		HTTPRequestsPerMinute: cfg.Server.RateLimit,
		MaxRequestSize:        4 * 1024 * 1024, // 4MB для Telegram
		MaxHeaderSize:         1 << 20,
		RequestTimeout:        30 * time.Second,
		SecretToken:           cfg.Telegram.SecretToken,
	}
}

// RequireSecretToken сообщает, нужно ли проверять заголовок с секретом
func (sc *SecurityConfig) RequireSecretToken() bool {
	return sc.SecretToken != ""
}
