package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Режимы хранилища
const (
	DBModeSQLite   = "sqlite"
	DBModePostgres = "postgres"
	DBModeDual     = "dual"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Loyalty  LoyaltyConfig  `json:"loyalty"`
	Sheets   SheetsConfig   `json:"sheets"`
	AI       AIConfig       `json:"ai"`
	Redis    RedisConfig    `json:"redis"`
	Log      LogConfig      `json:"log"`
}

// TelegramConfig содержит настройки Telegram бота
type TelegramConfig struct {
	Token       string  `json:"token"`
	WebhookURL  string  `json:"webhook_url"`
	SecretToken string  `json:"-"`
	BotUsername string  `json:"bot_username"`
	ChannelID   string  `json:"channel_id"`
	AdminIDs    []int64 `json:"admin_ids"`
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	// RateLimit запросов в минуту с одного IP
	RateLimit int `json:"rate_limit"`
}

// DatabaseConfig содержит настройки хранилищ
type DatabaseConfig struct {
	Mode           string        `json:"mode"`
	SQLitePath     string        `json:"sqlite_path"`
	PostgresDSN    string        `json:"-"`
	MaxConnections int           `json:"max_connections"`
	ConnTimeout    time.Duration `json:"conn_timeout"`
}

// LoyaltyConfig содержит параметры программы лояльности
type LoyaltyConfig struct {
	CouponDiscount int           `json:"coupon_discount"`
	CouponTTL      time.Duration `json:"coupon_ttl"`
	QRDir          string        `json:"qr_dir"`
	UserRateLimit  int           `json:"user_rate_limit"`
}

// SheetsConfig содержит настройки экспорта в Google Sheets
type SheetsConfig struct {
	CredentialsFile string        `json:"credentials_file"`
	SpreadsheetID   string        `json:"spreadsheet_id"`
	SyncInterval    time.Duration `json:"sync_interval"`
}

// AIConfig содержит настройки AI-ассистента
type AIConfig struct {
	APIKey       string `json:"-"`
	Model        string `json:"model"`
	BaseURL      string `json:"base_url"`
	MenuFile     string `json:"menu_file"`
	HistorySize  int    `json:"history_size"`
	MaxTokens    int    `json:"max_tokens"`
	PerUserLimit int    `json:"per_user_limit"`
}

// RedisConfig содержит настройки Redis
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// LogConfig содержит настройки логирования
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	// File путь к файлу с ротацией; пустой путь пишет в stderr
	File string `json:"file"`
}

// Load загружает конфигурацию из переменных окружения и .env файла
func Load() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadForTools загружает конфигурацию для CLI: нужны только хранилище и имя бота
func LoadForTools() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}

	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func parse() (*Config, error) {
	// .env необязателен: в контейнере переменные приходят из окружения
	_ = godotenv.Load()

	adminIDs, err := getEnvAsInt64Slice("ADMIN_IDS")
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			Token:       os.Getenv("TELEGRAM_TOKEN"),
			WebhookURL:  os.Getenv("WEBHOOK_URL"),
			SecretToken: os.Getenv("TELEGRAM_SECRET_TOKEN"),
			BotUsername: strings.TrimPrefix(os.Getenv("BOT_USERNAME"), "@"),
			ChannelID:   os.Getenv("CHANNEL_ID"),
			AdminIDs:    adminIDs,
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			RateLimit:    getEnvAsInt("HTTP_RATE_LIMIT", 100),
		},
		Database: DatabaseConfig{
			Mode:           strings.ToLower(getEnv("DB_MODE", DBModeSQLite)),
			SQLitePath:     getEnv("SQLITE_PATH", "loyalty.db"),
			PostgresDSN:    os.Getenv("POSTGRES_DSN"),
			MaxConnections: getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			ConnTimeout:    getEnvAsDuration("DB_CONN_TIMEOUT", 5*time.Second),
		},
		Loyalty: LoyaltyConfig{
			CouponDiscount: getEnvAsInt("COUPON_DISCOUNT", 10),
			CouponTTL:      getEnvAsDuration("COUPON_TTL", 30*24*time.Hour),
			QRDir:          getEnv("QR_DIR", "qr"),
			UserRateLimit:  getEnvAsInt("USER_RATE_LIMIT", 30),
		},
		Sheets: SheetsConfig{
			CredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
			SpreadsheetID:   os.Getenv("SPREADSHEET_ID"),
			SyncInterval:    getEnvAsDuration("SHEETS_SYNC_INTERVAL", time.Hour),
		},
		AI: AIConfig{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			Model:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL:      os.Getenv("OPENAI_BASE_URL"),
			MenuFile:     getEnv("MENU_FILE", "menu.txt"),
			HistorySize:  getEnvAsInt("AI_HISTORY_SIZE", 6),
			MaxTokens:    getEnvAsInt("AI_MAX_TOKENS", 500),
			PerUserLimit: getEnvAsInt("AI_PER_USER_LIMIT", 10),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			File:   os.Getenv("LOG_FILE"),
		},
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.Telegram.ChannelID == "" {
		return fmt.Errorf("CHANNEL_ID is required")
	}

	if err := c.Database.Validate(); err != nil {
		return err
	}

	if c.Loyalty.CouponDiscount < 1 || c.Loyalty.CouponDiscount > 100 {
		return fmt.Errorf("COUPON_DISCOUNT must be between 1 and 100")
	}
	if c.Loyalty.CouponTTL < 0 {
		return fmt.Errorf("COUPON_TTL must be non-negative")
	}

	// Экспорт в таблицы включается только целиком
	if (c.Sheets.CredentialsFile == "") != (c.Sheets.SpreadsheetID == "") {
		return fmt.Errorf("GOOGLE_CREDENTIALS_FILE and SPREADSHEET_ID must be set together")
	}
	if c.Sheets.Enabled() && c.Sheets.SyncInterval < 0 {
		return fmt.Errorf("SHEETS_SYNC_INTERVAL must be non-negative")
	}

	// 0 снимает ограничение, отрицательные значения считаются опечаткой
	for name, v := range map[string]int{
		"HTTP_RATE_LIMIT":   c.Server.RateLimit,
		"USER_RATE_LIMIT":   c.Loyalty.UserRateLimit,
		"AI_PER_USER_LIMIT": c.AI.PerUserLimit,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative (0 disables the limit)", name)
		}
	}

	if c.AI.HistorySize < 0 {
		return fmt.Errorf("AI_HISTORY_SIZE must be non-negative")
	}

	return nil
}

// Validate проверяет настройки хранилищ
func (d DatabaseConfig) Validate() error {
	switch d.Mode {
	case DBModeSQLite:
		if d.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for sqlite mode")
		}
	case DBModePostgres:
		if d.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for postgres mode")
		}
	case DBModeDual:
		if d.PostgresDSN == "" || d.SQLitePath == "" {
			return fmt.Errorf("POSTGRES_DSN and SQLITE_PATH are required for dual mode")
		}
	default:
		return fmt.Errorf("unknown DB_MODE %q (expected sqlite, postgres or dual)", d.Mode)
	}
	return nil
}

// UseWebhook сообщает, работает ли бот через webhook, а не long polling
func (t TelegramConfig) UseWebhook() bool {
	return t.WebhookURL != ""
}

// IsAdmin проверяет, входит ли пользователь в список администраторов
func (t TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range t.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Enabled сообщает, настроен ли экспорт в Google Sheets
func (s SheetsConfig) Enabled() bool {
	return s.CredentialsFile != "" && s.SpreadsheetID != ""
}

// Enabled сообщает, настроен ли AI-ассистент
func (a AIConfig) Enabled() bool {
	return a.APIKey != ""
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvAsInt получает переменную окружения как число
func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvAsDuration получает переменную окружения как duration
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvAsInt64Slice разбирает список ID через запятую
func getEnvAsInt64Slice(key string) ([]int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}

	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
