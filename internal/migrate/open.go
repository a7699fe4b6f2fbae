package migrate

import (
	"context"
	"fmt"
	"strings"

	"telegram_loyalty_bot/internal/config"
	"telegram_loyalty_bot/internal/storage"
	"telegram_loyalty_bot/internal/storage/dual"
	"telegram_loyalty_bot/internal/storage/postgres"
	"telegram_loyalty_bot/internal/storage/sqlite"
	"telegram_loyalty_bot/pkg/logger"
)

// Open открывает хранилище по строке вида "sqlite:path" или "postgres:dsn"
func Open(ctx context.Context, target string) (storage.Storage, error) {
	kind, dsn, ok := strings.Cut(target, ":")
	if !ok || dsn == "" {
		return nil, fmt.Errorf("invalid storage %q, expected sqlite:<path> or postgres:<dsn>", target)
	}

	switch kind {
	case "sqlite":
		return sqlite.New(dsn)
	case "postgres", "postgresql":
		// DSN в URL-форме уже содержит схему
		if strings.HasPrefix(dsn, "//") {
			dsn = kind + ":" + dsn
		}
		return postgres.New(ctx, dsn, 4)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", kind)
	}
}

// OpenConfigured открывает хранилище в режиме DB_MODE
func OpenConfigured(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (storage.Storage, error) {
	switch cfg.Mode {
	case "", "sqlite":
		return sqlite.New(cfg.SQLitePath)
	case "postgres":
		return openPostgres(ctx, cfg)
	case "dual":
		pg, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		lite, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to open sqlite mirror: %w", err)
		}
		return dual.New(pg, lite, log), nil
	default:
		return nil, fmt.Errorf("unknown DB_MODE %q", cfg.Mode)
	}
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (*postgres.PostgresStorage, error) {
	connCtx := ctx
	if cfg.ConnTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, cfg.ConnTimeout)
		defer cancel()
	}
	return postgres.New(connCtx, cfg.PostgresDSN, cfg.MaxConnections)
}
