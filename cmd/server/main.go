package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram_loyalty_bot/internal/bot"
	"telegram_loyalty_bot/internal/bot/service"
	"telegram_loyalty_bot/internal/config"
	"telegram_loyalty_bot/internal/loyalty"
	"telegram_loyalty_bot/internal/middleware"
	"telegram_loyalty_bot/internal/migrate"
	"telegram_loyalty_bot/internal/persona"
	"telegram_loyalty_bot/internal/report"
	"telegram_loyalty_bot/internal/scheduler/memory"
	"telegram_loyalty_bot/internal/server"
	"telegram_loyalty_bot/internal/state"
	"telegram_loyalty_bot/pkg/logger"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.LevelInfo).Fatal("Failed to load config", logger.Error(err))
	}

	log := logger.NewWithOptions(logger.Options{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	logger.SetDefault(log)
	defer log.Sync()

	log.Info("Starting loyalty bot",
		logger.String("db_mode", cfg.Database.Mode),
		logger.Bool("webhook", cfg.Telegram.UseWebhook()),
		logger.Bool("sheets", cfg.Sheets.Enabled()),
		logger.Bool("ai", cfg.AI.Enabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := migrate.OpenConfigured(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize storage", logger.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing storage", logger.Error(err))
		}
	}()

	states := openStateStore(ctx, cfg, log)
	defer func() {
		if err := states.Close(); err != nil {
			log.Error("Error closing state store", logger.Error(err))
		}
	}()

	// Диспетчер создается после бота, так как сервису нужен клиент Telegram
	var dispatcher *bot.Dispatcher
	telegramBot, err := tgbot.New(cfg.Telegram.Token,
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *tgmodels.Update) {
			dispatcher.HandleUpdate(ctx, b, update)
		}),
		tgbot.WithErrorsHandler(func(err error) {
			log.Error("Telegram client error", logger.Error(err))
		}),
	)
	if err != nil {
		log.Fatal("Failed to create Telegram bot", logger.Error(err))
	}

	botUsername, err := resolveBotUsername(ctx, cfg, telegramBot)
	if err != nil {
		log.Fatal("Failed to resolve bot username", logger.Error(err))
	}

	loyaltySvc := loyalty.NewService(store,
		loyalty.NewSubscriptionChecker(telegramBot, cfg.Telegram.ChannelID),
		loyalty.Config{
			Discount:    cfg.Loyalty.CouponDiscount,
			TTL:         cfg.Loyalty.CouponTTL,
			AdminIDs:    cfg.Telegram.AdminIDs,
			BotUsername: botUsername,
			QRDir:       cfg.Loyalty.QRDir,
		},
		log,
	)

	limiter := middleware.NewTelegramRateLimiter(cfg.Loyalty.UserRateLimit, 30, cfg.AI.PerUserLimit, log)
	defer limiter.Close()

	scheduler := memory.NewMemoryScheduler(log)

	svc := service.NewService(service.Deps{
		API:       telegramBot,
		Loyalty:   loyaltySvc,
		Reports:   report.NewBuilder(store),
		Sheets:    newSheetsExporter(ctx, cfg, log),
		Persona:   newPersona(cfg, states, log),
		State:     states,
		Limiter:   limiter,
		Scheduler: scheduler,
		Logger:    log,
		ChannelID: cfg.Telegram.ChannelID,
	})
	dispatcher = bot.NewDispatcher(svc)

	if svc.SheetsEnabled() {
		if err := scheduler.Register(service.SheetsSyncJob, cfg.Sheets.SyncInterval, svc.SyncSheets); err != nil {
			log.Fatal("Failed to register sheets sync", logger.Error(err))
		}
	}
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", logger.Error(err))
	}
	log.Info("Scheduler started", logger.Int("jobs", scheduler.GetActiveJobsCount()))
	defer scheduler.Stop()

	if cfg.Telegram.UseWebhook() {
		srv := server.New(cfg, log, dispatcher, telegramBot, store)
		if svc.SheetsEnabled() {
			srv.WatchJobs(scheduler, service.SheetsSyncJob)
		}
		runWebhook(ctx, cfg, log, telegramBot, srv)
	} else {
		runPolling(ctx, log, telegramBot)
	}

	log.Info("Bot stopped gracefully")
}

type botIdentity interface {
	GetMe(ctx context.Context) (*tgmodels.User, error)
}

// resolveBotUsername берет BOT_USERNAME из конфигурации, а без него спрашивает getMe
func resolveBotUsername(ctx context.Context, cfg *config.Config, telegramBot botIdentity) (string, error) {
	if cfg.Telegram.BotUsername != "" {
		return cfg.Telegram.BotUsername, nil
	}

	meCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	me, err := telegramBot.GetMe(meCtx)
	if err != nil {
		return "", err
	}
	if me.Username == "" {
		return "", errors.New("getMe returned empty username")
	}
	return me.Username, nil
}

// runWebhook регистрирует webhook и обслуживает HTTP до сигнала остановки
func runWebhook(ctx context.Context, cfg *config.Config, log *logger.Logger, telegramBot *tgbot.Bot, srv *server.Server) {
	if _, err := telegramBot.SetWebhook(ctx, &tgbot.SetWebhookParams{
		URL:            cfg.Telegram.WebhookURL,
		SecretToken:    cfg.Telegram.SecretToken,
		AllowedUpdates: []string{"message", "callback_query"},
	}); err != nil {
		log.Fatal("Failed to set webhook", logger.Error(err))
	}
	log.Info("Webhook configured", logger.String("url", cfg.Telegram.WebhookURL))

	if err := srv.Start(ctx); err != nil {
		log.Error("Server error", logger.Error(err))
	}
}

// runPolling снимает webhook и получает обновления через getUpdates
func runPolling(ctx context.Context, log *logger.Logger, telegramBot *tgbot.Bot) {
	if _, err := telegramBot.DeleteWebhook(ctx, &tgbot.DeleteWebhookParams{}); err != nil {
		log.Warn("Failed to delete existing webhook", logger.Error(err))
	}

	log.Info("Starting long polling")
	telegramBot.Start(ctx)
}

// openStateStore использует Redis, если он настроен, иначе память процесса
func openStateStore(ctx context.Context, cfg *config.Config, log *logger.Logger) state.Store {
	if cfg.Redis.Addr == "" {
		return state.NewMemoryStore()
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := state.NewRedisStore(connCtx, state.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, dialog state kept in memory", logger.Error(err))
		return state.NewMemoryStore()
	}

	log.Info("Dialog state stored in Redis", logger.String("addr", cfg.Redis.Addr))
	return store
}

// newSheetsExporter возвращает выгрузку без клиента, если таблица не настроена
func newSheetsExporter(ctx context.Context, cfg *config.Config, log *logger.Logger) *report.SheetsExporter {
	if !cfg.Sheets.Enabled() {
		return report.NewSheetsExporter(nil, "", log)
	}

	api, err := report.NewSheetsAPI(ctx, cfg.Sheets.CredentialsFile)
	if err != nil {
		log.Error("Google Sheets export disabled", logger.Error(err))
		return report.NewSheetsExporter(nil, "", log)
	}

	return report.NewSheetsExporter(api, cfg.Sheets.SpreadsheetID, log)
}

// newPersona создает ассистента; без ключа OpenAI он отключен
func newPersona(cfg *config.Config, history state.Store, log *logger.Logger) *persona.Persona {
	menu, err := persona.LoadMenu(cfg.AI.MenuFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load menu", logger.Error(err))
	}

	var client persona.Completer
	if cfg.AI.Enabled() {
		client = persona.NewClient(cfg.AI.APIKey, cfg.AI.BaseURL)
	}

	return persona.New(client, persona.Config{
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		HistorySize: cfg.AI.HistorySize,
	}, menu, history, log)
}
