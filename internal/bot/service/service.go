package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"telegram_loyalty_bot/internal/loyalty"
	"telegram_loyalty_bot/internal/middleware"
	"telegram_loyalty_bot/internal/persona"
	"telegram_loyalty_bot/internal/report"
	"telegram_loyalty_bot/internal/scheduler"
	"telegram_loyalty_bot/internal/state"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"
	"telegram_loyalty_bot/pkg/metrics"
)

// SheetsSyncJob имя задачи выгрузки в Google Sheets
const SheetsSyncJob = "sheets_sync"

// TelegramAPI методы Bot API, которые использует бот; *bot.Bot подходит
type TelegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*tgmodels.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*tgmodels.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
}

// Deps зависимости сервиса бота
type Deps struct {
	API       TelegramAPI
	Loyalty   *loyalty.Service
	Reports   *report.Builder
	Sheets    *report.SheetsExporter
	Persona   *persona.Persona
	State     state.Store
	Limiter   *middleware.TelegramRateLimiter
	Scheduler scheduler.JobScheduler
	Logger    *logger.Logger

	// ChannelID канал, подписка на который открывает купон
	ChannelID string
}

// Service представляет основной сервис Telegram бота
type Service struct {
	api       TelegramAPI
	loyalty   *loyalty.Service
	reports   *report.Builder
	xlsx      report.XLSXExporter
	sheets    *report.SheetsExporter
	persona   *persona.Persona
	state     state.Store
	limiter   *middleware.TelegramRateLimiter
	scheduler scheduler.JobScheduler
	channelID string
	logger    *logger.Logger
	now       func() time.Time
}

// NewService создает новый экземпляр сервиса бота
func NewService(deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	store := deps.State
	if store == nil {
		store = state.NewMemoryStore()
	}
	return &Service{
		api:       deps.API,
		loyalty:   deps.Loyalty,
		reports:   deps.Reports,
		sheets:    deps.Sheets,
		persona:   deps.Persona,
		state:     store,
		limiter:   deps.Limiter,
		scheduler: deps.Scheduler,
		channelID: deps.ChannelID,
		logger:    log.Named("bot"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Loyalty() *loyalty.Service { return s.loyalty }
func (s *Service) Reports() *report.Builder  { return s.reports }
func (s *Service) Persona() *persona.Persona { return s.persona }
func (s *Service) Logger() *logger.Logger    { return s.logger }

// Now текущее время в UTC
func (s *Service) Now() time.Time {
	return s.now()
}

// ChannelURL ссылка на канал для кнопки подписки; пусто для числовых ID
func (s *Service) ChannelURL() string {
	if name, ok := strings.CutPrefix(s.channelID, "@"); ok {
		return "https://t.me/" + name
	}
	return ""
}

// AllowUser проверяет лимит обновлений пользователя
func (s *Service) AllowUser(userID int64) bool {
	return s.limiter == nil || s.limiter.AllowUser(userID)
}

// AllowAIQuestion проверяет лимит вопросов к ассистенту
func (s *Service) AllowAIQuestion(userID int64) bool {
	return s.limiter == nil || s.limiter.AllowAIQuestion(userID)
}

// SendMessage отправляет сообщение пользователю
func (s *Service) SendMessage(ctx context.Context, chatID int64, text string, replyMarkup tgmodels.ReplyMarkup) error {
	params := &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: replyMarkup,
	}

	if _, err := s.api.SendMessage(ctx, params); err != nil {
		metrics.RecordError("telegram", "send_message")
		return err
	}
	return nil
}

// SendSimpleMessage отправляет простое текстовое сообщение
func (s *Service) SendSimpleMessage(ctx context.Context, chatID int64, text string) {
	if err := s.SendMessage(ctx, chatID, text, nil); err != nil {
		s.logger.Warn("Failed to send message", logger.Int64("chat_id", chatID), logger.Error(err))
	}
}

// SendError отправляет сообщение об ошибке пользователю
func (s *Service) SendError(ctx context.Context, chatID int64, message string) {
	if err := s.SendMessage(ctx, chatID, message, nil); err != nil {
		s.logger.Error("Failed to send error message", logger.Int64("chat_id", chatID), logger.Error(err))
	}
}

// SendPhoto отправляет PNG с подписью
func (s *Service) SendPhoto(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	params := &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &tgmodels.InputFileUpload{Filename: filename, Data: bytes.NewReader(data)},
		Caption: caption,
	}

	if _, err := s.api.SendPhoto(ctx, params); err != nil {
		metrics.RecordError("telegram", "send_photo")
		return err
	}
	return nil
}

// SendDocument отправляет файл с подписью
func (s *Service) SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	params := &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &tgmodels.InputFileUpload{Filename: filename, Data: bytes.NewReader(data)},
		Caption:  caption,
	}

	if _, err := s.api.SendDocument(ctx, params); err != nil {
		metrics.RecordError("telegram", "send_document")
		return err
	}
	return nil
}

// AnswerCallbackQuery отвечает на callback query
func (s *Service) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) {
	params := &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackQueryID,
		Text:            text,
	}

	if _, err := s.api.AnswerCallbackQuery(ctx, params); err != nil {
		s.logger.Warn("Failed to answer callback query", logger.Error(err))
	}
}

// DeleteMessage удаляет сообщение
func (s *Service) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	params := &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	}

	_, err := s.api.DeleteMessage(ctx, params)
	return err
}

// SetState запоминает шаг диалога
func (s *Service) SetState(ctx context.Context, userID int64, st string) {
	if err := s.state.Set(ctx, userID, st, state.DefaultTTL); err != nil {
		s.logger.Warn("Failed to save dialog state", logger.Int64("user_id", userID), logger.Error(err))
	}
}

// TakeState возвращает шаг диалога и сбрасывает его
func (s *Service) TakeState(ctx context.Context, userID int64) string {
	st, err := s.state.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to load dialog state", logger.Int64("user_id", userID), logger.Error(err))
		return ""
	}
	if st != "" {
		if err := s.state.Clear(ctx, userID); err != nil {
			s.logger.Warn("Failed to clear dialog state", logger.Int64("user_id", userID), logger.Error(err))
		}
	}
	return st
}

// SheetsEnabled сообщает, настроена ли выгрузка в Google Sheets
func (s *Service) SheetsEnabled() bool {
	return s.sheets != nil && s.sheets.Enabled()
}

// SheetsURL адрес таблицы с отчетом
func (s *Service) SheetsURL() string {
	if s.sheets == nil {
		return ""
	}
	return s.sheets.URL()
}

// TriggerSheetsSync ставит внеочередную выгрузку в Google Sheets
func (s *Service) TriggerSheetsSync() {
	if !s.SheetsEnabled() || s.scheduler == nil {
		return
	}
	if err := s.scheduler.Trigger(SheetsSyncJob); err != nil {
		s.logger.Debug("Sheets sync trigger skipped", logger.Error(err))
	}
}

// SyncSheets выгружает все данные в Google Sheets
func (s *Service) SyncSheets(ctx context.Context) error {
	_, err := s.ExportSheets(ctx, report.Period{Label: "за все время"})
	return err
}

// ExportSheets выгружает сводку и гостей за период в Google Sheets
func (s *Service) ExportSheets(ctx context.Context, period report.Period) (report.SyncResult, error) {
	if !s.SheetsEnabled() {
		return report.SyncResult{}, errors.ErrExportNotConfigured
	}

	summary, err := s.reports.Summary(ctx, period)
	if err != nil {
		return report.SyncResult{}, err
	}
	guests, err := s.reports.GuestRows(ctx, period)
	if err != nil {
		return report.SyncResult{}, err
	}

	return s.sheets.Export(ctx, summary, guests)
}

// BuildXLSX собирает XLSX отчет за период
func (s *Service) BuildXLSX(ctx context.Context, period report.Period) ([]byte, error) {
	summary, err := s.reports.Summary(ctx, period)
	if err != nil {
		return nil, err
	}
	guests, err := s.reports.GuestRows(ctx, period)
	if err != nil {
		return nil, err
	}

	data, err := s.xlsx.Export(summary, guests)
	if err != nil {
		metrics.RecordExport("xlsx", "error")
		return nil, fmt.Errorf("failed to build xlsx: %w", err)
	}
	metrics.RecordExport("xlsx", "success")
	return data, nil
}

// ClearState сбрасывает шаг диалога
func (s *Service) ClearState(ctx context.Context, userID int64) error {
	return s.state.Clear(ctx, userID)
}
