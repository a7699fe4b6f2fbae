package handlers

import (
	"context"

	botservice "telegram_loyalty_bot/internal/bot/service"
	"telegram_loyalty_bot/internal/state"
	"telegram_loyalty_bot/internal/validation"
	"telegram_loyalty_bot/pkg/logger"

	"github.com/go-telegram/bot/models"
)

const helpText = "Нажмите /start, чтобы открыть меню, или /coupon, чтобы получить купон."

// DefaultHandler отвечает на свободный текст через AI-ассистента
type DefaultHandler struct {
	service *botservice.Service
}

// NewDefaultHandler создает новый обработчик по умолчанию
func NewDefaultHandler(service *botservice.Service) *DefaultHandler {
	return &DefaultHandler{service: service}
}

// Handle обрабатывает все остальные типы сообщений
func (h *DefaultHandler) Handle(ctx context.Context, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	if msg.From == nil || msg.Text == "" || !h.service.Persona().Enabled() {
		h.Help(ctx, msg.Chat.ID)
		return
	}

	h.Ask(ctx, msg.Chat.ID, msg.From.ID, msg.Text)
}

// Help напоминает, как пользоваться ботом
func (h *DefaultHandler) Help(ctx context.Context, chatID int64) {
	h.service.SendSimpleMessage(ctx, chatID, helpText)
}

// PromptQuestion просит гостя задать вопрос о меню
func (h *DefaultHandler) PromptQuestion(ctx context.Context, chatID, userID int64) {
	if !h.service.Persona().Enabled() {
		h.service.SendSimpleMessage(ctx, chatID, "Ассистент сейчас недоступен, спросите бармена 🙂")
		return
	}

	h.service.SetState(ctx, userID, state.AwaitingQuestion)
	h.service.SendSimpleMessage(ctx, chatID, "Спрашивайте! Что подсказать по меню?")
}

// Ask передает вопрос ассистенту с учетом лимита вопросов
func (h *DefaultHandler) Ask(ctx context.Context, chatID, userID int64, text string) {
	question, err := validation.ValidateQuestion(text)
	if err != nil {
		h.service.SendSimpleMessage(ctx, chatID, userMessage(err))
		return
	}

	if !h.service.AllowAIQuestion(userID) {
		h.service.SendSimpleMessage(ctx, chatID, "Вы задали много вопросов подряд, попробуйте позже.")
		return
	}

	answer, err := h.service.Persona().Ask(ctx, userID, question)
	if err != nil {
		h.service.Logger().Error("AI answer failed", logger.Int64("user_id", userID), logger.Error(err))
		h.service.SendError(ctx, chatID, "Не получилось ответить, попробуйте еще раз или спросите бармена.")
		return
	}

	h.service.SendSimpleMessage(ctx, chatID, answer)
}
