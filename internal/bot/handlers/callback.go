package handlers

import (
	"context"

	"telegram_loyalty_bot/internal/bot/keyboard"
	botservice "telegram_loyalty_bot/internal/bot/service"
	"telegram_loyalty_bot/pkg/logger"

	"github.com/go-telegram/bot/models"
)

// CallbackHandler обрабатывает callback query от inline кнопок
type CallbackHandler struct {
	service *botservice.Service
	coupon  *CouponHandler
	menu    *DefaultHandler
}

// NewCallbackHandler создает новый обработчик callback query
func NewCallbackHandler(service *botservice.Service, coupon *CouponHandler, menu *DefaultHandler) *CallbackHandler {
	return &CallbackHandler{service: service, coupon: coupon, menu: menu}
}

// Handle обрабатывает callback query
func (h *CallbackHandler) Handle(ctx context.Context, update *models.Update) {
	cb := update.CallbackQuery
	if cb == nil {
		return
	}

	// В личном чате ID чата совпадает с ID пользователя
	chatID := cb.From.ID
	if cb.Message.Message != nil {
		chatID = cb.Message.Message.Chat.ID
	}

	// Отвечаем сразу, чтобы убрать индикатор загрузки
	switch cb.Data {
	case keyboard.CouponGet:
		h.service.AnswerCallbackQuery(ctx, cb.ID, "")
		h.coupon.Claim(ctx, chatID, &cb.From)
	case keyboard.CouponCheck:
		h.service.AnswerCallbackQuery(ctx, cb.ID, "Проверяю подписку…")
		h.removeKeyboard(ctx, chatID, cb)
		h.coupon.Claim(ctx, chatID, &cb.From)
	case keyboard.CouponShow:
		h.service.AnswerCallbackQuery(ctx, cb.ID, "")
		h.coupon.Show(ctx, chatID, cb.From.ID)
	case keyboard.MenuAsk:
		h.service.AnswerCallbackQuery(ctx, cb.ID, "")
		h.menu.PromptQuestion(ctx, chatID, cb.From.ID)
	default:
		h.service.AnswerCallbackQuery(ctx, cb.ID, "Неверный выбор")
	}
}

// removeKeyboard удаляет сообщение с кнопкой проверки подписки
func (h *CallbackHandler) removeKeyboard(ctx context.Context, chatID int64, cb *models.CallbackQuery) {
	if cb.Message.Message == nil {
		return
	}
	if err := h.service.DeleteMessage(ctx, chatID, cb.Message.Message.ID); err != nil {
		h.service.Logger().Debug("Failed to delete message", logger.Error(err))
	}
}
