package handlers

import (
	"context"

	"telegram_loyalty_bot/internal/bot/keyboard"
	botservice "telegram_loyalty_bot/internal/bot/service"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"

	"github.com/go-telegram/bot/models"
)

// CouponHandler выдает купон за подписку на канал
type CouponHandler struct {
	service *botservice.Service
}

// NewCouponHandler создает обработчик купонов
func NewCouponHandler(service *botservice.Service) *CouponHandler {
	return &CouponHandler{service: service}
}

// Handle обрабатывает команду /coupon
func (h *CouponHandler) Handle(ctx context.Context, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	h.Claim(ctx, msg.Chat.ID, msg.From)
}

// Claim проверяет подписку и выдает купон; повторный вызов показывает выданный
func (h *CouponHandler) Claim(ctx context.Context, chatID int64, from *models.User) {
	svc := h.service.Loyalty()

	coupon, created, err := svc.ClaimCoupon(ctx, from.ID)
	if errors.Is(err, errors.ErrUserNotFound) {
		if _, _, err = svc.Register(ctx, guestFrom(from), ""); err == nil {
			coupon, created, err = svc.ClaimCoupon(ctx, from.ID)
		}
	}

	switch {
	case errors.Is(err, errors.ErrNotSubscribed):
		text := "Чтобы получить купон, подпишитесь на наш канал и нажмите «Я подписался»."
		if err := h.service.SendMessage(ctx, chatID, text, keyboard.CreateSubscribeKeyboard(h.service.ChannelURL())); err != nil {
			h.service.Logger().Warn("Failed to send subscribe prompt", logger.Int64("chat_id", chatID), logger.Error(err))
		}
		return
	case errors.Is(err, errors.ErrTelegramAPI):
		h.service.Logger().Error("Subscription check failed", logger.Int64("telegram_id", from.ID), logger.Error(err))
		h.service.SendError(ctx, chatID, "Не удалось проверить подписку, попробуйте через минуту.")
		return
	case err != nil:
		h.service.Logger().Error("Failed to claim coupon", logger.Int64("telegram_id", from.ID), logger.Error(err))
		h.service.SendError(ctx, chatID, userMessage(err))
		return
	}

	text := formatCoupon(coupon, h.service.Now())
	if created {
		text = "Спасибо за подписку! 🎉\n\n" + text
		h.service.TriggerSheetsSync()
	}
	h.service.SendSimpleMessage(ctx, chatID, text)
}

// Show показывает купон гостя
func (h *CouponHandler) Show(ctx context.Context, chatID, userID int64) {
	coupon, err := h.service.Loyalty().CouponStatus(ctx, userID)
	if errors.Is(err, errors.ErrCouponNotFound) {
		if err := h.service.SendMessage(ctx, chatID, "У вас пока нет купона.", keyboard.CreateGuestMenuKeyboard(false)); err != nil {
			h.service.Logger().Warn("Failed to send message", logger.Int64("chat_id", chatID), logger.Error(err))
		}
		return
	}
	if err != nil {
		h.service.Logger().Error("Failed to load coupon", logger.Int64("telegram_id", userID), logger.Error(err))
		h.service.SendError(ctx, chatID, userMessage(err))
		return
	}

	h.service.SendSimpleMessage(ctx, chatID, formatCoupon(coupon, h.service.Now()))
}
