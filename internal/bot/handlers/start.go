package handlers

import (
	"context"
	"fmt"
	"strings"

	"telegram_loyalty_bot/internal/bot/keyboard"
	botservice "telegram_loyalty_bot/internal/bot/service"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"

	"github.com/go-telegram/bot/models"
)

// StartHandler обрабатывает команду /start
type StartHandler struct {
	service *botservice.Service
}

// NewStartHandler создает новый обработчик команды /start
func NewStartHandler(service *botservice.Service) *StartHandler {
	return &StartHandler{service: service}
}

// Handle регистрирует гостя с источником из deep link и показывает меню
func (h *StartHandler) Handle(ctx context.Context, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	_, payload, _ := ParseCommand(msg.Text)
	chatID := msg.Chat.ID
	svc := h.service.Loyalty()

	user, created, err := svc.Register(ctx, guestFrom(msg.From), payload)
	if err != nil {
		h.service.Logger().Error("Failed to register guest",
			logger.Int64("telegram_id", msg.From.ID),
			logger.Error(err),
		)
		h.service.SendError(ctx, chatID, "Произошла ошибка при регистрации, попробуйте позже.")
		return
	}

	if created {
		h.service.TriggerSheetsSync()
	}

	hasCoupon := false
	if _, err := svc.CouponStatus(ctx, user.TelegramID); err == nil {
		hasCoupon = true
	} else if !errors.Is(err, errors.ErrCouponNotFound) {
		h.service.Logger().Warn("Failed to load coupon", logger.Int64("telegram_id", user.TelegramID), logger.Error(err))
	}

	if err := h.service.SendMessage(ctx, chatID, h.welcomeText(ctx, user.TelegramID, created), keyboard.CreateGuestMenuKeyboard(hasCoupon)); err != nil {
		h.service.Logger().Warn("Failed to send welcome message", logger.Int64("chat_id", chatID), logger.Error(err))
	}
}

func (h *StartHandler) welcomeText(ctx context.Context, userID int64, created bool) string {
	svc := h.service.Loyalty()

	var b strings.Builder
	if created {
		b.WriteString("Привет! Добро пожаловать в бар 🍻\n\n")
	} else {
		b.WriteString("С возвращением! 🍻\n\n")
	}
	fmt.Fprintf(&b, "Подпишитесь на наш канал и получите купон на скидку %d%%.\n", svc.Config().Discount)
	b.WriteString("А еще я могу рассказать о меню: просто задайте вопрос.")

	isStaff, err := svc.IsStaff(ctx, userID)
	if err != nil {
		h.service.Logger().Warn("Failed to check staff", logger.Int64("telegram_id", userID), logger.Error(err))
	}
	if isStaff || svc.IsAdmin(userID) {
		b.WriteString("\n\nДля персонала: /redeem погасить купон, /myqr ваш QR-код.")
	}
	if svc.IsAdmin(userID) {
		b.WriteString("\nАдмин: /report, /xlsx, /export, /staff_add, /staff_list, /staff_qr, /staff_off.")
	}

	return b.String()
}
