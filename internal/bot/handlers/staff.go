package handlers

import (
	"context"
	"fmt"

	botservice "telegram_loyalty_bot/internal/bot/service"
	"telegram_loyalty_bot/internal/qr"
	"telegram_loyalty_bot/internal/state"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"

	"github.com/go-telegram/bot/models"
)

// StaffHandler команды персонала: погашение купонов и личный QR
type StaffHandler struct {
	service *botservice.Service
}

// NewStaffHandler создает обработчик команд персонала
func NewStaffHandler(service *botservice.Service) *StaffHandler {
	return &StaffHandler{service: service}
}

func (h *StaffHandler) allowed(ctx context.Context, userID int64) bool {
	svc := h.service.Loyalty()
	if svc.IsAdmin(userID) {
		return true
	}
	isStaff, err := svc.IsStaff(ctx, userID)
	if err != nil {
		h.service.Logger().Warn("Failed to check staff", logger.Int64("telegram_id", userID), logger.Error(err))
	}
	return isStaff
}

// HandleRedeem обрабатывает /redeem [код]; без кода ждет его следующим сообщением
func (h *StaffHandler) HandleRedeem(ctx context.Context, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	if !h.allowed(ctx, msg.From.ID) {
		h.service.SendSimpleMessage(ctx, chatID, userMessage(errors.ErrAccessDenied))
		return
	}

	if _, code, _ := ParseCommand(msg.Text); code != "" {
		h.Redeem(ctx, chatID, msg.From.ID, code)
		return
	}

	h.service.SetState(ctx, msg.From.ID, state.AwaitingRedeemCode)
	h.service.SendSimpleMessage(ctx, chatID, "Отправьте код купона гостя. /cancel для отмены.")
}

// Redeem гасит купон от имени сотрудника и сообщает результат
func (h *StaffHandler) Redeem(ctx context.Context, chatID, actorID int64, code string) {
	coupon, err := h.service.Loyalty().Redeem(ctx, code, actorID)
	if err != nil {
		if !errors.IsBotError(err) {
			h.service.Logger().Error("Failed to redeem coupon", logger.String("code", code), logger.Error(err))
		}
		h.service.SendSimpleMessage(ctx, chatID, "❌ "+userMessage(err))
		return
	}

	h.service.TriggerSheetsSync()
	h.service.SendSimpleMessage(ctx, chatID,
		fmt.Sprintf("✅ Купон %s погашен. Скидка гостю: %d%%.", coupon.Code, coupon.Discount))
}

// HandleMyQR отправляет сотруднику его QR-код, гостю реферальный
func (h *StaffHandler) HandleMyQR(ctx context.Context, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID
	svc := h.service.Loyalty()

	staff, err := svc.GetStaff(ctx, msg.From.ID)
	switch {
	case err == nil && staff.Active:
		png, err := svc.StaffQR(staff)
		if err != nil {
			h.service.Logger().Error("Failed to render staff QR", logger.Int64("telegram_id", staff.TelegramID), logger.Error(err))
			h.service.SendError(ctx, chatID, userMessage(err))
			return
		}
		caption := fmt.Sprintf("%s, гости, пришедшие по этому QR, будут записаны на вас.\n%s", staff.Name, svc.StaffLink(staff))
		if err := h.service.SendPhoto(ctx, chatID, qr.FileName(staff.Code), png, caption); err != nil {
			h.service.Logger().Warn("Failed to send staff QR", logger.Int64("chat_id", chatID), logger.Error(err))
		}
		return
	case err != nil && !errors.Is(err, errors.ErrStaffNotFound):
		h.service.Logger().Error("Failed to load staff", logger.Int64("telegram_id", msg.From.ID), logger.Error(err))
		h.service.SendError(ctx, chatID, userMessage(err))
		return
	}

	link := svc.ReferralLink(msg.From.ID)
	png, err := svc.ReferralQR(msg.From.ID)
	if err != nil {
		h.service.Logger().Error("Failed to render referral QR", logger.Int64("telegram_id", msg.From.ID), logger.Error(err))
		h.service.SendError(ctx, chatID, userMessage(err))
		return
	}
	caption := "Приглашайте друзей по этой ссылке:\n" + link
	if err := h.service.SendPhoto(ctx, chatID, qr.FileName(fmt.Sprintf("ref_%d", msg.From.ID)), png, caption); err != nil {
		h.service.Logger().Warn("Failed to send referral QR", logger.Int64("chat_id", chatID), logger.Error(err))
	}
}
