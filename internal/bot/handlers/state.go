package handlers

import (
	"context"

	botservice "telegram_loyalty_bot/internal/bot/service"
	"telegram_loyalty_bot/internal/state"
	"telegram_loyalty_bot/pkg/logger"

	"github.com/go-telegram/bot/models"
)

// StateHandler продолжает начатый диалог: код купона, данные сотрудника, вопрос
type StateHandler struct {
	service *botservice.Service
	staff   *StaffHandler
	admin   *AdminHandler
	answer  *DefaultHandler
}

// NewStateHandler создает обработчик шагов диалога
func NewStateHandler(service *botservice.Service, staff *StaffHandler, admin *AdminHandler, answer *DefaultHandler) *StateHandler {
	return &StateHandler{service: service, staff: staff, admin: admin, answer: answer}
}

// Handle обрабатывает сообщение для сохраненного шага диалога
func (h *StateHandler) Handle(ctx context.Context, update *models.Update, st string) {
	msg := update.Message
	chatID := msg.Chat.ID
	userID := msg.From.ID

	switch st {
	case state.AwaitingRedeemCode:
		h.staff.Redeem(ctx, chatID, userID, msg.Text)
	case state.AwaitingStaffAdd:
		if !h.service.Loyalty().IsAdmin(userID) {
			return
		}
		h.admin.AddStaff(ctx, chatID, msg.Text)
	case state.AwaitingQuestion:
		h.answer.Ask(ctx, chatID, userID, msg.Text)
	default:
		h.service.Logger().Warn("Unknown dialog state", logger.Int64("user_id", userID), logger.String("state", st))
		h.answer.Handle(ctx, update)
	}
}
