package handlers

import (
	"context"
	"fmt"
	"strings"

	botservice "telegram_loyalty_bot/internal/bot/service"
	"telegram_loyalty_bot/internal/qr"
	"telegram_loyalty_bot/internal/report"
	"telegram_loyalty_bot/internal/state"
	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/internal/validation"
	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"

	tgmodels "github.com/go-telegram/bot/models"
)

// AdminHandler команды администратора: отчеты и управление сотрудниками
type AdminHandler struct {
	service *botservice.Service
}

// NewAdminHandler создает обработчик команд администратора
func NewAdminHandler(service *botservice.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

// Handle проверяет права и выполняет команду администратора
func (h *AdminHandler) Handle(ctx context.Context, update *tgmodels.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	if !h.service.Loyalty().IsAdmin(msg.From.ID) {
		h.service.Logger().Warn("Admin command denied",
			logger.Int64("telegram_id", msg.From.ID),
			logger.String("text", msg.Text),
		)
		h.service.SendSimpleMessage(ctx, chatID, "⛔ Команда доступна только администраторам.")
		return
	}

	command, args, _ := ParseCommand(msg.Text)
	switch command {
	case "/report":
		h.report(ctx, chatID, args)
	case "/export":
		h.export(ctx, chatID, args)
	case "/xlsx":
		h.xlsx(ctx, chatID, args)
	case "/staff_add":
		if args == "" {
			h.service.SetState(ctx, msg.From.ID, state.AwaitingStaffAdd)
			h.service.SendSimpleMessage(ctx, chatID,
				"Отправьте данные сотрудника: <telegram_id> <имя> [| должность]. /cancel для отмены.")
			return
		}
		h.AddStaff(ctx, chatID, args)
	case "/staff_list":
		h.listStaff(ctx, chatID)
	case "/staff_qr":
		h.staffQR(ctx, chatID, args)
	case "/staff_off":
		h.setActive(ctx, chatID, args, false)
	case "/staff_on":
		h.setActive(ctx, chatID, args, true)
	}
}

func (h *AdminHandler) period(ctx context.Context, chatID int64, args string) (report.Period, bool) {
	period, err := report.ParsePeriod(args, h.service.Now())
	if err != nil {
		h.service.SendSimpleMessage(ctx, chatID, userMessage(err))
		return report.Period{}, false
	}
	return period, true
}

func (h *AdminHandler) report(ctx context.Context, chatID int64, args string) {
	period, ok := h.period(ctx, chatID, args)
	if !ok {
		return
	}

	summary, err := h.service.Reports().Summary(ctx, period)
	if err != nil {
		h.service.Logger().Error("Failed to build report", logger.Error(err))
		h.service.SendError(ctx, chatID, userMessage(err))
		return
	}

	h.service.SendSimpleMessage(ctx, chatID, report.FormatSummary(summary))
}

func (h *AdminHandler) export(ctx context.Context, chatID int64, args string) {
	if !h.service.SheetsEnabled() {
		h.service.SendSimpleMessage(ctx, chatID, userMessage(errors.ErrExportNotConfigured))
		return
	}

	if args == "" {
		args = "all"
	}
	period, ok := h.period(ctx, chatID, args)
	if !ok {
		return
	}

	result, err := h.service.ExportSheets(ctx, period)
	if err != nil {
		h.service.Logger().Error("Sheets export failed", logger.Error(err))
		h.service.SendError(ctx, chatID, "Не удалось выгрузить отчет в Google Sheets.")
		return
	}

	h.service.SendSimpleMessage(ctx, chatID, fmt.Sprintf(
		"✅ Таблица обновлена: изменено %d, добавлено %d.\n%s",
		result.Updated, result.Appended, h.service.SheetsURL(),
	))
}

func (h *AdminHandler) xlsx(ctx context.Context, chatID int64, args string) {
	period, ok := h.period(ctx, chatID, args)
	if !ok {
		return
	}

	data, err := h.service.BuildXLSX(ctx, period)
	if err != nil {
		h.service.Logger().Error("Failed to build xlsx report", logger.Error(err))
		h.service.SendError(ctx, chatID, userMessage(err))
		return
	}

	filename := fmt.Sprintf("report_%s.xlsx", h.service.Now().Format("2006-01-02"))
	if err := h.service.SendDocument(ctx, chatID, filename, data, "Отчет "+period.Label); err != nil {
		h.service.Logger().Error("Failed to send xlsx report", logger.Int64("chat_id", chatID), logger.Error(err))
		h.service.SendError(ctx, chatID, "Не удалось отправить файл отчета.")
	}
}

// AddStaff добавляет сотрудника по строке "<telegram_id> <имя> [| должность]"
func (h *AdminHandler) AddStaff(ctx context.Context, chatID int64, args string) {
	parsed, err := validation.ParseStaffArgs(args)
	if err != nil {
		h.service.SendSimpleMessage(ctx, chatID, userMessage(err))
		return
	}

	svc := h.service.Loyalty()
	staff, err := svc.AddStaff(ctx, parsed.TelegramID, parsed.Name, parsed.Position)
	if err != nil {
		if !errors.IsBotError(err) {
			h.service.Logger().Error("Failed to add staff", logger.Int64("telegram_id", parsed.TelegramID), logger.Error(err))
		}
		h.service.SendSimpleMessage(ctx, chatID, userMessage(err))
		return
	}

	h.sendStaffQR(ctx, chatID, staff, "✅ Сотрудник добавлен")
}

func (h *AdminHandler) sendStaffQR(ctx context.Context, chatID int64, staff *models.Staff, title string) {
	svc := h.service.Loyalty()

	png, err := svc.StaffQR(staff)
	if err != nil {
		h.service.Logger().Error("Failed to render staff QR", logger.Int64("telegram_id", staff.TelegramID), logger.Error(err))
		h.service.SendError(ctx, chatID, userMessage(err))
		return
	}

	caption := fmt.Sprintf("%s: %s\nКод: %s\n%s", title, staffTitle(staff), staff.Code, svc.StaffLink(staff))
	if err := h.service.SendPhoto(ctx, chatID, qr.FileName(staff.Code), png, caption); err != nil {
		h.service.Logger().Warn("Failed to send staff QR", logger.Int64("chat_id", chatID), logger.Error(err))
	}
}

func staffTitle(staff *models.Staff) string {
	if staff.Position == "" {
		return staff.Name
	}
	return fmt.Sprintf("%s (%s)", staff.Name, staff.Position)
}

func (h *AdminHandler) listStaff(ctx context.Context, chatID int64) {
	list, err := h.service.Loyalty().ListStaff(ctx)
	if err != nil {
		h.service.Logger().Error("Failed to list staff", logger.Error(err))
		h.service.SendError(ctx, chatID, userMessage(err))
		return
	}

	if len(list) == 0 {
		h.service.SendSimpleMessage(ctx, chatID, "Сотрудников пока нет. Добавьте: /staff_add <telegram_id> <имя>")
		return
	}

	var b strings.Builder
	b.WriteString("👥 Сотрудники:\n")
	for _, staff := range list {
		status := "✅"
		if !staff.Active {
			status = "⏸"
		}
		fmt.Fprintf(&b, "%s %s, id %d, код %s\n", status, staffTitle(staff), staff.TelegramID, staff.Code)
	}

	h.service.SendSimpleMessage(ctx, chatID, strings.TrimRight(b.String(), "\n"))
}

func (h *AdminHandler) staffQR(ctx context.Context, chatID int64, args string) {
	svc := h.service.Loyalty()

	if args != "" {
		id, err := validation.ValidateTelegramID(args)
		if err != nil {
			h.service.SendSimpleMessage(ctx, chatID, userMessage(err))
			return
		}
		staff, err := svc.GetStaff(ctx, id)
		if err != nil {
			h.service.SendSimpleMessage(ctx, chatID, userMessage(err))
			return
		}
		h.sendStaffQR(ctx, chatID, staff, "QR сотрудника")
		return
	}

	list, err := svc.ListStaff(ctx)
	if err != nil {
		h.service.Logger().Error("Failed to list staff", logger.Error(err))
		h.service.SendError(ctx, chatID, userMessage(err))
		return
	}

	sent := 0
	for _, staff := range list {
		if !staff.Active {
			continue
		}
		h.sendStaffQR(ctx, chatID, staff, "QR сотрудника")
		sent++
	}
	if sent == 0 {
		h.service.SendSimpleMessage(ctx, chatID, "Нет активных сотрудников.")
	}
}

func (h *AdminHandler) setActive(ctx context.Context, chatID int64, args string, active bool) {
	id, err := validation.ValidateTelegramID(args)
	if err != nil {
		h.service.SendSimpleMessage(ctx, chatID, userMessage(err))
		return
	}

	staff, err := h.service.Loyalty().SetStaffActive(ctx, id, active)
	if err != nil {
		if !errors.IsBotError(err) {
			h.service.Logger().Error("Failed to change staff status", logger.Int64("telegram_id", id), logger.Error(err))
		}
		h.service.SendSimpleMessage(ctx, chatID, userMessage(err))
		return
	}

	if active {
		h.service.SendSimpleMessage(ctx, chatID, fmt.Sprintf("✅ %s снова активен.", staffTitle(staff)))
		return
	}
	h.service.SendSimpleMessage(ctx, chatID, fmt.Sprintf("⏸ %s отключен, его QR больше не приписывает гостей.", staffTitle(staff)))
}
