package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"telegram_loyalty_bot/internal/loyalty"
	storagemodels "telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/pkg/errors"
)

const timeLayout = "02.01.2006 15:04"

// ParseCommand разбирает "/cmd@bot args" на команду без @ и аргументы
func ParseCommand(text string) (command, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	head, rest, _ := strings.Cut(text, " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// guestFrom профиль гостя из отправителя сообщения
func guestFrom(u *models.User) loyalty.Guest {
	if u == nil {
		return loyalty.Guest{}
	}
	return loyalty.Guest{
		TelegramID: u.ID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	}
}

// userMessage текст для пользователя по доменной ошибке
func userMessage(err error) string {
	switch {
	case errors.Is(err, errors.ErrAccessDenied):
		return "⛔ Команда доступна только сотрудникам бара."
	case errors.Is(err, errors.ErrInvalidCode):
		return "Некорректный код купона. Код состоит из 6 латинских букв и цифр."
	case errors.Is(err, errors.ErrCouponNotFound):
		return "Купон с таким кодом не найден."
	case errors.Is(err, errors.ErrCouponAlreadyRedeemed):
		return "Этот купон уже погашен."
	case errors.Is(err, errors.ErrCouponExpired):
		return "Срок действия купона истек."
	case errors.Is(err, errors.ErrStaffNotFound):
		return "Сотрудник не найден."
	case errors.Is(err, errors.ErrStaffAlreadyExists):
		return "Этот сотрудник уже добавлен."
	case errors.Is(err, errors.ErrInvalidTelegramID):
		return "Некорректный Telegram ID."
	case errors.Is(err, errors.ErrInvalidPeriod):
		return "Некорректный период. Примеры: 7d, today, month, all, 2024-05-01:2024-05-31."
	case errors.Is(err, errors.ErrExportNotConfigured):
		return "Экспорт в Google Sheets не настроен."
	}

	if botErr, ok := errors.GetBotError(err); ok && strings.HasPrefix(botErr.Code, "INVALID_") {
		return "Ошибка: " + botErr.Message
	}
	return "Произошла ошибка, попробуйте позже."
}

// formatCoupon описание купона для гостя
func formatCoupon(c *storagemodels.Coupon, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🎟 Ваш купон: %s\n", c.Code)
	fmt.Fprintf(&b, "Скидка: %d%%\n", c.Discount)

	switch {
	case c.IsRedeemed():
		b.WriteString("Статус: погашен")
		if c.RedeemedAt != nil {
			fmt.Fprintf(&b, " %s", c.RedeemedAt.Format(timeLayout))
		}
	case c.IsExpired(now):
		b.WriteString("Статус: срок действия истек")
	default:
		b.WriteString("Статус: активен")
		if c.ExpiresAt != nil {
			fmt.Fprintf(&b, "\nДействует до: %s", c.ExpiresAt.Format(timeLayout))
		}
		b.WriteString("\n\nПокажите код бармену, чтобы получить скидку.")
	}

	return b.String()
}
