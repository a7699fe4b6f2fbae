package keyboard

import (
	"github.com/go-telegram/bot/models"
)

// Данные callback-кнопок
const (
	CouponGet   = "COUPON:GET"
	CouponCheck = "COUPON:CHECK"
	CouponShow  = "COUPON:SHOW"
	MenuAsk     = "MENU:ASK"
)

// CreateGuestMenuKeyboard создает inline клавиатуру гостя
func CreateGuestMenuKeyboard(hasCoupon bool) *models.InlineKeyboardMarkup {
	couponBtn := models.InlineKeyboardButton{Text: "🎁 Получить купон", CallbackData: CouponGet}
	if hasCoupon {
		couponBtn = models.InlineKeyboardButton{Text: "🎟 Мой купон", CallbackData: CouponShow}
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{couponBtn},
			{{Text: "🍸 Спросить про меню", CallbackData: MenuAsk}},
		},
	}
}

// CreateSubscribeKeyboard создает клавиатуру с переходом в канал и повторной проверкой
func CreateSubscribeKeyboard(channelURL string) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	if channelURL != "" {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "📣 Перейти в канал", URL: channelURL},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "✅ Я подписался", CallbackData: CouponCheck},
	})

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}
